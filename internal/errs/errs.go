// Package errs provides the structured error taxonomy shared across the
// provider adapters and the aggregation pipeline.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorises a pipeline failure.
type Code string

const (
	// CodeNetwork indicates a transport or HTTP-level failure.
	CodeNetwork Code = "network"
	// CodeParse indicates malformed JSON or text from a provider.
	CodeParse Code = "parse"
	// CodeAuth indicates rejected or missing credentials.
	CodeAuth Code = "auth"
	// CodeRateLimited indicates an explicit 429-style signal from a provider.
	CodeRateLimited Code = "rate_limited"
	// CodeConfig indicates a missing or invalid setting.
	CodeConfig Code = "config"
	// CodeProcessing indicates a reconciliation-time logic fault.
	CodeProcessing Code = "processing"
)

// E carries structured failure context for one provider interaction.
type E struct {
	Provider string
	Code     Code
	HTTP     int
	Message  string

	cause error
}

// New constructs an error for the given provider and code.
func New(provider string, code Code, message string) *E {
	return &E{Provider: strings.TrimSpace(provider), Code: code, Message: message}
}

// Wrap constructs an error wrapping an underlying cause.
func Wrap(provider string, code Code, message string, cause error) *E {
	return &E{Provider: strings.TrimSpace(provider), Code: code, Message: message, cause: cause}
}

// WithHTTP records the associated HTTP status code.
func (e *E) WithHTTP(status int) *E {
	e.HTTP = status
	return e
}

// Error renders the error for logs.
func (e *E) Error() string {
	parts := make([]string, 0, 4)
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	parts = append(parts, string(e.Code))
	if e.HTTP != 0 {
		parts = append(parts, fmt.Sprintf("http=%d", e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	out := strings.Join(parts, ": ")
	if e.cause != nil {
		out += ": " + e.cause.Error()
	}
	return out
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *E) Unwrap() error {
	return e.cause
}

// CodeOf extracts the taxonomy code from err, or empty when err is not an *E.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	return CodeOf(err) == CodeNetwork
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	return CodeOf(err) == CodeAuth
}

// StatusOf extracts the HTTP status from err, or zero.
func StatusOf(err error) int {
	var e *E
	if errors.As(err, &e) {
		return e.HTTP
	}
	return 0
}
