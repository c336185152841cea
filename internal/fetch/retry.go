package fetch

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Policy bounds retries of transient transport faults.
type Policy struct {
	// Tries is the total number of attempts, first attempt included.
	Tries uint
	// FirstWait is the delay before the first retry; each subsequent wait
	// shrinks by Step.
	FirstWait time.Duration
	Step      time.Duration
}

// DefaultPolicy retries twice more after the first failure, waiting 3s then 2s.
var DefaultPolicy = Policy{Tries: 3, FirstWait: 3 * time.Second, Step: time.Second}

// linearBackOff yields a linearly decreasing wait sequence.
type linearBackOff struct {
	policy Policy
	next   time.Duration
}

func (l *linearBackOff) NextBackOff() time.Duration {
	wait := l.next
	if wait <= 0 {
		return backoff.Stop
	}
	l.next -= l.policy.Step
	return wait
}

func (l *linearBackOff) Reset() {
	l.next = l.policy.FirstWait
}

// Retry runs fn under the policy, retrying only transient transport faults.
// Any other error surfaces immediately.
func Retry[T any](ctx context.Context, logger zerolog.Logger, policy Policy, fn func() (T, error)) (T, error) {
	bo := &linearBackOff{policy: policy}
	bo.Reset()

	attempt := 0
	operation := func() (T, error) {
		attempt++
		out, err := fn()
		if err == nil {
			return out, nil
		}
		if !Transient(err) {
			return out, backoff.Permanent(err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("transient fetch failure, will retry")
		return out, err
	}

	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(policy.Tries))
}

// Transient reports whether err looks like a truncated or interrupted
// transfer that is worth retrying.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"unexpected EOF",
		"transport connection broken",
		"http2: server sent GOAWAY",
		"connection reset by peer",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
