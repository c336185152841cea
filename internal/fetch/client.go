// Package fetch provides the rate-limited HTTP client shared by every
// provider adapter. Each adapter owns its own client, so each one gets an
// independent pacing budget.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mtgprices/internal/errs"
)

const defaultTimeout = 30 * time.Second

// Options parameterise a provider-scoped HTTP client.
type Options struct {
	Provider       string
	CallsPerSecond float64
	Timeout        time.Duration
	UserAgent      string
	// Headers is invoked before every request to inject auth headers.
	Headers func() http.Header
}

// Client wraps http.Client with per-provider pacing.
type Client struct {
	provider  string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	headers   func() http.Header
	logger    zerolog.Logger
}

// NewClient constructs a rate-limited client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	if opts.CallsPerSecond > 0 {
		limit = rate.Limit(opts.CallsPerSecond)
	}

	return &Client{
		provider:  opts.Provider,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: opts.UserAgent,
		headers:   opts.Headers,
		logger:    logger.With().Str("component", "fetch").Str("provider", opts.Provider).Logger(),
	}
}

// Get performs a paced GET and returns the raw response body.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(c.provider, errs.CodeNetwork, "rate limiter wait", err)
	}

	endpoint := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		endpoint = rawURL + sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.Wrap(c.provider, errs.CodeNetwork, "build request", err)
	}

	if c.headers != nil {
		for key, values := range c.headers() {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
	}
	if ua := strings.TrimSpace(c.userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(c.provider, errs.CodeNetwork, "execute request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(c.provider, errs.CodeNetwork, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp.StatusCode, body)
	}

	return body, nil
}

// GetJSON performs a paced GET and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, v any) error {
	body, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errs.Wrap(c.provider, errs.CodeParse, "decode json response", err)
	}
	return nil
}

// GetText performs a paced GET and returns the body as text.
func (c *Client) GetText(ctx context.Context, rawURL string, params url.Values) (string, error) {
	body, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) statusError(status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	switch {
	case status == http.StatusTooManyRequests:
		return errs.New(c.provider, errs.CodeRateLimited, snippet).WithHTTP(status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.New(c.provider, errs.CodeAuth, snippet).WithHTTP(status)
	default:
		return errs.New(c.provider, errs.CodeNetwork, snippet).WithHTTP(status)
	}
}
