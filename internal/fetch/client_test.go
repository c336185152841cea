package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mtgprices/internal/errs"
)

func testClient(t *testing.T, srv *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.Timeout = 2 * time.Second
	return NewClient(opts, zerolog.Nop())
}

func TestGetJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "2" {
			t.Fatalf("expected page=2 in query, got %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"name":"Black Lotus"}`))
	}))
	defer srv.Close()

	client := testClient(t, srv, Options{Provider: "test"})

	var out struct {
		Name string `json:"name"`
	}
	params := url.Values{}
	params.Set("page", "2")
	if err := client.GetJSON(context.Background(), srv.URL, params, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Name != "Black Lotus" {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestGetStatusTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		code   errs.Code
	}{
		{http.StatusTooManyRequests, errs.CodeRateLimited},
		{http.StatusUnauthorized, errs.CodeAuth},
		{http.StatusForbidden, errs.CodeAuth},
		{http.StatusInternalServerError, errs.CodeNetwork},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte("nope"))
		}))

		client := testClient(t, srv, Options{Provider: "test"})
		_, err := client.Get(context.Background(), srv.URL, nil)
		if err == nil {
			t.Fatalf("status %d should error", tc.status)
		}
		if errs.CodeOf(err) != tc.code {
			t.Fatalf("status %d: expected code %s, got %s", tc.status, tc.code, errs.CodeOf(err))
		}
		if errs.StatusOf(err) != tc.status {
			t.Fatalf("expected status %d carried on error, got %d", tc.status, errs.StatusOf(err))
		}
		srv.Close()
	}
}

func TestGetJSONParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	client := testClient(t, srv, Options{Provider: "test"})
	var out map[string]any
	err := client.GetJSON(context.Background(), srv.URL, nil, &out)
	if errs.CodeOf(err) != errs.CodeParse {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestHeadersInjected(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := testClient(t, srv, Options{
		Provider:  "test",
		UserAgent: "mtgprices-test",
		Headers: func() http.Header {
			h := http.Header{}
			h.Set("Authorization", "Bearer token123")
			return h
		},
	})

	if _, err := client.GetText(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("GetText failed: %v", err)
	}
	if got.Load() != "Bearer token123" {
		t.Fatalf("auth header not injected: %v", got.Load())
	}
}

func TestLimiterPacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// 10 calls/second means the third request cannot start before ~200ms.
	client := testClient(t, srv, Options{Provider: "test", CallsPerSecond: 10})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Get(context.Background(), srv.URL, nil); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("requests were not paced: took %s", elapsed)
	}
}
