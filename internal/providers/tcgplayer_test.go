package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mtgprices/internal/catalog"
	"mtgprices/internal/errs"
)

func tcgServer(t *testing.T, pages []string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var pricingCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("token endpoint expects POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			t.Fatalf("unexpected token form: %v", r.Form)
		}
		_, _ = w.Write([]byte(`{"access_token": "tok-abc"}`))
	})
	mux.HandleFunc("/pricing/marketprices", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-abc" {
			t.Fatalf("bearer token not sent: %q", got)
		}
		call := pricingCalls.Add(1)
		page := int(call)
		if page > len(pages) {
			t.Fatalf("page %d requested beyond fixture", page)
		}
		if got := r.URL.Query().Get("page"); got != strconv.Itoa(page) {
			t.Fatalf("pages must be fetched in order: got %s at call %d", got, call)
		}
		_, _ = w.Write([]byte(pages[page-1]))
	})

	return httptest.NewServer(mux), &pricingCalls
}

func TestTCGPlayerPagination(t *testing.T) {
	pages := []string{
		`{"results": [{"productId": 1, "subTypeName": "Normal", "marketPrice": 2.5}]}`,
		`{"results": [{"productId": 1, "subTypeName": "Foil", "marketPrice": 8.0},
		              {"productId": 2, "subTypeName": "Foil", "marketPrice": 30.0}]}`,
		`{"results": []}`,
	}
	srv, calls := tcgServer(t, pages)
	defer srv.Close()

	adapter := NewTCGPlayer(TCGPlayerOptions{
		BaseURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      time.Second,
	}, zerolog.Nop())

	snapshot, err := adapter.Prices(context.Background(), testCatalog(), "2025-08-29")
	if err != nil {
		t.Fatalf("Prices failed: %v", err)
	}

	// Pages 1-2 carry data, page 3 is the empty stop signal.
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 page fetches, got %d", got)
	}

	normal := snapshot["uuid-normal"]
	if normal == nil || normal.SellNormal == nil || !normal.SellNormal.Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("sellNormal mismatch: %+v", normal)
	}
	if normal.SellFoil == nil || !normal.SellFoil.Equal(decimal.NewFromFloat(8.0)) {
		t.Fatalf("sellFoil mismatch: %+v", normal)
	}

	// Product 2 resolves through the etched namespace.
	etched := snapshot["uuid-etched"]
	if etched == nil || etched.SellEtched == nil || !etched.SellEtched.Equal(decimal.NewFromFloat(30.0)) {
		t.Fatalf("etched record mismatch: %+v", etched)
	}
	if etched.SellFoil != nil {
		t.Fatalf("etched namespace rows must not write foil cells: %+v", etched)
	}
}

func TestTCGPlayerDualNamespaceKeepsNormalCells(t *testing.T) {
	// One printing sold under both product IDs: the etched pass must fold
	// into the record the normal pass wrote, not replace it.
	pages := []string{
		`{"results": [{"productId": 10, "subTypeName": "Normal", "marketPrice": 2.5},
		              {"productId": 20, "subTypeName": "Foil", "marketPrice": 30.0}]}`,
		`{"results": []}`,
	}
	srv, _ := tcgServer(t, pages)
	defer srv.Close()

	cat := &catalog.Catalog{
		Sets: map[string]catalog.Set{
			"TST": {
				Code: "TST",
				Cards: []catalog.Card{
					{
						UUID:     "uuid-dual",
						Name:     "Example Card (Nonfoil and Etched)",
						Finishes: []string{"nonfoil", "etched"},
						Identifiers: catalog.Identifiers{
							TCGPlayerProductID: "10",
							TCGPlayerEtchedID:  "20",
						},
					},
				},
			},
		},
	}

	adapter := NewTCGPlayer(TCGPlayerOptions{
		BaseURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      time.Second,
	}, zerolog.Nop())

	snapshot, err := adapter.Prices(context.Background(), cat, "2025-08-29")
	if err != nil {
		t.Fatalf("Prices failed: %v", err)
	}

	record := snapshot["uuid-dual"]
	if record == nil {
		t.Fatal("dual-namespace printing missing from snapshot")
	}
	if record.SellNormal == nil || !record.SellNormal.Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("etched pass must not destroy the normal cell: %+v", record)
	}
	if record.SellEtched == nil || !record.SellEtched.Equal(decimal.NewFromFloat(30.0)) {
		t.Fatalf("etched cell missing: %+v", record)
	}
	if record.SellFoil != nil {
		t.Fatalf("no foil price was offered: %+v", record)
	}
}

func TestTCGPlayerMissingCredentials(t *testing.T) {
	adapter := NewTCGPlayer(TCGPlayerOptions{BaseURL: "http://127.0.0.1:0"}, zerolog.Nop())

	_, err := adapter.Prices(context.Background(), testCatalog(), "2025-08-29")
	if errs.CodeOf(err) != errs.CodeConfig {
		t.Fatalf("missing credentials should be a config error, got %v", err)
	}
}

func TestTCGPlayerRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewTCGPlayer(TCGPlayerOptions{
		BaseURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "bad",
		Timeout:      time.Second,
	}, zerolog.Nop())

	_, err := adapter.Prices(context.Background(), testCatalog(), "2025-08-29")
	if errs.CodeOf(err) != errs.CodeAuth {
		t.Fatalf("rejected credentials should be an auth error, got %v", err)
	}
}
