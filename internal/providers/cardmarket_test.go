package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestCardMarketPrices(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"version": 1,
			"createdAt": "2025-08-29",
			"priceGuides": [
				{"idProduct": 1, "avg": 4.20, "avg-foil": 11.50},
				{"idProduct": 777, "avg": 1.0}
			]
		}`))
	}))
	defer srv.Close()

	adapter := NewCardMarket(CardMarketOptions{BaseURL: srv.URL, Token: "mkm-token", Timeout: time.Second}, zerolog.Nop())

	// testCatalog maps MCM product 1 via the MCM1 identifier; adjust fixture.
	cat := testCatalog()
	set := cat.Sets["TST"]
	set.Cards[0].Identifiers.MCMID = "1"
	cat.Sets["TST"] = set

	snapshot, err := adapter.Prices(context.Background(), cat, "2025-08-29")
	if err != nil {
		t.Fatalf("Prices failed: %v", err)
	}
	if gotAuth.Load() != "Bearer mkm-token" {
		t.Fatalf("token header not sent: %v", gotAuth.Load())
	}

	record := snapshot["uuid-normal"]
	if record == nil {
		t.Fatalf("expected uuid-normal record: %v", snapshot)
	}
	if record.Currency != "EUR" {
		t.Fatalf("cardmarket prices are EUR: %+v", record)
	}
	if record.SellNormal == nil || !record.SellNormal.Equal(decimal.NewFromFloat(4.20)) {
		t.Fatalf("sellNormal mismatch: %+v", record)
	}
	if record.SellFoil == nil || !record.SellFoil.Equal(decimal.NewFromFloat(11.50)) {
		t.Fatalf("sellFoil mismatch: %+v", record)
	}

	// Product 777 is not in the catalog and contributes nothing.
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 record, got %d", len(snapshot))
	}
}

func TestCardMarketUnauthenticatedDegrade(t *testing.T) {
	adapter := NewCardMarket(CardMarketOptions{}, zerolog.Nop())
	if got := adapter.Headers().Get("Authorization"); got != "" {
		t.Fatalf("missing token must degrade to unauthenticated requests, got %q", got)
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, err := ParseKind(string(kind))
		if err != nil || parsed != kind {
			t.Fatalf("round trip failed for %s: %v", kind, err)
		}
	}
	if _, err := ParseKind("starcitygames"); err == nil {
		t.Fatal("unknown kinds must be rejected")
	}
}
