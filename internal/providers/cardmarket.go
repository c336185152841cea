package providers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mtgprices/internal/catalog"
	"mtgprices/internal/fetch"
	"mtgprices/internal/prices"
)

const cardMarketPriceGuidePath = "/productCatalog/priceGuide/price_guide_1.json"

// CardMarketOptions parameterise the Cardmarket adapter. Token is optional;
// without it requests go out unauthenticated.
type CardMarketOptions struct {
	BaseURL        string
	Token          string
	CallsPerSecond float64
	Timeout        time.Duration
	UserAgent      string
}

// CardMarket fetches the Cardmarket price guide. Each product carries normal
// and foil averages in one entry, split into two rows before reconciliation.
type CardMarket struct {
	opts    CardMarketOptions
	client  *fetch.Client
	retry   fetch.Policy
	logger  zerolog.Logger
	baseURL string
}

// NewCardMarket constructs the adapter.
func NewCardMarket(opts CardMarketOptions, logger zerolog.Logger) *CardMarket {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://downloads.s3.cardmarket.com"
	}

	adapter := &CardMarket{
		opts:    opts,
		retry:   fetch.DefaultPolicy,
		logger:  logger.With().Str("component", "provider").Str("provider", string(KindCardMarket)).Logger(),
		baseURL: baseURL,
	}
	adapter.client = fetch.NewClient(fetch.Options{
		Provider:       string(KindCardMarket),
		CallsPerSecond: opts.CallsPerSecond,
		Timeout:        opts.Timeout,
		UserAgent:      opts.UserAgent,
		Headers:        adapter.Headers,
	}, logger)
	return adapter
}

// Kind identifies the adapter.
func (a *CardMarket) Kind() Kind {
	return KindCardMarket
}

// Headers attaches the bearer token when configured; absence degrades to an
// unauthenticated request.
func (a *CardMarket) Headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if a.opts.Token != "" {
		h.Set("Authorization", "Bearer "+a.opts.Token)
	}
	return h
}

type cardMarketGuide struct {
	Version     int    `json:"version"`
	CreatedAt   string `json:"createdAt"`
	PriceGuides []struct {
		IDProduct int64    `json:"idProduct"`
		Avg       *float64 `json:"avg"`
		FoilAvg   *float64 `json:"avg-foil"`
	} `json:"priceGuides"`
}

// Prices downloads the price guide and reconciles it against the catalog.
func (a *CardMarket) Prices(ctx context.Context, cat *catalog.Catalog, date string) (prices.Snapshot, error) {
	guide, err := fetch.Retry(ctx, a.logger, a.retry, func() (cardMarketGuide, error) {
		var out cardMarketGuide
		err := a.client.GetJSON(ctx, a.baseURL+cardMarketPriceGuidePath, nil, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}

	rows := make([]prices.Row, 0, len(guide.PriceGuides)*2)
	for _, entry := range guide.PriceGuides {
		id := strconv.FormatInt(entry.IDProduct, 10)
		if entry.Avg != nil {
			rows = append(rows, prices.Row{"idProduct": id, "isFoil": "false", "price": *entry.Avg})
		}
		if entry.FoilAvg != nil {
			rows = append(rows, prices.Row{"idProduct": id, "isFoil": "true", "price": *entry.FoilAvg})
		}
	}

	idMap := catalog.BuildIdentifierMap(cat, catalog.MCMID)
	contract := prices.Contract{
		IDKey:   "idProduct",
		FoilKey: "isFoil",
		SellKey: "price",
	}
	template := prices.Record{
		Source:   "paper",
		Provider: string(KindCardMarket),
		Date:     date,
		Currency: "EUR",
	}

	snapshot := prices.Reconcile(idMap, rows, contract, template, a.logger)
	a.logger.Info().Int("rows", len(rows)).Int("records", len(snapshot)).Msg("price guide reconciled")
	return snapshot, nil
}

var _ Adapter = (*CardMarket)(nil)
