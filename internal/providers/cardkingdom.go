package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mtgprices/internal/catalog"
	"mtgprices/internal/fetch"
	"mtgprices/internal/prices"
)

const cardKingdomPricelistPath = "/api/pricelist"

// CardKingdomOptions parameterise the Card Kingdom adapter.
type CardKingdomOptions struct {
	BaseURL        string
	CallsPerSecond float64
	Timeout        time.Duration
	UserAgent      string
}

// CardKingdom fetches the Card Kingdom JSON pricelist. Foil and etched
// printings live in separate identifier namespaces but share one feed, with
// an is_foil flag and an "Etched" variation marker.
type CardKingdom struct {
	opts    CardKingdomOptions
	client  *fetch.Client
	retry   fetch.Policy
	logger  zerolog.Logger
	baseURL string
}

// NewCardKingdom constructs the adapter.
func NewCardKingdom(opts CardKingdomOptions, logger zerolog.Logger) *CardKingdom {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cardkingdom.com"
	}

	adapter := &CardKingdom{
		opts:    opts,
		retry:   fetch.DefaultPolicy,
		logger:  logger.With().Str("component", "provider").Str("provider", string(KindCardKingdom)).Logger(),
		baseURL: baseURL,
	}
	adapter.client = fetch.NewClient(fetch.Options{
		Provider:       string(KindCardKingdom),
		CallsPerSecond: opts.CallsPerSecond,
		Timeout:        opts.Timeout,
		UserAgent:      opts.UserAgent,
		Headers:        adapter.Headers,
	}, logger)
	return adapter
}

// Kind identifies the adapter.
func (a *CardKingdom) Kind() Kind {
	return KindCardKingdom
}

// Headers returns unauthenticated headers; the pricelist is public.
func (a *CardKingdom) Headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	return h
}

type cardKingdomFeed struct {
	Meta struct {
		CreatedAt string `json:"created_at"`
	} `json:"meta"`
	Data []prices.Row `json:"data"`
}

// Prices downloads the pricelist and reconciles it against the catalog.
func (a *CardKingdom) Prices(ctx context.Context, cat *catalog.Catalog, date string) (prices.Snapshot, error) {
	feed, err := fetch.Retry(ctx, a.logger, a.retry, func() (cardKingdomFeed, error) {
		var out cardKingdomFeed
		err := a.client.GetJSON(ctx, a.baseURL+cardKingdomPricelistPath, nil, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}

	idMap := catalog.BuildIdentifierMap(cat,
		catalog.CardKingdomID,
		catalog.CardKingdomFoilID,
		catalog.CardKingdomEtchedID,
	)

	contract := prices.Contract{
		IDKey:        "id",
		FoilKey:      "is_foil",
		EtchedKey:    "variation",
		EtchedMarker: "Etched",
		SellKey:      "price_retail",
		SellQtyKey:   "qty_retail",
		BuyKey:       "price_buy",
		BuyQtyKey:    "qty_buying",
	}
	template := prices.Record{
		Source:   "paper",
		Provider: string(KindCardKingdom),
		Date:     date,
		Currency: "USD",
	}

	snapshot := prices.Reconcile(idMap, feed.Data, contract, template, a.logger)
	a.logger.Info().Int("rows", len(feed.Data)).Int("records", len(snapshot)).Msg("pricelist reconciled")
	return snapshot, nil
}

var _ Adapter = (*CardKingdom)(nil)
