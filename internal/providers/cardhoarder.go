package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mtgprices/internal/catalog"
	"mtgprices/internal/fetch"
	"mtgprices/internal/prices"
)

const (
	cardHoarderPricefilePath = "/affiliates/pricefile/download"

	// Tab-delimited pricefile layout: two header lines, then
	// id[0] name[1] set[2] rarity[3] quantity[4] price[5].
	cardHoarderHeaderLines = 2
	cardHoarderColID       = 0
	cardHoarderColQty      = 4
	cardHoarderColPrice    = 5
	cardHoarderMinColumns  = 6
)

// CardHoarderOptions parameterise the Cardhoarder adapter.
type CardHoarderOptions struct {
	BaseURL        string
	CallsPerSecond float64
	Timeout        time.Duration
	UserAgent      string
}

// CardHoarder fetches MTGO ticket prices from the Cardhoarder tab-delimited
// pricefiles. Foils live in a separate file requested with foil=1.
type CardHoarder struct {
	opts    CardHoarderOptions
	client  *fetch.Client
	retry   fetch.Policy
	logger  zerolog.Logger
	baseURL string
}

// NewCardHoarder constructs the adapter.
func NewCardHoarder(opts CardHoarderOptions, logger zerolog.Logger) *CardHoarder {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.cardhoarder.com"
	}

	adapter := &CardHoarder{
		opts:    opts,
		retry:   fetch.DefaultPolicy,
		logger:  logger.With().Str("component", "provider").Str("provider", string(KindCardHoarder)).Logger(),
		baseURL: baseURL,
	}
	adapter.client = fetch.NewClient(fetch.Options{
		Provider:       string(KindCardHoarder),
		CallsPerSecond: opts.CallsPerSecond,
		Timeout:        opts.Timeout,
		UserAgent:      opts.UserAgent,
		Headers:        adapter.Headers,
	}, logger)
	return adapter
}

// Kind identifies the adapter.
func (a *CardHoarder) Kind() Kind {
	return KindCardHoarder
}

// Headers returns unauthenticated headers; the pricefiles are public.
func (a *CardHoarder) Headers() http.Header {
	return http.Header{}
}

// parsePricefile splits a tab-delimited pricefile into rows. Malformed lines
// are skipped, not fatal.
func (a *CardHoarder) parsePricefile(text string, foil bool) []prices.Row {
	lines := strings.Split(text, "\n")
	if len(lines) <= cardHoarderHeaderLines {
		return nil
	}

	rows := make([]prices.Row, 0, len(lines)-cardHoarderHeaderLines)
	for _, line := range lines[cardHoarderHeaderLines:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		columns := strings.Split(line, "\t")
		if len(columns) < cardHoarderMinColumns {
			a.logger.Debug().Str("line", line).Msg("skipping malformed pricefile line")
			continue
		}
		rows = append(rows, prices.Row{
			"id":    strings.TrimSpace(columns[cardHoarderColID]),
			"foil":  strconvBool(foil),
			"qty":   strings.TrimSpace(columns[cardHoarderColQty]),
			"price": strings.TrimSpace(columns[cardHoarderColPrice]),
		})
	}
	return rows
}

func strconvBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func (a *CardHoarder) fetchFile(ctx context.Context, foil bool) ([]prices.Row, error) {
	var params url.Values
	if foil {
		params = url.Values{}
		params.Set("foil", "1")
	}

	text, err := fetch.Retry(ctx, a.logger, a.retry, func() (string, error) {
		return a.client.GetText(ctx, a.baseURL+cardHoarderPricefilePath, params)
	})
	if err != nil {
		return nil, err
	}
	return a.parsePricefile(text, foil), nil
}

// Prices downloads the normal and foil pricefiles and reconciles both.
func (a *CardHoarder) Prices(ctx context.Context, cat *catalog.Catalog, date string) (prices.Snapshot, error) {
	normal, err := a.fetchFile(ctx, false)
	if err != nil {
		return nil, err
	}
	foil, err := a.fetchFile(ctx, true)
	if err != nil {
		return nil, err
	}
	rows := append(normal, foil...)

	idMap := catalog.BuildIdentifierMap(cat, catalog.MTGOID, catalog.MTGOFoilID)
	contract := prices.Contract{
		IDKey:      "id",
		FoilKey:    "foil",
		SellKey:    "price",
		SellQtyKey: "qty",
	}
	template := prices.Record{
		Source:   "mtgo",
		Provider: string(KindCardHoarder),
		Date:     date,
		Currency: "USD",
	}

	snapshot := prices.Reconcile(idMap, rows, contract, template, a.logger)
	a.logger.Info().Int("rows", len(rows)).Int("records", len(snapshot)).Msg("pricefiles reconciled")
	return snapshot, nil
}

var _ Adapter = (*CardHoarder)(nil)
