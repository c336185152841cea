package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mtgprices/internal/catalog"
	"mtgprices/internal/errs"
	"mtgprices/internal/fetch"
	"mtgprices/internal/prices"
)

const (
	tcgTokenPath   = "/token"
	tcgPricingPath = "/pricing/marketprices"
	tcgPageSize    = 100
)

// TCGPlayerOptions parameterise the TCGplayer adapter. ClientID and
// ClientSecret are env-bound; without them the adapter reports a
// configuration error for its own contribution only.
type TCGPlayerOptions struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	CallsPerSecond float64
	Timeout        time.Duration
	UserAgent      string
}

// TCGPlayer fetches paginated market pricing behind OAuth client-credentials.
type TCGPlayer struct {
	opts    TCGPlayerOptions
	client  *fetch.Client
	httpc   *http.Client
	retry   fetch.Policy
	logger  zerolog.Logger
	baseURL string

	mu    sync.Mutex
	token string
}

// NewTCGPlayer constructs the adapter.
func NewTCGPlayer(opts TCGPlayerOptions, logger zerolog.Logger) *TCGPlayer {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.tcgplayer.com"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	adapter := &TCGPlayer{
		opts:    opts,
		httpc:   &http.Client{Timeout: timeout},
		retry:   fetch.DefaultPolicy,
		logger:  logger.With().Str("component", "provider").Str("provider", string(KindTCGPlayer)).Logger(),
		baseURL: baseURL,
	}
	adapter.client = fetch.NewClient(fetch.Options{
		Provider:       string(KindTCGPlayer),
		CallsPerSecond: opts.CallsPerSecond,
		Timeout:        timeout,
		UserAgent:      opts.UserAgent,
		Headers:        adapter.Headers,
	}, logger)
	return adapter
}

// Kind identifies the adapter.
func (a *TCGPlayer) Kind() Kind {
	return KindTCGPlayer
}

// Headers attaches the bearer token when one has been issued.
func (a *TCGPlayer) Headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")

	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// authenticate exchanges client credentials for a bearer token.
func (a *TCGPlayer) authenticate(ctx context.Context) error {
	if a.opts.ClientID == "" || a.opts.ClientSecret == "" {
		return errs.New(string(KindTCGPlayer), errs.CodeConfig, "client credentials not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.opts.ClientID)
	form.Set("client_secret", a.opts.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+tcgTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return errs.Wrap(string(KindTCGPlayer), errs.CodeNetwork, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return errs.Wrap(string(KindTCGPlayer), errs.CodeNetwork, "execute token request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.New(string(KindTCGPlayer), errs.CodeAuth, "token request rejected").WithHTTP(resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return errs.Wrap(string(KindTCGPlayer), errs.CodeParse, "decode token response", err)
	}
	if payload.AccessToken == "" {
		return errs.New(string(KindTCGPlayer), errs.CodeAuth, "empty access token")
	}

	a.mu.Lock()
	a.token = payload.AccessToken
	a.mu.Unlock()
	return nil
}

type tcgPricingPage struct {
	Results []struct {
		ProductID   int64    `json:"productId"`
		SubTypeName string   `json:"subTypeName"`
		MarketPrice *float64 `json:"marketPrice"`
	} `json:"results"`
}

// fetchRows walks the pricing pages in strictly increasing order, stopping on
// the first empty page. Rate limiting applies before every page fetch.
func (a *TCGPlayer) fetchRows(ctx context.Context) ([]prices.Row, error) {
	var rows []prices.Row
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("limit", strconv.Itoa(tcgPageSize))

		result, err := fetch.Retry(ctx, a.logger, a.retry, func() (tcgPricingPage, error) {
			var out tcgPricingPage
			err := a.client.GetJSON(ctx, a.baseURL+tcgPricingPath, params, &out)
			return out, err
		})
		if err != nil {
			return nil, err
		}
		if len(result.Results) == 0 {
			break
		}

		for _, entry := range result.Results {
			if entry.MarketPrice == nil {
				continue
			}
			rows = append(rows, prices.Row{
				"productId": strconv.FormatInt(entry.ProductID, 10),
				"isFoil":    strconv.FormatBool(strings.EqualFold(entry.SubTypeName, "Foil")),
				"subType":   entry.SubTypeName,
				"market":    *entry.MarketPrice,
			})
		}
	}
	return rows, nil
}

// Prices authenticates, pages through market pricing, and reconciles the
// rows. Etched printings carry their own product-ID namespace, so they are
// resolved in a second pass over the same rows.
func (a *TCGPlayer) Prices(ctx context.Context, cat *catalog.Catalog, date string) (prices.Snapshot, error) {
	if err := a.authenticate(ctx); err != nil {
		return nil, err
	}

	rows, err := a.fetchRows(ctx)
	if err != nil {
		return nil, err
	}

	template := prices.Record{
		Source:   "paper",
		Provider: string(KindTCGPlayer),
		Date:     date,
		Currency: "USD",
	}

	normalMap := catalog.BuildIdentifierMap(cat, catalog.TCGPlayerProductID)
	snapshot := prices.Reconcile(normalMap, rows, prices.Contract{
		IDKey:   "productId",
		FoilKey: "isFoil",
		SellKey: "market",
	}, template, a.logger)

	// Rows that resolve through the etched namespace are etched by
	// definition; the feed itself only flags them as foil. A printing sold
	// in both namespaces gets its etched cell folded into the record the
	// normal pass already wrote.
	etchedMap := catalog.BuildIdentifierMap(cat, catalog.TCGPlayerEtchedID)
	etched := prices.Reconcile(etchedMap, rows, prices.Contract{
		IDKey:        "productId",
		EtchedKey:    "subType",
		EtchedMarker: "Foil",
		SellKey:      "market",
	}, template, a.logger)
	snapshot.MergeCells(etched)

	a.logger.Info().Int("rows", len(rows)).Int("records", len(snapshot)).Msg("market pricing reconciled")
	return snapshot, nil
}

var _ Adapter = (*TCGPlayer)(nil)
