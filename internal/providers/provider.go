// Package providers contains one adapter per external price source. The set
// of kinds is closed so a new source means a new variant here, not an
// open-ended registration mechanism.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"mtgprices/internal/catalog"
	"mtgprices/internal/prices"
)

// Kind names one supported price source.
type Kind string

const (
	KindCardKingdom Kind = "cardkingdom"
	KindTCGPlayer   Kind = "tcgplayer"
	KindCardHoarder Kind = "cardhoarder"
	KindCardMarket  Kind = "cardmarket"
)

// Kinds lists every supported provider in its default precedence order.
func Kinds() []Kind {
	return []Kind{KindCardKingdom, KindTCGPlayer, KindCardHoarder, KindCardMarket}
}

// ParseKind validates a configured provider name.
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindCardKingdom, KindTCGPlayer, KindCardHoarder, KindCardMarket:
		return Kind(name), nil
	default:
		return "", fmt.Errorf("unknown provider kind %q", name)
	}
}

// Adapter is the uniform surface the orchestrator drives. Each adapter owns
// its URL templates, auth headers, pagination protocol, and its own
// rate-limited client.
type Adapter interface {
	// Kind identifies the adapter.
	Kind() Kind
	// Headers builds the auth headers sent with each request. Missing
	// credentials yield unauthenticated headers, never an error.
	Headers() http.Header
	// Prices fetches the source's feed and reconciles it against the
	// catalog into one day's snapshot.
	Prices(ctx context.Context, cat *catalog.Catalog, date string) (prices.Snapshot, error)
}
