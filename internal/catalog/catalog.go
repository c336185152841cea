// Package catalog models the canonical card catalog consumed read-only by the
// aggregation pipeline, and builds third-party identifier maps from it.
package catalog

import (
	"io"
	"os"

	"github.com/goccy/go-json"

	"mtgprices/internal/errs"
)

// Identifiers is the bag of third-party IDs attached to one printing. Every
// field is optional; empty means the provider does not carry the card.
type Identifiers struct {
	CardKingdomID       string `json:"cardKingdomId,omitempty"`
	CardKingdomFoilID   string `json:"cardKingdomFoilId,omitempty"`
	CardKingdomEtchedID string `json:"cardKingdomEtchedId,omitempty"`
	TCGPlayerProductID  string `json:"tcgplayerProductId,omitempty"`
	TCGPlayerEtchedID   string `json:"tcgplayerEtchedProductId,omitempty"`
	MTGOID              string `json:"mtgoId,omitempty"`
	MTGOFoilID          string `json:"mtgoFoilId,omitempty"`
	MCMID               string `json:"mcmId,omitempty"`
	ScryfallID          string `json:"scryfallId,omitempty"`
}

// Card is one canonical printing. The pipeline treats it as immutable.
type Card struct {
	UUID        string      `json:"uuid"`
	Name        string      `json:"name"`
	SetCode     string      `json:"setCode"`
	Number      string      `json:"number,omitempty"`
	Finishes    []string    `json:"finishes,omitempty"`
	Identifiers Identifiers `json:"identifiers"`
}

// Set groups the cards and tokens printed under one set code.
type Set struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Cards  []Card `json:"cards"`
	Tokens []Card `json:"tokens,omitempty"`
}

// Meta mirrors the build metadata embedded in catalog files.
type Meta struct {
	Date    string `json:"date"`
	Version string `json:"version"`
}

// Catalog is a full canonical card catalog snapshot.
type Catalog struct {
	Meta Meta           `json:"meta"`
	Sets map[string]Set `json:"data"`
}

// Decode reads an AllPrintings-shaped catalog from r.
func Decode(r io.Reader) (*Catalog, error) {
	var cat Catalog
	if err := json.NewDecoder(r).Decode(&cat); err != nil {
		return nil, errs.Wrap("catalog", errs.CodeParse, "decode catalog", err)
	}
	return &cat, nil
}

// Load reads a catalog file from disk.
func Load(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap("catalog", errs.CodeConfig, "open catalog file", err)
	}
	defer file.Close()
	return Decode(file)
}

// Each invokes fn for every card and token in the catalog.
func (c *Catalog) Each(fn func(Card)) {
	for _, set := range c.Sets {
		for _, card := range set.Cards {
			fn(card)
		}
		for _, token := range set.Tokens {
			fn(token)
		}
	}
}

// CardCount reports the number of cards and tokens in the catalog.
func (c *Catalog) CardCount() int {
	count := 0
	c.Each(func(Card) { count++ })
	return count
}
