package catalog

import "sort"

// IDGetter reads one third-party identifier field from a card. Returning the
// empty string means the card has no ID in that namespace.
type IDGetter func(Card) string

// Typed accessors for the identifier namespaces the providers use. Keeping
// these explicit avoids runtime field-path lookups against the catalog.
var (
	CardKingdomID       IDGetter = func(c Card) string { return c.Identifiers.CardKingdomID }
	CardKingdomFoilID   IDGetter = func(c Card) string { return c.Identifiers.CardKingdomFoilID }
	CardKingdomEtchedID IDGetter = func(c Card) string { return c.Identifiers.CardKingdomEtchedID }
	TCGPlayerProductID  IDGetter = func(c Card) string { return c.Identifiers.TCGPlayerProductID }
	TCGPlayerEtchedID   IDGetter = func(c Card) string { return c.Identifiers.TCGPlayerEtchedID }
	MTGOID              IDGetter = func(c Card) string { return c.Identifiers.MTGOID }
	MTGOFoilID          IDGetter = func(c Card) string { return c.Identifiers.MTGOFoilID }
	MCMID               IDGetter = func(c Card) string { return c.Identifiers.MCMID }
)

// IdentifierMap maps one provider's native ID space onto canonical UUIDs.
// A single third-party ID may map to more than one UUID.
type IdentifierMap map[string][]string

// BuildIdentifierMap scans every card and token once per getter and unions
// the results into a single map. Providers that mark foil/etched via a flag
// column rather than a separate ID namespace pass all their ID getters here
// so one lookup covers every finish.
func BuildIdentifierMap(cat *Catalog, getters ...IDGetter) IdentifierMap {
	out := make(IdentifierMap)
	for _, getter := range getters {
		cat.Each(func(card Card) {
			id := getter(card)
			if id == "" || card.UUID == "" {
				return
			}
			out.add(id, card.UUID)
		})
	}
	return out
}

func (m IdentifierMap) add(id, uuid string) {
	existing := m[id]
	for _, u := range existing {
		if u == uuid {
			return
		}
	}
	existing = append(existing, uuid)
	sort.Strings(existing)
	m[id] = existing
}

// Lookup returns the canonical UUIDs for a third-party ID, or nil.
func (m IdentifierMap) Lookup(id string) []string {
	return m[id]
}
