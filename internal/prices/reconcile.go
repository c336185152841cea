package prices

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mtgprices/internal/catalog"
)

// Contract declares, as data, which row keys a provider's feed uses. Each
// adapter supplies its own contract; the reconciler itself is
// provider-agnostic. Empty key fields mean "not configured".
type Contract struct {
	// IDKey holds the third-party identifier.
	IDKey string
	// FoilKey holds a value that equals "true" (case-insensitive) for foils.
	FoilKey string
	// EtchedKey, when set, marks etched printings via EtchedMarker substring.
	EtchedKey    string
	EtchedMarker string
	// SellKey/SellQtyKey cover the retail side; a quantity of exactly zero
	// suppresses the price (out of stock).
	SellKey    string
	SellQtyKey string
	// BuyKey/BuyQtyKey cover the buylist side.
	BuyKey    string
	BuyQtyKey string
}

// Reconcile merges raw provider rows into canonical-UUID-keyed records.
// Rows whose ID is absent from the map are skipped; a row matching several
// UUIDs writes the same price into each of them.
func Reconcile(idMap catalog.IdentifierMap, rows []Row, contract Contract, template Record, logger zerolog.Logger) Snapshot {
	out := make(Snapshot)

	for _, row := range rows {
		id, _ := row.Str(contract.IDKey)
		uuids := idMap.Lookup(id)
		if len(uuids) == 0 {
			continue
		}
		if len(uuids) > 1 {
			logger.Warn().Str("third_party_id", id).Int("uuids", len(uuids)).
				Msg("third-party id maps to multiple printings; fanning out")
		}

		isFoil := false
		if contract.FoilKey != "" {
			if v, ok := row.Str(contract.FoilKey); ok {
				isFoil = strings.EqualFold(v, "true")
			}
		}

		isEtched := false
		if contract.EtchedKey != "" {
			if v, ok := row.Str(contract.EtchedKey); ok {
				isEtched = contract.EtchedMarker != "" && strings.Contains(v, contract.EtchedMarker)
			}
		}

		for _, uuid := range uuids {
			record, exists := out[uuid]
			if !exists {
				record = template.Clone()
				out[uuid] = record
			}

			if contract.SellKey != "" && !suppressed(row, contract.SellQtyKey) {
				if price, ok := row.Num(contract.SellKey); ok {
					writeCell(&record.SellEtched, &record.SellFoil, &record.SellNormal, isEtched, isFoil, price)
				}
			}

			if contract.BuyKey != "" && !suppressed(row, contract.BuyQtyKey) {
				if price, ok := row.Num(contract.BuyKey); ok {
					writeCell(&record.BuyEtched, &record.BuyFoil, &record.BuyNormal, isEtched, isFoil, price)
				}
			}
		}
	}

	return out
}

// suppressed reports whether a configured quantity key is present with an
// exact zero, meaning the provider does not currently stock the card.
func suppressed(row Row, qtyKey string) bool {
	if qtyKey == "" {
		return false
	}
	qty, ok := row.Num(qtyKey)
	return ok && qty.IsZero()
}

// writeCell picks exactly one finish cell, priority etched > foil > normal.
func writeCell(etched, foil, normal **decimal.Decimal, isEtched, isFoil bool, price decimal.Decimal) {
	switch {
	case isEtched:
		*etched = &price
	case isFoil:
		*foil = &price
	default:
		*normal = &price
	}
}
