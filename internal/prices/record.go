// Package prices holds the canonical price record model and the
// provider-agnostic reconciler that merges raw provider rows into it.
package prices

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Downstream consumers expect price cells as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Record is one canonical card's price observation for one provider on one
// date. Unset cells stay nil and are omitted from serialization.
type Record struct {
	Source   string `json:"source"`
	Provider string `json:"provider"`
	Date     string `json:"date"`
	Currency string `json:"currency"`

	BuyNormal  *decimal.Decimal `json:"buyNormal,omitempty"`
	BuyFoil    *decimal.Decimal `json:"buyFoil,omitempty"`
	BuyEtched  *decimal.Decimal `json:"buyEtched,omitempty"`
	SellNormal *decimal.Decimal `json:"sellNormal,omitempty"`
	SellFoil   *decimal.Decimal `json:"sellFoil,omitempty"`
	SellEtched *decimal.Decimal `json:"sellEtched,omitempty"`
}

// Clone returns an independent copy of the record.
func (r Record) Clone() *Record {
	out := r
	out.BuyNormal = cloneCell(r.BuyNormal)
	out.BuyFoil = cloneCell(r.BuyFoil)
	out.BuyEtched = cloneCell(r.BuyEtched)
	out.SellNormal = cloneCell(r.SellNormal)
	out.SellFoil = cloneCell(r.SellFoil)
	out.SellEtched = cloneCell(r.SellEtched)
	return &out
}

// Empty reports whether no cell carries a value.
func (r Record) Empty() bool {
	return r.BuyNormal == nil && r.BuyFoil == nil && r.BuyEtched == nil &&
		r.SellNormal == nil && r.SellFoil == nil && r.SellEtched == nil
}

func cloneCell(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Snapshot is one provider's (or one merged run's) full day output.
type Snapshot map[string]*Record

// Merge writes every record of other into s, overwriting on collision, and
// returns the colliding UUIDs.
func (s Snapshot) Merge(other Snapshot) []string {
	var collisions []string
	for uuid, record := range other {
		if _, exists := s[uuid]; exists {
			collisions = append(collisions, uuid)
		}
		s[uuid] = record
	}
	return collisions
}

// MergeCells folds other into s cell by cell. On collision only the cells the
// incoming record carries are written; cells it never touched keep their
// values. Used when one provider reconciles the same printing through several
// identifier namespaces.
func (s Snapshot) MergeCells(other Snapshot) {
	for uuid, record := range other {
		existing, exists := s[uuid]
		if !exists {
			s[uuid] = record
			continue
		}
		fillCell(&existing.BuyNormal, record.BuyNormal)
		fillCell(&existing.BuyFoil, record.BuyFoil)
		fillCell(&existing.BuyEtched, record.BuyEtched)
		fillCell(&existing.SellNormal, record.SellNormal)
		fillCell(&existing.SellFoil, record.SellFoil)
		fillCell(&existing.SellEtched, record.SellEtched)
	}
}

func fillCell(dst **decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = src
	}
}
