package storage

import (
	"time"

	"mtgprices/internal/prices"
)

// SnapshotRow is one provider's persisted day snapshot.
type SnapshotRow struct {
	PriceDate time.Time
	Provider  string
	Records   prices.Snapshot
	CreatedAt time.Time
}

// RunRecord audits one completed aggregation run.
type RunRecord struct {
	ID        int64
	RunID     string
	RunDate   time.Time
	Providers []string
	Failed    []string
	Records   int
	Duration  time.Duration
	CreatedAt time.Time
}
