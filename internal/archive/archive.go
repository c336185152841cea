// Package archive maintains the date-indexed price history and its
// retention pruning.
package archive

import (
	"time"

	"github.com/rs/zerolog"

	"mtgprices/internal/prices"
)

// DateFormat is the ISO 8601 day format used throughout the archive.
const DateFormat = "2006-01-02"

// Archive is the historical accumulation of snapshots: uuid -> date ->
// records observed that day (one per provider).
type Archive map[string]map[string][]prices.Record

// Report summarises one prune pass. Durable deletion is the storage layer's
// job; this report tells it what the cutoff was and what was dropped here.
type Report struct {
	Cutoff  time.Time
	Removed int
	Kept    int
	Status  string
}

// Manager merges daily snapshots into the archive and applies retention.
type Manager struct {
	retentionMonths int
	logger          zerolog.Logger
}

// NewManager constructs an archive manager with a retention window in months.
func NewManager(retentionMonths int, logger zerolog.Logger) *Manager {
	return &Manager{
		retentionMonths: retentionMonths,
		logger:          logger.With().Str("component", "archive").Logger(),
	}
}

// Integrate merges one day's snapshot into the archive. Re-running the same
// (date, provider) replaces that provider's entry for the day instead of
// duplicating it.
func (m *Manager) Integrate(arch Archive, snapshot prices.Snapshot, date string) {
	for uuid, record := range snapshot {
		days := arch[uuid]
		if days == nil {
			days = make(map[string][]prices.Record)
			arch[uuid] = days
		}

		existing := days[date]
		replaced := false
		for i, prior := range existing {
			if prior.Provider == record.Provider {
				existing[i] = *record.Clone()
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, *record.Clone())
		}
		days[date] = existing
	}
}

// Cutoff computes the retention boundary: months are a deliberately
// approximate 30 days each.
func (m *Manager) Cutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -m.retentionMonths*30)
}

// Prune removes archive entries dated strictly before the cutoff and
// reports what happened. Dates that fail to parse are kept.
func (m *Manager) Prune(arch Archive, now time.Time) Report {
	cutoff := m.Cutoff(now)
	report := Report{Cutoff: cutoff, Status: "complete"}

	for uuid, days := range arch {
		for date := range days {
			day, err := time.Parse(DateFormat, date)
			if err != nil {
				report.Kept++
				continue
			}
			if day.Before(cutoff) {
				delete(days, date)
				report.Removed++
			} else {
				report.Kept++
			}
		}
		if len(days) == 0 {
			delete(arch, uuid)
		}
	}

	m.logger.Info().Time("cutoff", cutoff).Int("removed", report.Removed).
		Int("kept", report.Kept).Msg("archive pruned")
	return report
}
