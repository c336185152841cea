package archive

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mtgprices/internal/prices"
)

func snapshotFixture(provider string, sell float64) prices.Snapshot {
	price := decimal.NewFromFloat(sell)
	return prices.Snapshot{
		"uuid-1": &prices.Record{Provider: provider, Date: "2025-08-29", SellNormal: &price},
	}
}

func TestIntegrateAppendsProviders(t *testing.T) {
	manager := NewManager(3, zerolog.Nop())
	arch := make(Archive)

	manager.Integrate(arch, snapshotFixture("cardkingdom", 3.5), "2025-08-29")
	manager.Integrate(arch, snapshotFixture("cardmarket", 4.0), "2025-08-29")

	records := arch["uuid-1"]["2025-08-29"]
	if len(records) != 2 {
		t.Fatalf("expected records from both providers, got %d", len(records))
	}
}

func TestIntegrateReplacesSameProviderSameDay(t *testing.T) {
	manager := NewManager(3, zerolog.Nop())
	arch := make(Archive)

	manager.Integrate(arch, snapshotFixture("cardkingdom", 3.5), "2025-08-29")
	manager.Integrate(arch, snapshotFixture("cardkingdom", 5.0), "2025-08-29")

	records := arch["uuid-1"]["2025-08-29"]
	if len(records) != 1 {
		t.Fatalf("re-integration must replace, not duplicate: %d", len(records))
	}
	if !records[0].SellNormal.Equal(decimal.NewFromFloat(5.0)) {
		t.Fatalf("latest record should win: %+v", records[0])
	}
}

func TestPruneBoundary(t *testing.T) {
	now := time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC)
	manager := NewManager(1, zerolog.Nop())

	arch := Archive{
		"uuid-1": {
			now.AddDate(0, 0, -31).Format(DateFormat): {testRecord()},
			now.AddDate(0, 0, -29).Format(DateFormat): {testRecord()},
		},
	}

	report := manager.Prune(arch, now)

	if report.Removed != 1 {
		t.Fatalf("31-day-old entry should be removed: %+v", report)
	}
	if report.Kept != 1 {
		t.Fatalf("29-day-old entry should be kept: %+v", report)
	}
	if report.Status != "complete" {
		t.Fatalf("unexpected status %q", report.Status)
	}
	if want := now.AddDate(0, 0, -30); !report.Cutoff.Equal(want) {
		t.Fatalf("cutoff should be 30 days per month: got %s want %s", report.Cutoff, want)
	}
}

func TestPruneDropsEmptyUUIDs(t *testing.T) {
	now := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)
	manager := NewManager(1, zerolog.Nop())

	arch := Archive{
		"uuid-old": {"2024-01-01": {testRecord()}},
	}
	manager.Prune(arch, now)

	if _, ok := arch["uuid-old"]; ok {
		t.Fatal("uuids with no remaining history should be dropped")
	}
}

func TestPruneKeepsUnparseableDates(t *testing.T) {
	now := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)
	manager := NewManager(1, zerolog.Nop())

	arch := Archive{"uuid-1": {"not-a-date": {testRecord()}}}
	report := manager.Prune(arch, now)

	if report.Kept != 1 || report.Removed != 0 {
		t.Fatalf("unparseable dates must be kept: %+v", report)
	}
}

func testRecord() prices.Record {
	price := decimal.NewFromFloat(1.0)
	return prices.Record{Provider: "cardkingdom", SellNormal: &price}
}
