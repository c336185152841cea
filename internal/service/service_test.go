package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mtgprices/internal/alerting"
	"mtgprices/internal/archive"
	"mtgprices/internal/catalog"
	"mtgprices/internal/config"
	"mtgprices/internal/pipeline"
	"mtgprices/internal/prices"
	"mtgprices/internal/providers"
	"mtgprices/internal/storage"
)

type fakeAdapter struct {
	kind     providers.Kind
	snapshot prices.Snapshot
	err      error
}

func (f *fakeAdapter) Kind() providers.Kind { return f.kind }
func (f *fakeAdapter) Headers() http.Header { return http.Header{} }
func (f *fakeAdapter) Prices(context.Context, *catalog.Catalog, string) (prices.Snapshot, error) {
	return f.snapshot, f.err
}

type memoryStore struct {
	mu      sync.Mutex
	rows    []storage.SnapshotRow
	runs    []storage.RunRecord
	deleted []time.Time
}

func (m *memoryStore) UpsertSnapshot(_ context.Context, row storage.SnapshotRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *memoryStore) ListSnapshotsSince(_ context.Context, from time.Time) ([]storage.SnapshotRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.SnapshotRow
	for _, row := range m.rows {
		if !row.PriceDate.Before(from) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryStore) DeleteSnapshotsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, cutoff)
	return 0, nil
}

func (m *memoryStore) CountSnapshots(context.Context) (int64, error) {
	return int64(len(m.rows)), nil
}

func (m *memoryStore) InsertRun(_ context.Context, run storage.RunRecord) (storage.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memoryStore) ListRecentRuns(context.Context, int) ([]storage.RunRecord, error) {
	return m.runs, nil
}

type captureNotifier struct {
	notes []alerting.Notification
}

func (c *captureNotifier) Notify(_ context.Context, note alerting.Notification) error {
	c.notes = append(c.notes, note)
	return nil
}

func snapshotWith(uuid string, sell float64) prices.Snapshot {
	price := decimal.NewFromFloat(sell)
	return prices.Snapshot{uuid: &prices.Record{Provider: "cardkingdom", SellNormal: &price}}
}

func newTestService(adapters []providers.Adapter, store *memoryStore, notifier alerting.Notifier) *Service {
	cfg := &config.Config{}
	cfg.Alerting.Enabled = true
	cfg.Alerting.Channels = []string{"telegram"}

	orch := pipeline.New(adapters, pipeline.Options{}, zerolog.Nop())
	manager := archive.NewManager(1, zerolog.Nop())
	loader := func() (*catalog.Catalog, error) { return &catalog.Catalog{}, nil }

	return New(cfg, nil, orch, loader, manager, store, store, nil, notifier, zerolog.Nop())
}

func TestRunOncePersistsProviderSnapshots(t *testing.T) {
	store := &memoryStore{}
	adapters := []providers.Adapter{
		&fakeAdapter{kind: providers.KindCardKingdom, snapshot: snapshotWith("uuid-1", 3.5)},
		&fakeAdapter{kind: providers.KindCardHoarder, snapshot: snapshotWith("uuid-2", 0.04)},
	}

	svc := newTestService(adapters, store, nil)
	summary, err := svc.RunOnce(context.Background(), time.Date(2025, 8, 29, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(store.rows) != 2 {
		t.Fatalf("expected one snapshot row per provider, got %d", len(store.rows))
	}
	if len(store.runs) != 1 {
		t.Fatalf("run record should be persisted: %v", store.runs)
	}
	if store.runs[0].Records != 2 {
		t.Fatalf("run record should carry merged count: %+v", store.runs[0])
	}
	if summary.Prune.Status != "complete" {
		t.Fatalf("prune report missing: %+v", summary.Prune)
	}
	if len(store.deleted) != 1 {
		t.Fatal("durable delete should be issued once per run")
	}
}

func TestRunOnceNotifiesOnProviderFailure(t *testing.T) {
	store := &memoryStore{}
	notifier := &captureNotifier{}
	adapters := []providers.Adapter{
		&fakeAdapter{kind: providers.KindCardKingdom, snapshot: snapshotWith("uuid-1", 3.5)},
		&fakeAdapter{kind: providers.KindTCGPlayer, err: errors.New("token request rejected")},
	}

	svc := newTestService(adapters, store, notifier)
	if _, err := svc.RunOnce(context.Background(), time.Now()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(notifier.notes) != 1 {
		t.Fatalf("one run report expected, got %d", len(notifier.notes))
	}
	note := notifier.notes[0]
	if note.Failed["tcgplayer"] == "" {
		t.Fatalf("failure summary missing: %+v", note.Failed)
	}
	// Failed provider contributes no snapshot row.
	if len(store.rows) != 1 {
		t.Fatalf("failed providers must not persist snapshots: %d", len(store.rows))
	}
}

func TestRunOnceNoNotificationWhenHealthy(t *testing.T) {
	notifier := &captureNotifier{}
	adapters := []providers.Adapter{
		&fakeAdapter{kind: providers.KindCardKingdom, snapshot: snapshotWith("uuid-1", 3.5)},
	}

	svc := newTestService(adapters, &memoryStore{}, notifier)
	if _, err := svc.RunOnce(context.Background(), time.Now()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatalf("healthy runs should not alert: %v", notifier.notes)
	}
}

func TestRunOnceCatalogFailureIsFatal(t *testing.T) {
	cfg := &config.Config{}
	orch := pipeline.New(nil, pipeline.Options{}, zerolog.Nop())
	manager := archive.NewManager(1, zerolog.Nop())
	loader := func() (*catalog.Catalog, error) { return nil, errors.New("no such file") }

	svc := New(cfg, nil, orch, loader, manager, nil, nil, nil, nil, zerolog.Nop())
	if _, err := svc.RunOnce(context.Background(), time.Now()); err == nil {
		t.Fatal("catalog load failure must abort the run")
	}
}

func TestRunOnceWithoutStoreStillCompletes(t *testing.T) {
	adapters := []providers.Adapter{
		&fakeAdapter{kind: providers.KindCardKingdom, snapshot: snapshotWith("uuid-1", 3.5)},
	}
	cfg := &config.Config{}
	orch := pipeline.New(adapters, pipeline.Options{}, zerolog.Nop())
	manager := archive.NewManager(1, zerolog.Nop())
	loader := func() (*catalog.Catalog, error) { return &catalog.Catalog{}, nil }

	svc := New(cfg, nil, orch, loader, manager, nil, nil, nil, nil, zerolog.Nop())
	summary, err := svc.RunOnce(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("persistence-free runs must still work: %v", err)
	}
	if len(summary.Result.TodayPrices) != 1 {
		t.Fatalf("merged snapshot missing: %v", summary.Result.TodayPrices)
	}
}
