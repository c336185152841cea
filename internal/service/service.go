package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mtgprices/internal/alerting"
	"mtgprices/internal/archive"
	"mtgprices/internal/catalog"
	"mtgprices/internal/config"
	"mtgprices/internal/pipeline"
	"mtgprices/internal/scheduler"
	"mtgprices/internal/storage"
)

// CatalogLoader supplies the canonical catalog for one run.
type CatalogLoader func() (*catalog.Catalog, error)

// RunSummary is what one completed run hands back to callers.
type RunSummary struct {
	Result pipeline.Result
	Prune  archive.Report
}

// Service drives scheduled aggregation runs: fetch, merge, persist, prune,
// report.
type Service struct {
	scheduler    *scheduler.Scheduler
	orchestrator *pipeline.Orchestrator
	loadCatalog  CatalogLoader
	manager      *archive.Manager
	snapshots    storage.SnapshotStore
	runs         storage.RunStore
	locker       storage.AdvisoryLocker
	notifier     alerting.Notifier
	logger       zerolog.Logger

	channels []string
	alertsOn bool
	lockKey  int64
}

// New constructs the aggregation service.
func New(cfg *config.Config, sched *scheduler.Scheduler, orch *pipeline.Orchestrator, loader CatalogLoader, manager *archive.Manager, snapshots storage.SnapshotStore, runs storage.RunStore, locker storage.AdvisoryLocker, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:    sched,
		orchestrator: orch,
		loadCatalog:  loader,
		manager:      manager,
		snapshots:    snapshots,
		runs:         runs,
		locker:       locker,
		notifier:     notifier,
		logger:       logger.With().Str("component", "service").Logger(),
		channels:     cfg.Alerting.Channels,
		alertsOn:     cfg.Alerting.Enabled,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned run loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket executes one scheduled run window under the advisory lock.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.RunOnce(ctx, bucket)
	return err
}

// RunOnce performs a single full aggregation run for the given day.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (RunSummary, error) {
	cat, err := s.loadCatalog()
	if err != nil {
		return RunSummary{}, fmt.Errorf("load catalog: %w", err)
	}
	s.logger.Info().Int("cards", cat.CardCount()).Msg("catalog loaded")

	date := now.UTC().Format(archive.DateFormat)
	result := s.orchestrator.Run(ctx, cat, date)

	if s.snapshots != nil {
		s.persistSnapshots(ctx, result, now)
	}

	report := s.applyRetention(ctx, result, now)

	if s.runs != nil {
		s.recordRun(ctx, result, now)
	}

	s.notifyFailures(ctx, result, now)

	return RunSummary{Result: result, Prune: report}, nil
}

// persistSnapshots stores each successful provider's contribution.
func (s *Service) persistSnapshots(ctx context.Context, result pipeline.Result, now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	for _, outcome := range result.Outcomes {
		if outcome.Err != nil || len(outcome.Snapshot) == 0 {
			continue
		}
		row := storage.SnapshotRow{
			PriceDate: day,
			Provider:  string(outcome.Provider),
			Records:   outcome.Snapshot,
		}
		if err := s.snapshots.UpsertSnapshot(ctx, row); err != nil {
			s.logger.Error().Err(err).Str("provider", string(outcome.Provider)).
				Msg("failed to persist provider snapshot")
		}
	}
}

// applyRetention rebuilds the archive from storage, folds in today's
// snapshot, prunes it, and pushes the durable delete through the store.
func (s *Service) applyRetention(ctx context.Context, result pipeline.Result, now time.Time) archive.Report {
	cutoff := s.manager.Cutoff(now)

	arch := make(archive.Archive)
	if s.snapshots != nil {
		rows, err := s.snapshots.ListSnapshotsSince(ctx, cutoff)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to load archived snapshots")
		} else {
			for _, row := range rows {
				s.manager.Integrate(arch, row.Records, row.PriceDate.UTC().Format(archive.DateFormat))
			}
		}
	}
	s.manager.Integrate(arch, result.ArchivePrices, result.Date)

	report := s.manager.Prune(arch, now)

	if s.snapshots != nil {
		deleted, err := s.snapshots.DeleteSnapshotsBefore(ctx, cutoff)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to delete expired snapshots")
		} else if deleted > 0 {
			s.logger.Info().Int64("rows", deleted).Time("cutoff", cutoff).Msg("expired snapshots deleted")
		}
	}
	return report
}

func (s *Service) recordRun(ctx context.Context, result pipeline.Result, now time.Time) {
	providerNames := make([]string, 0, len(result.Outcomes))
	var failed []string
	for _, outcome := range result.Outcomes {
		providerNames = append(providerNames, string(outcome.Provider))
		if outcome.Err != nil {
			failed = append(failed, string(outcome.Provider))
		}
	}

	record := storage.RunRecord{
		RunID:     result.RunID,
		RunDate:   now.UTC().Truncate(24 * time.Hour),
		Providers: providerNames,
		Failed:    failed,
		Records:   len(result.TodayPrices),
		Duration:  result.Duration,
	}
	if _, err := s.runs.InsertRun(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("failed to persist run record")
	}
}

func (s *Service) notifyFailures(ctx context.Context, result pipeline.Result, now time.Time) {
	failed := result.Failed()
	if !s.alertsOn || s.notifier == nil || len(failed) == 0 {
		return
	}

	failures := make(map[string]string, len(failed))
	providerNames := make([]string, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		providerNames = append(providerNames, string(outcome.Provider))
	}
	for _, outcome := range failed {
		failures[string(outcome.Provider)] = outcome.Err.Error()
	}

	note := alerting.Notification{
		RunID:     result.RunID,
		RunDate:   now.UTC(),
		Records:   len(result.TodayPrices),
		Providers: providerNames,
		Failed:    failures,
		Duration:  result.Duration,
		Channels:  s.channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("failed to dispatch run report")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
