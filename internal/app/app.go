package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mtgprices/internal/alerting"
	"mtgprices/internal/archive"
	"mtgprices/internal/catalog"
	"mtgprices/internal/config"
	"mtgprices/internal/pipeline"
	"mtgprices/internal/providers"
	"mtgprices/internal/scheduler"
	"mtgprices/internal/service"
	"mtgprices/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newAdapters builds one adapter per enabled provider, ordered by the
// configured merge precedence.
func (a *App) newAdapters() []providers.Adapter {
	var adapters []providers.Adapter
	for _, name := range a.Config.Providers.Precedence {
		kind, err := providers.ParseKind(name)
		if err != nil {
			continue
		}
		cfg := a.Config.ProviderByKind(kind)
		if !cfg.Enabled {
			a.Logger.Info().Str("provider", name).Msg("provider disabled; skipping")
			continue
		}

		switch kind {
		case providers.KindCardKingdom:
			adapters = append(adapters, providers.NewCardKingdom(providers.CardKingdomOptions{
				BaseURL:        cfg.BaseURL,
				CallsPerSecond: cfg.CallsPerSecond,
				Timeout:        cfg.RequestTimeout,
				UserAgent:      cfg.UserAgent,
			}, a.Logger))
		case providers.KindTCGPlayer:
			adapters = append(adapters, providers.NewTCGPlayer(providers.TCGPlayerOptions{
				BaseURL:        cfg.BaseURL,
				ClientID:       cfg.ClientID,
				ClientSecret:   cfg.ClientSecret,
				CallsPerSecond: cfg.CallsPerSecond,
				Timeout:        cfg.RequestTimeout,
				UserAgent:      cfg.UserAgent,
			}, a.Logger))
		case providers.KindCardHoarder:
			adapters = append(adapters, providers.NewCardHoarder(providers.CardHoarderOptions{
				BaseURL:        cfg.BaseURL,
				CallsPerSecond: cfg.CallsPerSecond,
				Timeout:        cfg.RequestTimeout,
				UserAgent:      cfg.UserAgent,
			}, a.Logger))
		case providers.KindCardMarket:
			adapters = append(adapters, providers.NewCardMarket(providers.CardMarketOptions{
				BaseURL:        cfg.BaseURL,
				Token:          cfg.Token,
				CallsPerSecond: cfg.CallsPerSecond,
				Timeout:        cfg.RequestTimeout,
				UserAgent:      cfg.UserAgent,
			}, a.Logger))
		}
	}
	return adapters
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	orch := pipeline.New(a.newAdapters(), pipeline.Options{
		MaxConcurrent:   a.Config.Pipeline.MaxConcurrent,
		ProviderTimeout: a.Config.Pipeline.ProviderTimeout,
	}, a.Logger)

	manager := archive.NewManager(a.Config.Archive.RetentionMonths, a.Logger)

	loader := func() (*catalog.Catalog, error) {
		return catalog.Load(a.Config.Catalog.Path)
	}

	var snapshots storage.SnapshotStore
	var runs storage.RunStore
	var locker storage.AdvisoryLocker
	if store != nil {
		snapshots = store
		runs = store
		locker = store
	}

	return service.New(a.Config, sched, orch, loader, manager, snapshots, runs, locker, a.newNotifier(), a.Logger)
}

// Run executes the long-running aggregation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, sched)

	a.Logger.Info().Msg("starting aggregation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("aggregation service stopped")
	return nil
}

// RunOnce performs a single aggregation run and exits.
func (a *App) RunOnce(ctx context.Context, date time.Time) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	summary, err := svc.RunOnce(ctx, date)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("run_id", summary.Result.RunID).
		Int("records", len(summary.Result.TodayPrices)).
		Int("providers_failed", len(summary.Result.Failed())).
		Dur("duration", summary.Result.Duration).
		Msg("run completed")
	return nil
}

// ExportOptions hold parameters for exporting one card's price history.
type ExportOptions struct {
	UUID      string
	Finish    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// PruneOptions configure the manual retention pass.
type PruneOptions struct {
	DryRun bool
}
