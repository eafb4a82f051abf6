package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"nasdaq-drop-alerts/internal/alerting"
	"nasdaq-drop-alerts/internal/config"
	"nasdaq-drop-alerts/internal/fetcher"
	"nasdaq-drop-alerts/internal/marketclock"
	"nasdaq-drop-alerts/internal/scheduler"
	"nasdaq-drop-alerts/internal/service"
	"nasdaq-drop-alerts/internal/storage"
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

func (a *App) newFetcher() fetcher.SnapshotFetcher {
	return fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:         a.Config.Market.BaseURL,
		Timeout:         a.Config.Market.RequestTimeout,
		UserAgent:       a.Config.Market.UserAgent,
		RequestsPerSec:  a.Config.Market.RequestsPerSec,
		MaxRetryElapsed: a.Config.Market.MaxRetryElapsed,
	}, a.Logger)
}

func (a *App) newClock() (*marketclock.Clock, error) {
	return marketclock.New(marketclock.Options{
		Timezone: a.Config.Session.Timezone,
		Holidays: a.Config.Session.Holidays,
	})
}

func (a *App) newNotifier() alerting.Notifier {
	channels := make([]alerting.Notifier, 0, 2)
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		channels = append(channels, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	if a.Config.Alerting.Email.Enabled {
		cfg := a.Config.Alerting.Email
		channels = append(channels, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     cfg.Host,
			Port:     cfg.Port,
			From:     cfg.From,
			To:       cfg.To,
			Password: cfg.Password,
		}, a.Logger))
	}

	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	default:
		return alerting.NewMulti(a.Logger, channels...)
	}
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

func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) (*service.Service, error) {
	clock, err := a.newClock()
	if err != nil {
		return nil, err
	}

	var history storage.HistoryStore
	var alertStore storage.AlertStore
	var fetchLogs storage.FetchLogStore
	if store != nil {
		history = store
		alertStore = store
		fetchLogs = store
	}

	return service.New(
		a.Config,
		sched,
		a.newFetcher(),
		history,
		alertStore,
		fetchLogs,
		a.newNotifier(),
		clock,
		a.Logger,
	), nil
}

// Run executes the long-running monitoring service.
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
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc, err := a.newService(store, sched)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Once executes exactly one collection cycle, the way a cron invocation
// would, and exits.
func (a *App) Once(ctx context.Context) error {
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

	svc, err := a.newService(store, nil)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := svc.Prime(ctx, now); err != nil {
		return err
	}
	return svc.RunCycle(ctx, now)
}

// ShowOptions configure the show command.
type ShowOptions struct {
	AlertLimit int
	CycleLimit int
}

// ExportOptions hold parameters for exporting a symbol's price history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions feed a synthetic snapshot through the live pipeline.
type SimulateOptions struct {
	Symbol          string
	Price           float64
	PreviousClose   float64
	BenchmarkChange float64
}
