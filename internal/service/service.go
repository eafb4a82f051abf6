package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nasdaq-drop-alerts/internal/alerting"
	"nasdaq-drop-alerts/internal/config"
	"nasdaq-drop-alerts/internal/engine"
	"nasdaq-drop-alerts/internal/fetcher"
	"nasdaq-drop-alerts/internal/scheduler"
	"nasdaq-drop-alerts/internal/storage"
)

// SessionClock supplies the trading-phase signals the cycle needs. Injected
// so cycles are deterministic under a fixed clock in tests.
type SessionClock interface {
	State(now time.Time) engine.SessionState
	IsWeekday(now time.Time) bool
}

// Service orchestrates one collection cycle: fetch, persist, classify,
// suppress, emit, audit. Cross-cycle state (history, suppression) is
// read-modify-write and relies on a single writer per cycle; the advisory
// lock enforces that across processes.
type Service struct {
	scheduler  *scheduler.Scheduler
	fetch      fetcher.SnapshotFetcher
	history    storage.HistoryStore
	alertStore storage.AlertStore
	fetchLogs  storage.FetchLogStore
	notifier   alerting.Notifier
	clock      SessionClock
	classifier *engine.Classifier
	suppressor *engine.Suppressor
	logger     zerolog.Logger

	symbols   []string
	benchmark string
	cooldown  time.Duration
	alertsOn  bool
	locker    storage.AdvisoryLocker
	lockKey   int64
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, fetch fetcher.SnapshotFetcher, history storage.HistoryStore, alertStore storage.AlertStore, fetchLogs storage.FetchLogStore, notifier alerting.Notifier, clock SessionClock, logger zerolog.Logger) *Service {
	engineCfg := engine.Config{
		DropThresholdPct:         decimal.NewFromFloat(cfg.Alerting.DropThresholdPct),
		HourlyDropThresholdPct:   decimal.NewFromFloat(cfg.Alerting.HourlyDropThresholdPct),
		RelativeDropThresholdPct: decimal.NewFromFloat(cfg.Alerting.RelativeDropThresholdPct),
		MinPriceForAlert:         decimal.NewFromFloat(cfg.Alerting.MinPriceForAlert),
		MinAbsoluteMove:          decimal.NewFromFloat(cfg.Alerting.MinAbsoluteMove),
		BenchmarkSymbol:          cfg.Watchlist.BenchmarkSymbol,
	}

	var locker storage.AdvisoryLocker
	if l, ok := history.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		fetch:      fetch,
		history:    history,
		alertStore: alertStore,
		fetchLogs:  fetchLogs,
		notifier:   notifier,
		clock:      clock,
		classifier: engine.NewClassifier(engineCfg, logger),
		suppressor: engine.NewSuppressor(cfg.Alerting.Cooldown),
		logger:     logger.With().Str("component", "service").Logger(),
		symbols:    cfg.Watchlist.Symbols,
		benchmark:  cfg.Watchlist.BenchmarkSymbol,
		cooldown:   cfg.Alerting.Cooldown,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
	}
}

// Prime rebuilds the suppression index from the persisted alert log. Call
// once before the first cycle.
func (s *Service) Prime(ctx context.Context, now time.Time) error {
	if s.alertStore == nil || s.cooldown <= 0 {
		return nil
	}
	index, err := s.alertStore.LastFired(ctx, now.Add(-s.cooldown))
	if err != nil {
		return fmt.Errorf("rebuild suppression index: %w", err)
	}
	s.suppressor.Rehydrate(index)
	s.logger.Info().Int("entries", len(index)).Msg("suppression index rebuilt")
	return nil
}

// Run begins the scheduled collection loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if err := s.Prime(ctx, time.Now().UTC()); err != nil {
		return err
	}
	return s.scheduler.Run(ctx, s.RunCycle)
}

// RunCycle executes one complete pass for the given instant.
func (s *Service) RunCycle(ctx context.Context, now time.Time) error {
	if s.clock != nil && !s.clock.IsWeekday(now) {
		s.logger.Debug().Time("at", now).Msg("market closed today; cycle skipped")
		return nil
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", now).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	cycleID := uuid.NewString()
	logger := s.logger.With().Str("cycle_id", cycleID).Logger()
	started := time.Now()

	snapshots, err := s.fetch.FetchSnapshots(ctx, s.symbols)
	if err != nil {
		fetchErr := &FetchError{Err: err}
		logger.Error().Err(fetchErr).Msg("cycle aborted")
		s.audit(ctx, logger, storage.FetchLog{
			StartedAt:        now.UTC(),
			SymbolsRequested: len(s.symbols),
			Error:            errString(fetchErr),
			DurationMS:       time.Since(started).Milliseconds(),
		})
		return fetchErr
	}

	snapshots = s.resolveSessions(snapshots, now)

	written := 0
	classifiable := make([]engine.Snapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if s.history == nil {
			classifiable = append(classifiable, snap)
			continue
		}
		stored, err := s.history.RecordIfChanged(ctx, snap.Symbol, snap.Price, snap.ObservedAt)
		if err != nil {
			persistErr := &PersistenceError{Symbol: snap.Symbol, Err: err}
			logger.Error().Err(persistErr).Msg("symbol excluded from classification")
			continue
		}
		if stored {
			written++
		}
		classifiable = append(classifiable, snap)
	}

	emitted := 0
	if s.alertsOn {
		benchmark, confident := engine.BenchmarkChange(classifiable, s.benchmark)
		if !confident {
			logger.Warn().Str("benchmark", s.benchmark).Msg("benchmark missing from batch; relative rule degraded")
		}

		candidates := s.classifier.Classify(ctx, classifiable, s.historyReader(), benchmark, confident)
		survivors := s.suppressor.Filter(candidates, now)
		if suppressed := len(candidates) - len(survivors); suppressed > 0 {
			logger.Info().Int("suppressed", suppressed).Msg("candidates inside cooldown")
		}

		emitted = s.emit(ctx, logger, survivors, cycleID, now)
	}

	logger.Info().
		Int("snapshots", len(snapshots)).
		Int("history_written", written).
		Int("alerts_emitted", emitted).
		Msg("cycle complete")

	s.audit(ctx, logger, storage.FetchLog{
		StartedAt:        now.UTC(),
		SymbolsRequested: len(s.symbols),
		SymbolsReturned:  len(snapshots),
		HistoryWritten:   written,
		AlertsEmitted:    emitted,
		DurationMS:       time.Since(started).Milliseconds(),
	})
	return nil
}

// emit turns surviving candidates into alert records and one batched
// notification. Every record is created before delivery is attempted; a
// delivery failure leaves them persisted with delivered=false.
func (s *Service) emit(ctx context.Context, logger zerolog.Logger, survivors []engine.Candidate, cycleID string, now time.Time) int {
	if len(survivors) == 0 {
		return 0
	}

	ids := make([]int64, 0, len(survivors))
	messages := make([]alerting.Alert, 0, len(survivors))
	for _, cand := range survivors {
		message := candidateMessage(cand)
		createdAt := now.UTC()
		if s.alertStore != nil {
			rec, err := s.alertStore.InsertAlert(ctx, storage.AlertRecord{
				Symbol:        cand.Symbol,
				RuleType:      cand.Rule,
				Message:       message,
				ChangePercent: cand.ChangePercent.Round(2),
				CreatedAt:     createdAt,
			})
			if err != nil {
				logger.Error().Err(&PersistenceError{Symbol: cand.Symbol, Err: err}).Msg("alert record not persisted; not emitted")
				continue
			}
			createdAt = rec.CreatedAt
			ids = append(ids, rec.ID)
		}
		s.suppressor.MarkFired(cand.Symbol, cand.Rule, createdAt)

		messages = append(messages, alerting.Alert{
			Symbol:         cand.Symbol,
			Rule:           cand.Rule,
			Message:        message,
			ChangePercent:  cand.ChangePercent.Round(2),
			CurrentPrice:   cand.CurrentPrice,
			ReferencePrice: cand.ReferencePrice,
			ReferenceLabel: cand.ReferenceLabel,
		})
	}

	if len(messages) == 0 || s.notifier == nil {
		return 0
	}

	note := alerting.Notification{
		Subject:   fmt.Sprintf("NASDAQ Alert: %d abnormal drop(s)", len(messages)),
		CycleID:   cycleID,
		CreatedAt: now.UTC(),
		Alerts:    messages,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(&DeliveryError{Err: err}).Msg("alerts recorded but undelivered")
		return 0
	}

	if s.alertStore != nil {
		if err := s.alertStore.MarkAlertsDelivered(ctx, ids); err != nil {
			logger.Error().Err(err).Msg("failed to mark alerts delivered")
		}
	}
	return len(messages)
}

// resolveSessions fills in the session phase from the injected clock when
// the upstream did not report one.
func (s *Service) resolveSessions(snapshots []engine.Snapshot, now time.Time) []engine.Snapshot {
	if s.clock == nil {
		return snapshots
	}
	for i := range snapshots {
		if snapshots[i].Session == engine.SessionUnknown || snapshots[i].Session == "" {
			snapshots[i].Session = s.clock.State(now)
		}
	}
	return snapshots
}

func (s *Service) historyReader() engine.HistoryReader {
	if s.history == nil {
		return nil
	}
	return historyReader{store: s.history}
}

// historyReader adapts the storage contract to the engine's reference shape.
type historyReader struct {
	store storage.HistoryStore
}

func (r historyReader) LatestBefore(ctx context.Context, symbol string, cutoff time.Time) (engine.PriceObservation, bool, error) {
	entry, found, err := r.store.LatestBefore(ctx, symbol, cutoff)
	if err != nil || !found {
		return engine.PriceObservation{}, false, err
	}
	return entry.Observation(), true, nil
}

func (s *Service) audit(ctx context.Context, logger zerolog.Logger, entry storage.FetchLog) {
	if s.fetchLogs == nil {
		return
	}
	if err := s.fetchLogs.InsertFetchLog(ctx, entry); err != nil {
		logger.Error().Err(err).Msg("failed to write fetch log")
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

// candidateMessage renders the human-readable explanation stored on the
// alert record. Percentages are rounded here, at the boundary.
func candidateMessage(cand engine.Candidate) string {
	switch cand.Rule {
	case engine.RuleRelativeDrop:
		return fmt.Sprintf("%s fell %s%% vs %s while the market moved %s%% (relative %s%%)",
			cand.Symbol,
			cand.ChangePercent.Round(2),
			cand.ReferenceLabel,
			cand.BenchmarkChangePct.Round(2),
			cand.RelativeChangePct.Round(2),
		)
	case engine.RuleDailyDrop:
		return fmt.Sprintf("%s fell %s%% vs %s with the market roughly flat",
			cand.Symbol,
			cand.ChangePercent.Round(2),
			cand.ReferenceLabel,
		)
	case engine.RuleHourlyDrop:
		return fmt.Sprintf("%s fell %s%% since the last observation (%s)",
			cand.Symbol,
			cand.ChangePercent.Round(2),
			cand.ReferenceLabel,
		)
	default:
		return fmt.Sprintf("%s moved %s%%", cand.Symbol, cand.ChangePercent.Round(2))
	}
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
