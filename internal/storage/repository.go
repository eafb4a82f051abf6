package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"nasdaq-drop-alerts/internal/engine"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// priceEpsilon is the near-duplicate window: a new observation within this
// absolute distance of the last stored price is not persisted, keeping
// history density proportional to actual movement rather than poll cadence.
var priceEpsilon = decimal.NewFromFloat(0.001)

const (
	selectLastPriceForUpdateSQL = `SELECT price
    FROM price_history
    WHERE symbol = $1
    ORDER BY observed_at DESC, id DESC
    LIMIT 1
    FOR UPDATE;`

	insertHistorySQL = `INSERT INTO price_history (
        symbol,
        price,
        observed_at
    ) VALUES (
        $1,$2,$3
    );`

	latestBeforeSQL = `SELECT
        id,
        symbol,
        price,
        observed_at,
        created_at
    FROM price_history
    WHERE symbol = $1
      AND observed_at < $2
    ORDER BY observed_at DESC, id DESC
    LIMIT 1;`

	listHistorySQL = `SELECT
        id,
        symbol,
        price,
        observed_at,
        created_at
    FROM price_history
    WHERE symbol = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	insertAlertSQL = `INSERT INTO alerts (
        symbol,
        rule_type,
        message,
        change_percent,
        created_at,
        delivered
    ) VALUES (
        $1,$2,$3,$4,$5,FALSE
    )
    RETURNING id, symbol, rule_type, message, change_percent, created_at, delivered;`

	markAlertsDeliveredSQL = `UPDATE alerts
    SET delivered = TRUE
    WHERE id = ANY($1);`

	listRecentAlertsSQL = `SELECT
        id,
        symbol,
        rule_type,
        message,
        change_percent,
        created_at,
        delivered
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	lastFiredSQL = `SELECT
        symbol,
        rule_type,
        MAX(created_at)
    FROM alerts
    WHERE created_at >= $1
    GROUP BY symbol, rule_type;`

	insertFetchLogSQL = `INSERT INTO fetch_logs (
        started_at,
        symbols_requested,
        symbols_returned,
        history_written,
        alerts_emitted,
        error,
        duration_ms
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	listRecentFetchLogsSQL = `SELECT
        id,
        started_at,
        symbols_requested,
        symbols_returned,
        history_written,
        alerts_emitted,
        error,
        duration_ms
    FROM fetch_logs
    ORDER BY started_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// HistoryStore defines operations for the per-symbol price history.
type HistoryStore interface {
	RecordIfChanged(ctx context.Context, symbol string, price decimal.Decimal, observedAt time.Time) (stored bool, err error)
	LatestBefore(ctx context.Context, symbol string, cutoff time.Time) (HistoryEntry, bool, error)
	ListHistory(ctx context.Context, symbol string, from, to time.Time) ([]HistoryEntry, error)
}

// AlertStore defines operations for the append-only alert log.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	MarkAlertsDelivered(ctx context.Context, ids []int64) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	LastFired(ctx context.Context, since time.Time) (map[engine.FiredKey]time.Time, error)
}

// FetchLogStore defines operations for cycle auditing.
type FetchLogStore interface {
	InsertFetchLog(ctx context.Context, entry FetchLog) error
	ListRecentFetchLogs(ctx context.Context, limit int) ([]FetchLog, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to price history, alerts, and fetch logs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// RecordIfChanged appends a history entry unless the price is within epsilon
// of the last stored price for the symbol. The read-then-insert pair runs in
// one transaction so it stays atomic per symbol if cycles ever overlap.
func (s *Store) RecordIfChanged(ctx context.Context, symbol string, price decimal.Decimal, observedAt time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var lastStr string
	scanErr := tx.QueryRow(ctx, selectLastPriceForUpdateSQL, symbol).Scan(&lastStr)
	switch {
	case scanErr == nil:
		last, convErr := decimal.NewFromString(lastStr)
		if convErr != nil {
			return false, fmt.Errorf("parse last price: %w", convErr)
		}
		if price.Sub(last).Abs().LessThan(priceEpsilon) {
			return false, nil
		}
	case errors.Is(scanErr, pgx.ErrNoRows):
		// first observation for the symbol
	default:
		return false, fmt.Errorf("select last price: %w", scanErr)
	}

	if _, execErr := tx.Exec(ctx, insertHistorySQL, symbol, price.String(), observedAt); execErr != nil {
		return false, fmt.Errorf("insert history entry: %w", execErr)
	}
	if commitErr := tx.Commit(ctx); commitErr != nil {
		return false, fmt.Errorf("commit history tx: %w", commitErr)
	}
	return true, nil
}

// LatestBefore returns the most recent entry strictly before the cutoff.
func (s *Store) LatestBefore(ctx context.Context, symbol string, cutoff time.Time) (HistoryEntry, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return HistoryEntry{}, false, err
	}

	rows, queryErr := pool.Query(ctx, latestBeforeSQL, symbol, cutoff)
	if queryErr != nil {
		return HistoryEntry{}, false, fmt.Errorf("latest before: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return HistoryEntry{}, false, rows.Err()
	}
	entry, scanErr := scanHistoryEntry(rows)
	if scanErr != nil {
		return HistoryEntry{}, false, scanErr
	}
	return entry, true, nil
}

// ListHistory lists entries for a symbol within [from, to).
func (s *Store) ListHistory(ctx context.Context, symbol string, from, to time.Time) ([]HistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistorySQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list history: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		entry, scanErr := scanHistoryEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// InsertAlert appends an alert record with delivered=false.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Symbol,
		string(alert.RuleType),
		alert.Message,
		alert.ChangePercent.String(),
		createdAt,
	)

	rec, scanErr := scanAlertRecord(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// MarkAlertsDelivered flips delivered=true for the given alert ids.
func (s *Store) MarkAlertsDelivered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markAlertsDeliveredSQL, ids); execErr != nil {
		return fmt.Errorf("mark alerts delivered: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlertRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// LastFired projects the alert log into last-fired-per-(symbol, rule),
// considering only records at or after the given instant. The suppressor is
// rehydrated from this at startup.
func (s *Store) LastFired(ctx context.Context, since time.Time) (map[engine.FiredKey]time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, lastFiredSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("last fired: %w", queryErr)
	}
	defer rows.Close()

	index := make(map[engine.FiredKey]time.Time)
	for rows.Next() {
		var symbol, ruleType string
		var at time.Time
		if err := rows.Scan(&symbol, &ruleType, &at); err != nil {
			return nil, err
		}
		index[engine.FiredKey{Symbol: symbol, Rule: engine.RuleType(ruleType)}] = at
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return index, nil
}

// InsertFetchLog appends one cycle audit row.
func (s *Store) InsertFetchLog(ctx context.Context, entry FetchLog) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if entry.Error != nil {
		errMsg = *entry.Error
	}

	if _, execErr := pool.Exec(ctx, insertFetchLogSQL,
		entry.StartedAt,
		entry.SymbolsRequested,
		entry.SymbolsReturned,
		entry.HistoryWritten,
		entry.AlertsEmitted,
		errMsg,
		entry.DurationMS,
	); execErr != nil {
		return fmt.Errorf("insert fetch log: %w", execErr)
	}
	return nil
}

// ListRecentFetchLogs lists the most recent cycle audits.
func (s *Store) ListRecentFetchLogs(ctx context.Context, limit int) ([]FetchLog, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentFetchLogsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent fetch logs: %w", queryErr)
	}
	defer rows.Close()

	logs := make([]FetchLog, 0, limit)
	for rows.Next() {
		var entry FetchLog
		var errMsg sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.StartedAt,
			&entry.SymbolsRequested,
			&entry.SymbolsReturned,
			&entry.HistoryWritten,
			&entry.AlertsEmitted,
			&errMsg,
			&entry.DurationMS,
		); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			msg := errMsg.String
			entry.Error = &msg
		}
		logs = append(logs, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return logs, nil
}

func scanHistoryEntry(rows pgx.Rows) (HistoryEntry, error) {
	var (
		entry    HistoryEntry
		priceStr string
	)
	if err := rows.Scan(
		&entry.ID,
		&entry.Symbol,
		&priceStr,
		&entry.ObservedAt,
		&entry.CreatedAt,
	); err != nil {
		return HistoryEntry{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("parse stored price: %w", err)
	}
	entry.Price = price
	return entry, nil
}

func scanAlertRecord(row pgx.Row) (AlertRecord, error) {
	var (
		rec       AlertRecord
		ruleType  string
		changeStr string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Symbol,
		&ruleType,
		&rec.Message,
		&changeStr,
		&rec.CreatedAt,
		&rec.Delivered,
	); err != nil {
		return AlertRecord{}, err
	}

	change, err := decimal.NewFromString(changeStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse change percent: %w", err)
	}
	rec.RuleType = engine.RuleType(ruleType)
	rec.ChangePercent = change
	return rec, nil
}
