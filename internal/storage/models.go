package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"nasdaq-drop-alerts/internal/engine"
)

// HistoryEntry is one persisted price observation for a symbol. Entries are
// append-only and monotonically non-decreasing in ObservedAt per symbol.
type HistoryEntry struct {
	ID         int64
	Symbol     string
	Price      decimal.Decimal
	ObservedAt time.Time
	CreatedAt  time.Time
}

// Observation converts the entry to the engine's reference shape.
func (e HistoryEntry) Observation() engine.PriceObservation {
	return engine.PriceObservation{Price: e.Price, ObservedAt: e.ObservedAt}
}

// AlertRecord is one row of the append-only alert log. Delivered transitions
// false to true only after a successful notifier handoff and is never reset.
type AlertRecord struct {
	ID            int64
	Symbol        string
	RuleType      engine.RuleType
	Message       string
	ChangePercent decimal.Decimal
	CreatedAt     time.Time
	Delivered     bool
}

// FetchLog audits one collection cycle.
type FetchLog struct {
	ID               int64
	StartedAt        time.Time
	SymbolsRequested int
	SymbolsReturned  int
	HistoryWritten   int
	AlertsEmitted    int
	Error            *string
	DurationMS       int64
}
