package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionState mirrors the exchange trading phase a snapshot was taken in.
type SessionState string

const (
	SessionPre     SessionState = "PRE"
	SessionRegular SessionState = "REGULAR"
	SessionPost    SessionState = "POST"
	SessionClosed  SessionState = "CLOSED"
	SessionUnknown SessionState = "UNKNOWN"
)

// RuleType identifies which detection rule produced a candidate. The string
// values are what gets persisted in the alert log, so they must stay stable.
type RuleType string

const (
	RuleRelativeDrop RuleType = "RELATIVE_DROP"
	RuleDailyDrop    RuleType = "DAILY_ABSOLUTE_DROP"
	RuleHourlyDrop   RuleType = "HOURLY_DROP"
)

// Snapshot is one priced observation of one symbol at one instant. Immutable
// once constructed; PreviousClose may be zero when the upstream omits it.
type Snapshot struct {
	Symbol        string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	Session       SessionState
	ObservedAt    time.Time
}

// HasPreviousClose reports whether daily-change rules can be evaluated.
func (s Snapshot) HasPreviousClose() bool {
	return s.PreviousClose.IsPositive()
}

// DailyChangePercent computes (price - previousClose) / previousClose * 100
// at full precision. Callers must check HasPreviousClose first.
func (s Snapshot) DailyChangePercent() decimal.Decimal {
	return s.Price.Sub(s.PreviousClose).Div(s.PreviousClose).Mul(dec100)
}

// PriceObservation is a prior stored price for a symbol, as surfaced by the
// history repository.
type PriceObservation struct {
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Candidate is a rule-triggered anomaly before suppression is applied. It is
// produced fresh every cycle and never persisted directly.
type Candidate struct {
	Symbol             string
	Rule               RuleType
	ChangePercent      decimal.Decimal
	BenchmarkChangePct *decimal.Decimal
	RelativeChangePct  *decimal.Decimal
	CurrentPrice       decimal.Decimal
	ReferencePrice     decimal.Decimal
	ReferenceLabel     string
}

var dec100 = decimal.NewFromInt(100)
