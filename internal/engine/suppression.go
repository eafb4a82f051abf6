package engine

import (
	"time"
)

// FiredKey identifies one (symbol, rule) suppression slot. Distinct rules for
// the same symbol cool down independently.
type FiredKey struct {
	Symbol string
	Rule   RuleType
}

// Suppressor gates candidates behind a per-(symbol, rule) cooldown. It is an
// in-memory projection of the append-only alert log: rebuilt via Rehydrate at
// startup, advanced via MarkFired as alerts are recorded. It is owned by the
// single cycle writer and is not safe for concurrent use.
type Suppressor struct {
	cooldown  time.Duration
	lastFired map[FiredKey]time.Time
}

// NewSuppressor constructs a Suppressor with the given cooldown.
func NewSuppressor(cooldown time.Duration) *Suppressor {
	return &Suppressor{
		cooldown:  cooldown,
		lastFired: make(map[FiredKey]time.Time),
	}
}

// Rehydrate seeds the index from persisted last-fired timestamps, keeping the
// most recent timestamp when called more than once.
func (s *Suppressor) Rehydrate(index map[FiredKey]time.Time) {
	for key, at := range index {
		if existing, ok := s.lastFired[key]; ok && existing.After(at) {
			continue
		}
		s.lastFired[key] = at
	}
}

// ShouldEmit reports whether the (symbol, rule) pair is outside its cooldown
// at the given instant.
func (s *Suppressor) ShouldEmit(symbol string, rule RuleType, now time.Time) bool {
	at, ok := s.lastFired[FiredKey{Symbol: symbol, Rule: rule}]
	if !ok {
		return true
	}
	return now.Sub(at) >= s.cooldown
}

// MarkFired records an emission for the pair.
func (s *Suppressor) MarkFired(symbol string, rule RuleType, at time.Time) {
	s.lastFired[FiredKey{Symbol: symbol, Rule: rule}] = at
}

// Filter returns the candidates that survive suppression. It does not mark
// them fired; that happens only after the alert record is created.
func (s *Suppressor) Filter(candidates []Candidate, now time.Time) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if s.ShouldEmit(cand.Symbol, cand.Rule, now) {
			kept = append(kept, cand)
		}
	}
	return kept
}
