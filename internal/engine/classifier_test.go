package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeHistory struct {
	entries map[string]PriceObservation
	err     error
}

func (f fakeHistory) LatestBefore(ctx context.Context, symbol string, cutoff time.Time) (PriceObservation, bool, error) {
	if f.err != nil {
		return PriceObservation{}, false, f.err
	}
	obs, ok := f.entries[symbol]
	if !ok || !obs.ObservedAt.Before(cutoff) {
		return PriceObservation{}, false, nil
	}
	return obs, true, nil
}

func testClassifier() *Classifier {
	return NewClassifier(DefaultConfig(), zerolog.Nop())
}

func snap(symbol string, price, previousClose float64) Snapshot {
	return Snapshot{
		Symbol:        symbol,
		Price:         decimal.NewFromFloat(price),
		PreviousClose: decimal.NewFromFloat(previousClose),
		Session:       SessionRegular,
		ObservedAt:    time.Date(2026, 8, 19, 15, 0, 0, 0, time.UTC),
	}
}

func classify(t *testing.T, c *Classifier, snapshots []Snapshot, history HistoryReader, benchmark float64, confident bool) []Candidate {
	t.Helper()
	return c.Classify(context.Background(), snapshots, history, decimal.NewFromFloat(benchmark), confident)
}

func TestRelativeDropFires(t *testing.T) {
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 94, 100)}, fakeHistory{}, -0.5, true)

	if len(candidates) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(candidates))
	}
	cand := candidates[0]
	if cand.Rule != RuleRelativeDrop {
		t.Fatalf("expected RELATIVE_DROP, got %s", cand.Rule)
	}
	if !cand.ChangePercent.Equal(decimal.NewFromFloat(-6)) {
		t.Fatalf("expected change -6, got %s", cand.ChangePercent)
	}
	if cand.RelativeChangePct == nil || !cand.RelativeChangePct.Equal(decimal.NewFromFloat(-5.5)) {
		t.Fatalf("expected relative -5.5, got %v", cand.RelativeChangePct)
	}
}

func TestMarketWideSelloffProducesNothing(t *testing.T) {
	// daily -6 with benchmark -6: relative is zero, and the absolute rule's
	// flat-market condition fails too.
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 94, 100)}, fakeHistory{}, -6, true)

	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
}

func TestRelativeWinsOverDaily(t *testing.T) {
	// daily -6 with benchmark 0 satisfies both daily rules; precedence keeps
	// only the market-adjusted one.
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 94, 100)}, fakeHistory{}, 0, true)

	if len(candidates) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(candidates))
	}
	if candidates[0].Rule != RuleRelativeDrop {
		t.Fatalf("expected RELATIVE_DROP to take precedence, got %s", candidates[0].Rule)
	}
}

func TestDailyDropFiresWhenBenchmarkUnavailable(t *testing.T) {
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 94, 100)}, fakeHistory{}, 0, false)

	if len(candidates) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(candidates))
	}
	if candidates[0].Rule != RuleDailyDrop {
		t.Fatalf("expected DAILY_ABSOLUTE_DROP when benchmark is low confidence, got %s", candidates[0].Rule)
	}
}

func TestHourlyDropCoFires(t *testing.T) {
	history := fakeHistory{entries: map[string]PriceObservation{
		"X": {Price: decimal.NewFromInt(100), ObservedAt: time.Date(2026, 8, 19, 14, 0, 0, 0, time.UTC)},
	}}
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 94, 100)}, history, 0, true)

	if len(candidates) != 2 {
		t.Fatalf("expected relative and hourly to co-fire, got %d candidates", len(candidates))
	}
	rules := map[RuleType]bool{}
	for _, cand := range candidates {
		rules[cand.Rule] = true
	}
	if !rules[RuleRelativeDrop] || !rules[RuleHourlyDrop] {
		t.Fatalf("unexpected rule set: %v", rules)
	}
}

func TestMissingPreviousCloseSkipsDailyRules(t *testing.T) {
	history := fakeHistory{entries: map[string]PriceObservation{
		"X": {Price: decimal.NewFromInt(100), ObservedAt: time.Date(2026, 8, 19, 14, 0, 0, 0, time.UTC)},
	}}
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 50, 0)}, history, 0, true)

	if len(candidates) != 1 {
		t.Fatalf("expected only the hourly candidate, got %d", len(candidates))
	}
	if candidates[0].Rule != RuleHourlyDrop {
		t.Fatalf("expected HOURLY_DROP, got %s", candidates[0].Rule)
	}
}

func TestNoHistorySkipsHourly(t *testing.T) {
	candidates := classify(t, testClassifier(), []Snapshot{snap("Y", 50, 100)}, fakeHistory{}, 0, true)

	if len(candidates) != 1 {
		t.Fatalf("expected only the relative candidate, got %d", len(candidates))
	}
	if candidates[0].Rule != RuleRelativeDrop {
		t.Fatalf("expected RELATIVE_DROP, got %s", candidates[0].Rule)
	}
}

func TestPriceBelowFloorFiltered(t *testing.T) {
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 4.99, 10)}, fakeHistory{}, 0, true)

	if len(candidates) != 0 {
		t.Fatalf("penny stock should be filtered, got %d candidates", len(candidates))
	}
}

func TestBenchmarkNeverAlertsOnItself(t *testing.T) {
	candidates := classify(t, testClassifier(), []Snapshot{snap("QQQ", 80, 100)}, fakeHistory{}, -20, true)

	if len(candidates) != 0 {
		t.Fatalf("benchmark symbol must not produce candidates, got %d", len(candidates))
	}
}

func TestTinyAbsoluteMoveFiltered(t *testing.T) {
	// -7.4% but only 0.40 in currency terms, below the 0.50 floor.
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 5.00, 5.40)}, fakeHistory{}, 0, true)

	if len(candidates) != 0 {
		t.Fatalf("sub-floor dollar move should be filtered, got %d candidates", len(candidates))
	}
}

func TestNonRegularSessionProducesNoCandidates(t *testing.T) {
	for _, session := range []SessionState{SessionPre, SessionPost, SessionClosed, SessionUnknown} {
		s := snap("X", 94, 100)
		s.Session = session
		candidates := classify(t, testClassifier(), []Snapshot{s}, fakeHistory{}, 0, true)
		if len(candidates) != 0 {
			t.Fatalf("session %s should gate all rules, got %d candidates", session, len(candidates))
		}
	}
}

func TestHistoryErrorSkipsOnlyIntervalRule(t *testing.T) {
	history := fakeHistory{err: errors.New("connection reset")}
	candidates := classify(t, testClassifier(), []Snapshot{snap("X", 94, 100)}, history, 0, true)

	if len(candidates) != 1 {
		t.Fatalf("daily rules should survive a history failure, got %d candidates", len(candidates))
	}
	if candidates[0].Rule != RuleRelativeDrop {
		t.Fatalf("expected RELATIVE_DROP, got %s", candidates[0].Rule)
	}
}

func TestBenchmarkChange(t *testing.T) {
	batch := []Snapshot{snap("AAPL", 150, 151), snap("QQQ", 99, 100)}

	pct, confident := BenchmarkChange(batch, "QQQ")
	if !confident {
		t.Fatal("benchmark present in batch should be confident")
	}
	if !pct.Equal(decimal.NewFromFloat(-1)) {
		t.Fatalf("expected -1, got %s", pct)
	}

	if _, confident := BenchmarkChange(batch[:1], "QQQ"); confident {
		t.Fatal("missing benchmark must report low confidence")
	}

	noClose := snap("QQQ", 99, 0)
	if _, confident := BenchmarkChange([]Snapshot{noClose}, "QQQ"); confident {
		t.Fatal("benchmark without previous close must report low confidence")
	}
}
