package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// HistoryReader is the read side of the price history repository the
// classifier needs: the most recent stored observation strictly before a
// cutoff. Absence of history is a valid state, not an error.
type HistoryReader interface {
	LatestBefore(ctx context.Context, symbol string, cutoff time.Time) (PriceObservation, bool, error)
}

// Config holds the detection thresholds. It is passed explicitly into the
// classifier constructor; there are no package-level knobs.
type Config struct {
	DropThresholdPct         decimal.Decimal
	HourlyDropThresholdPct   decimal.Decimal
	RelativeDropThresholdPct decimal.Decimal
	MinPriceForAlert         decimal.Decimal
	MinAbsoluteMove          decimal.Decimal
	BenchmarkSymbol          string
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		DropThresholdPct:         decimal.NewFromFloat(5.0),
		HourlyDropThresholdPct:   decimal.NewFromFloat(3.0),
		RelativeDropThresholdPct: decimal.NewFromFloat(3.0),
		MinPriceForAlert:         decimal.NewFromFloat(5.0),
		MinAbsoluteMove:          decimal.NewFromFloat(0.50),
		BenchmarkSymbol:          "QQQ",
	}
}

// benchmarkFlatFloor: the absolute-drop rule only fires when the market
// itself is roughly flat or up, i.e. benchmark change above this floor.
var benchmarkFlatFloor = decimal.NewFromInt(-2)

// Classifier applies the drop-detection rules to a batch of snapshots.
//
// Rules are held as an ordered list and precedence is explicit: when a symbol
// fires RELATIVE_DROP, DAILY_ABSOLUTE_DROP is withheld for that symbol this
// cycle because the market-adjusted explanation is the more informative one.
// HOURLY_DROP is independent and may co-fire with either.
type Classifier struct {
	cfg    Config
	rules  []namedRule
	logger zerolog.Logger
}

type namedRule struct {
	kind RuleType
	eval func(view *symbolView) *Candidate
}

// symbolView bundles everything the rules need for one symbol in one cycle.
type symbolView struct {
	snap        Snapshot
	daily       decimal.Decimal
	hasDaily    bool
	benchmark   decimal.Decimal
	benchmarkOK bool
	prior       *PriceObservation
	firedByRule map[RuleType]bool
}

// NewClassifier constructs a Classifier with the given thresholds.
func NewClassifier(cfg Config, logger zerolog.Logger) *Classifier {
	c := &Classifier{
		cfg:    cfg,
		logger: logger.With().Str("component", "classifier").Logger(),
	}
	c.rules = []namedRule{
		{kind: RuleRelativeDrop, eval: c.relativeDrop},
		{kind: RuleDailyDrop, eval: c.dailyDrop},
		{kind: RuleHourlyDrop, eval: c.hourlyDrop},
	}
	return c
}

// Classify evaluates the rule list against every snapshot in the batch and
// returns the triggered candidates. A history read failure for one symbol is
// logged and skips only that symbol's interval rule; the rest of the batch is
// processed normally.
func (c *Classifier) Classify(ctx context.Context, snapshots []Snapshot, history HistoryReader, benchmark decimal.Decimal, benchmarkOK bool) []Candidate {
	candidates := make([]Candidate, 0)

	for _, snap := range snapshots {
		if snap.Symbol == c.cfg.BenchmarkSymbol {
			continue
		}
		if snap.Session != SessionRegular {
			continue
		}
		if snap.Price.LessThan(c.cfg.MinPriceForAlert) {
			continue
		}

		view := &symbolView{
			snap:        snap,
			benchmark:   benchmark,
			benchmarkOK: benchmarkOK,
			firedByRule: make(map[RuleType]bool, len(c.rules)),
		}
		if snap.HasPreviousClose() {
			view.daily = snap.DailyChangePercent()
			view.hasDaily = true
		}

		if history != nil {
			prior, found, err := history.LatestBefore(ctx, snap.Symbol, snap.ObservedAt)
			if err != nil {
				c.logger.Error().Err(err).Str("symbol", snap.Symbol).Msg("history lookup failed; interval rule skipped")
			} else if found {
				view.prior = &prior
			}
		}

		for _, rule := range c.rules {
			if cand := rule.eval(view); cand != nil {
				view.firedByRule[rule.kind] = true
				candidates = append(candidates, *cand)
			}
		}
	}

	return candidates
}

// relativeDrop fires when the symbol's daily change is negative and worse
// than the benchmark by at least the relative threshold. It requires a
// confident benchmark reading; subtracting a fabricated zero would turn every
// market-wide selloff into a batch of false positives.
func (c *Classifier) relativeDrop(view *symbolView) *Candidate {
	if !view.hasDaily || !view.benchmarkOK {
		return nil
	}
	if c.moveTooSmall(view.snap.Price, view.snap.PreviousClose) {
		return nil
	}

	relative := view.daily.Sub(view.benchmark)
	if relative.GreaterThan(c.cfg.RelativeDropThresholdPct.Neg()) || !view.daily.IsNegative() {
		return nil
	}

	benchmark := view.benchmark
	return &Candidate{
		Symbol:             view.snap.Symbol,
		Rule:               RuleRelativeDrop,
		ChangePercent:      view.daily,
		BenchmarkChangePct: &benchmark,
		RelativeChangePct:  &relative,
		CurrentPrice:       view.snap.Price,
		ReferencePrice:     view.snap.PreviousClose,
		ReferenceLabel:     "previous close",
	}
}

// dailyDrop fires on an outright daily drop while the market is roughly flat
// or up. It yields to relativeDrop when that rule already claimed the symbol
// this cycle.
func (c *Classifier) dailyDrop(view *symbolView) *Candidate {
	if !view.hasDaily || view.firedByRule[RuleRelativeDrop] {
		return nil
	}
	if c.moveTooSmall(view.snap.Price, view.snap.PreviousClose) {
		return nil
	}
	if view.daily.GreaterThan(c.cfg.DropThresholdPct.Neg()) {
		return nil
	}
	if !view.benchmark.GreaterThan(benchmarkFlatFloor) {
		return nil
	}

	benchmark := view.benchmark
	return &Candidate{
		Symbol:             view.snap.Symbol,
		Rule:               RuleDailyDrop,
		ChangePercent:      view.daily,
		BenchmarkChangePct: &benchmark,
		CurrentPrice:       view.snap.Price,
		ReferencePrice:     view.snap.PreviousClose,
		ReferenceLabel:     "previous close",
	}
}

// hourlyDrop fires on the change since the last stored observation for the
// symbol, whatever its age. No benchmark adjustment and no daily
// precondition; first-ever observations simply have no reference.
func (c *Classifier) hourlyDrop(view *symbolView) *Candidate {
	if view.prior == nil || !view.prior.Price.IsPositive() {
		return nil
	}
	if c.moveTooSmall(view.snap.Price, view.prior.Price) {
		return nil
	}

	change := view.snap.Price.Sub(view.prior.Price).Div(view.prior.Price).Mul(dec100)
	if change.GreaterThan(c.cfg.HourlyDropThresholdPct.Neg()) {
		return nil
	}

	return &Candidate{
		Symbol:         view.snap.Symbol,
		Rule:           RuleHourlyDrop,
		ChangePercent:  change,
		CurrentPrice:   view.snap.Price,
		ReferencePrice: view.prior.Price,
		ReferenceLabel: fmt.Sprintf("stored at %s", view.prior.ObservedAt.UTC().Format(time.RFC3339)),
	}
}

func (c *Classifier) moveTooSmall(price, reference decimal.Decimal) bool {
	return price.Sub(reference).Abs().LessThan(c.cfg.MinAbsoluteMove)
}
