package engine

import "github.com/shopspring/decimal"

// BenchmarkChange locates the benchmark symbol in the batch and returns its
// daily change percent. When the benchmark is absent, or its snapshot has no
// usable previous close, it returns zero with confident=false so the caller
// can degrade instead of failing the cycle.
func BenchmarkChange(snapshots []Snapshot, benchmarkSymbol string) (pct decimal.Decimal, confident bool) {
	for _, snap := range snapshots {
		if snap.Symbol != benchmarkSymbol {
			continue
		}
		if !snap.HasPreviousClose() {
			return decimal.Zero, false
		}
		return snap.DailyChangePercent(), true
	}
	return decimal.Zero, false
}
