package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"nasdaq-drop-alerts/internal/engine"
	"nasdaq-drop-alerts/internal/fetcher"
	"nasdaq-drop-alerts/internal/service"
)

// SimulateAlert 用给定的快照参数模拟一次完整的告警流程。
// Nothing is persisted; the synthetic batch runs through the live
// classifier, suppression, and notifier wiring.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	now := time.Now().UTC()
	benchmarkClose := decimal.NewFromInt(100)
	benchmarkPrice := benchmarkClose.Add(decimal.NewFromFloat(opts.BenchmarkChange))

	batch := []engine.Snapshot{
		{
			Symbol:        opts.Symbol,
			Price:         decimal.NewFromFloat(opts.Price),
			PreviousClose: decimal.NewFromFloat(opts.PreviousClose),
			Session:       engine.SessionRegular,
			ObservedAt:    now,
		},
		{
			Symbol:        a.Config.Watchlist.BenchmarkSymbol,
			Price:         benchmarkPrice,
			PreviousClose: benchmarkClose,
			Session:       engine.SessionRegular,
			ObservedAt:    now,
		},
	}

	svc := service.New(a.Config, nil, &staticFetcher{snapshots: batch}, nil, nil, nil, notifier, nil, a.Logger)
	return svc.RunCycle(ctx, now)
}

type staticFetcher struct {
	snapshots []engine.Snapshot
}

func (s *staticFetcher) FetchSnapshots(ctx context.Context, symbols []string) ([]engine.Snapshot, error) {
	return s.snapshots, nil
}

var _ fetcher.SnapshotFetcher = (*staticFetcher)(nil)
