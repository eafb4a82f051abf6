package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"nasdaq-drop-alerts/internal/storage"
)

// Export writes a symbol's stored price history as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	if opts.PNGPath == "" && opts.CSVPath == "" {
		return errors.New("at least one of --png or --csv is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.AddDate(0, -1, 0)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("--from must be before --to")
	}

	entries, err := store.ListHistory(ctx, opts.Symbol, from, to)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no history for %s in the requested window", opts.Symbol)
	}

	maxPoints := a.Config.ResolveMaxPoints(opts.MaxPoints)
	entries = downsample(entries, maxPoints)

	if opts.CSVPath != "" {
		if err := writeCSV(opts.CSVPath, entries); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("points", len(entries)).Msg("history CSV written")
	}

	if opts.PNGPath != "" {
		if err := writeChart(opts.PNGPath, opts.Symbol, entries); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Int("points", len(entries)).Msg("history chart written")
	}

	return nil
}

// downsample keeps at most maxPoints entries, evenly strided, always
// retaining the final observation.
func downsample(entries []storage.HistoryEntry, maxPoints int) []storage.HistoryEntry {
	if maxPoints <= 0 || len(entries) <= maxPoints {
		return entries
	}

	stride := (len(entries) + maxPoints - 1) / maxPoints
	kept := make([]storage.HistoryEntry, 0, maxPoints)
	for i := 0; i < len(entries); i += stride {
		kept = append(kept, entries[i])
	}
	if last := entries[len(entries)-1]; kept[len(kept)-1].ID != last.ID {
		kept = append(kept, last)
	}
	return kept
}

func writeCSV(path string, entries []storage.HistoryEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"observed_at", "symbol", "price"}); err != nil {
		return err
	}
	for _, entry := range entries {
		record := []string{
			entry.ObservedAt.UTC().Format(time.RFC3339),
			entry.Symbol,
			entry.Price.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeChart(path, symbol string, entries []storage.HistoryEntry) error {
	xs := make([]time.Time, 0, len(entries))
	ys := make([]float64, 0, len(entries))
	for _, entry := range entries {
		price, _ := entry.Price.Float64()
		xs = append(xs, entry.ObservedAt)
		ys = append(ys, price)
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s price", symbol),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("01-02 15:04"),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    symbol,
				XValues: xs,
				YValues: ys,
			},
		},
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
