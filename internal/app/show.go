package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent alerts and cycle audits.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show records")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.AlertLimit)
	if err != nil {
		return err
	}

	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Created (UTC)\tSymbol\tRule\tChange%\tDelivered\tMessage")
		for _, alert := range alerts {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%t\t%s\n",
				alert.CreatedAt.UTC().Format(time.RFC3339),
				alert.Symbol,
				alert.RuleType,
				alert.ChangePercent.StringFixed(2),
				alert.Delivered,
				sanitizeInline(alert.Message),
			)
		}
		writer.Flush()
	}

	if opts.CycleLimit <= 0 {
		return nil
	}

	logs, err := store.ListRecentFetchLogs(ctx, opts.CycleLimit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Fprintln(os.Stdout, "no cycles recorded")
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tRequested\tReturned\tWritten\tEmitted\tMs\tError")
	for _, entry := range logs {
		errMsg := ""
		if entry.Error != nil {
			errMsg = sanitizeInline(*entry.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			entry.StartedAt.UTC().Format(time.RFC3339),
			entry.SymbolsRequested,
			entry.SymbolsReturned,
			entry.HistoryWritten,
			entry.AlertsEmitted,
			entry.DurationMS,
			errMsg,
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
