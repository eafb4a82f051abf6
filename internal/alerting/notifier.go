package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nasdaq-drop-alerts/internal/engine"
)

// Alert is one finalized anomaly as handed to the notification channels.
// Percentages are rendered at two decimal places here, at the presentation
// boundary; upstream computation stays full precision.
type Alert struct {
	Symbol         string
	Rule           engine.RuleType
	Message        string
	ChangePercent  decimal.Decimal
	CurrentPrice   decimal.Decimal
	ReferencePrice decimal.Decimal
	ReferenceLabel string
}

// Notification is one outbound message. All alerts from a cycle are batched
// into a single notification to avoid a message storm on broad selloffs.
type Notification struct {
	Subject   string
	CycleID   string
	CreatedAt time.Time
	Alerts    []Alert
}

// Notifier delivers a batched notification over one channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

func renderText(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(note.Subject)
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("At: %s UTC\n\n", note.CreatedAt.UTC().Format(time.RFC3339)))

	for _, alert := range note.Alerts {
		builder.WriteString(fmt.Sprintf("%s  %s  %s%%\n", alert.Symbol, alert.Rule, alert.ChangePercent.StringFixed(2)))
		builder.WriteString(fmt.Sprintf("  price %s, %s %s\n", alert.CurrentPrice.StringFixed(2), alert.ReferenceLabel, alert.ReferencePrice.StringFixed(2)))
		if alert.Message != "" {
			builder.WriteString("  " + alert.Message + "\n")
		}
	}

	if note.CycleID != "" {
		builder.WriteString(fmt.Sprintf("\ncycle %s\n", note.CycleID))
	}
	return builder.String()
}
