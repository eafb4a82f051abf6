package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// EmailOptions configure the SMTP channel.
type EmailOptions struct {
	Host     string
	Port     int
	From     string
	To       []string
	Password string
}

// EmailNotifier delivers the batched notification over SMTP with STARTTLS.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier constructs the SMTP channel.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	return &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_email").Logger(),
		send:   smtp.SendMail,
	}
}

// Notify composes a plain-text mail and hands it to the SMTP server.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if n.opts.Host == "" || n.opts.From == "" || len(n.opts.To) == 0 {
		return fmt.Errorf("email channel not fully configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	headers := strings.Builder{}
	headers.WriteString(fmt.Sprintf("From: %s\r\n", n.opts.From))
	headers.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(n.opts.To, ", ")))
	headers.WriteString(fmt.Sprintf("Subject: %s\r\n", note.Subject))
	headers.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")

	message := headers.String() + renderText(note)

	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
	auth := smtp.PlainAuth("", n.opts.From, n.opts.Password, n.opts.Host)
	if err := n.send(addr, auth, n.opts.From, n.opts.To, []byte(message)); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}

	n.logger.Info().Str("cycle_id", note.CycleID).
		Int("alerts", len(note.Alerts)).
		Int("recipients", len(n.opts.To)).
		Msg("alert mail sent")
	return nil
}

var _ Notifier = (*EmailNotifier)(nil)
