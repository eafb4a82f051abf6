package alerting

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Multi fans a notification out to every configured channel. Delivery counts
// as successful when at least one channel accepted the message; per-channel
// failures are logged either way.
type Multi struct {
	channels []Notifier
	logger   zerolog.Logger
}

// NewMulti wires the channel fan-out.
func NewMulti(logger zerolog.Logger, channels ...Notifier) *Multi {
	return &Multi{
		channels: channels,
		logger:   logger.With().Str("component", "alert_multi").Logger(),
	}
}

// Notify dispatches to all channels.
func (m *Multi) Notify(ctx context.Context, note Notification) error {
	if len(m.channels) == 0 {
		return errors.New("no alert channels configured")
	}

	delivered := 0
	var lastErr error
	for _, channel := range m.channels {
		if err := channel.Notify(ctx, note); err != nil {
			lastErr = err
			m.logger.Error().Err(err).Str("cycle_id", note.CycleID).Msg("channel delivery failed")
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return lastErr
	}
	return nil
}

var _ Notifier = (*Multi)(nil)
