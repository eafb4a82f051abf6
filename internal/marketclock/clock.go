package marketclock

import (
	"fmt"
	"time"

	"nasdaq-drop-alerts/internal/engine"
)

// Options parameterise the session clock.
type Options struct {
	// Timezone is the exchange-local IANA zone, e.g. America/New_York.
	Timezone string
	// Holidays lists full-day market closures as YYYY-MM-DD in exchange time.
	Holidays []string
}

// Clock answers "what trading phase is it" as a pure function of the instant
// and the configured holiday calendar, so cycles are deterministic under a
// fixed clock.
type Clock struct {
	location *time.Location
	holidays map[string]struct{}
}

// New builds a Clock, failing on an unknown timezone or malformed holiday.
func New(opts Options) (*Clock, error) {
	tz := opts.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load session timezone: %w", err)
	}

	holidays := make(map[string]struct{}, len(opts.Holidays))
	for _, day := range opts.Holidays {
		if _, err := time.ParseInLocation("2006-01-02", day, location); err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", day, err)
		}
		holidays[day] = struct{}{}
	}

	return &Clock{location: location, holidays: holidays}, nil
}

// Session boundaries in exchange-local minutes since midnight.
const (
	preOpenMinute  = 4 * 60
	regularOpen    = 9*60 + 30
	regularClose   = 16 * 60
	postCloseLimit = 20 * 60
)

// State returns the trading phase at the given instant.
func (c *Clock) State(now time.Time) engine.SessionState {
	local := now.In(c.location)
	if !c.isTradingDay(local) {
		return engine.SessionClosed
	}

	minute := local.Hour()*60 + local.Minute()
	switch {
	case minute < preOpenMinute:
		return engine.SessionClosed
	case minute < regularOpen:
		return engine.SessionPre
	case minute < regularClose:
		return engine.SessionRegular
	case minute < postCloseLimit:
		return engine.SessionPost
	default:
		return engine.SessionClosed
	}
}

// IsWeekday reports whether the instant falls on a trading day, holidays
// included in the negative.
func (c *Clock) IsWeekday(now time.Time) bool {
	return c.isTradingDay(now.In(c.location))
}

func (c *Clock) isTradingDay(local time.Time) bool {
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[local.Format("2006-01-02")]
	return !holiday
}
