package marketclock

import (
	"testing"
	"time"

	"nasdaq-drop-alerts/internal/engine"
)

func newTestClock(t *testing.T, holidays ...string) (*Clock, *time.Location) {
	t.Helper()
	c, err := New(Options{Holidays: holidays})
	if err != nil {
		t.Fatalf("clock construction failed: %v", err)
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return c, loc
}

func TestSessionBoundaries(t *testing.T) {
	c, loc := newTestClock(t)

	// Wednesday 2026-08-19.
	cases := []struct {
		hour, minute int
		want         engine.SessionState
	}{
		{3, 59, engine.SessionClosed},
		{4, 0, engine.SessionPre},
		{9, 29, engine.SessionPre},
		{9, 30, engine.SessionRegular},
		{15, 59, engine.SessionRegular},
		{16, 0, engine.SessionPost},
		{19, 59, engine.SessionPost},
		{20, 0, engine.SessionClosed},
	}

	for _, tc := range cases {
		now := time.Date(2026, 8, 19, tc.hour, tc.minute, 0, 0, loc)
		if got := c.State(now); got != tc.want {
			t.Fatalf("%02d:%02d expected %s, got %s", tc.hour, tc.minute, tc.want, got)
		}
	}
}

func TestWeekendClosed(t *testing.T) {
	c, loc := newTestClock(t)

	saturday := time.Date(2026, 8, 22, 12, 0, 0, 0, loc)
	if c.State(saturday) != engine.SessionClosed {
		t.Fatal("saturday noon should be closed")
	}
	if c.IsWeekday(saturday) {
		t.Fatal("saturday is not a trading day")
	}
}

func TestHolidayClosed(t *testing.T) {
	c, loc := newTestClock(t, "2026-08-19")

	midSession := time.Date(2026, 8, 19, 12, 0, 0, 0, loc)
	if c.State(midSession) != engine.SessionClosed {
		t.Fatal("holiday should be closed even mid-session")
	}
	if c.IsWeekday(midSession) {
		t.Fatal("holiday is not a trading day")
	}
}

func TestMalformedHolidayRejected(t *testing.T) {
	if _, err := New(Options{Holidays: []string{"not-a-date"}}); err == nil {
		t.Fatal("malformed holiday should fail construction")
	}
}

func TestUTCInstantConvertedToExchangeTime(t *testing.T) {
	c, _ := newTestClock(t)

	// 18:00 UTC on a summer Wednesday is 14:00 in New York.
	now := time.Date(2026, 8, 19, 18, 0, 0, 0, time.UTC)
	if got := c.State(now); got != engine.SessionRegular {
		t.Fatalf("expected REGULAR, got %s", got)
	}
}
