package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nasdaq-drop-alerts/internal/engine"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testYahoo(baseURL string) *Yahoo {
	return NewYahoo(YahooOptions{
		BaseURL:         baseURL,
		Timeout:         time.Second,
		UserAgent:       "test",
		RequestsPerSec:  100,
		MaxRetryElapsed: 100 * time.Millisecond,
	}, noopLogger())
}

func TestFetchSnapshotsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbols") == "" {
			t.Fatalf("symbols query missing: %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quoteResponse": map[string]any{
				"result": []map[string]any{
					{
						"symbol":                     "AAPL",
						"marketState":                "REGULAR",
						"regularMarketPrice":         94.5,
						"regularMarketPreviousClose": 100.0,
						"regularMarketTime":          1755615600,
					},
					{
						"symbol":      "MSFT",
						"marketState": "PRE",
						// no usable price; must be skipped, not an error
					},
				},
			},
		})
	}))
	defer srv.Close()

	snapshots, err := testYahoo(srv.URL).FetchSnapshots(context.Background(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(snapshots))
	}

	snap := snapshots[0]
	if snap.Symbol != "AAPL" || snap.Session != engine.SessionRegular {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.Price.Equal(decimal.NewFromFloat(94.5)) {
		t.Fatalf("expected price 94.5, got %s", snap.Price)
	}
	if !snap.PreviousClose.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected previous close 100, got %s", snap.PreviousClose)
	}
	if snap.ObservedAt != time.Unix(1755615600, 0).UTC() {
		t.Fatalf("expected observation time from payload, got %s", snap.ObservedAt)
	}
}

func TestFetchSnapshotsClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := testYahoo(srv.URL).FetchSnapshots(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatal("HTTP 401 should surface as an error")
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, saw %d calls", calls)
	}
}

func TestFetchSnapshotsServerErrorRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := testYahoo(srv.URL).FetchSnapshots(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatal("persistent 500 should surface as an error")
	}
	if calls < 2 {
		t.Fatalf("5xx should be retried, saw %d calls", calls)
	}
}

func TestFetchSnapshotsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quoteResponse": map[string]any{
				"result": []map[string]any{},
				"error":  map[string]string{"code": "Bad Request", "description": "invalid symbols"},
			},
		})
	}))
	defer srv.Close()

	if _, err := testYahoo(srv.URL).FetchSnapshots(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatal("embedded api error should surface as an error")
	}
}

func TestFetchSnapshotsNoSymbols(t *testing.T) {
	if _, err := testYahoo("http://localhost").FetchSnapshots(context.Background(), nil); err == nil {
		t.Fatal("empty watchlist should be rejected")
	}
}

func TestMapMarketState(t *testing.T) {
	cases := map[string]engine.SessionState{
		"REGULAR":  engine.SessionRegular,
		"PRE":      engine.SessionPre,
		"PREPRE":   engine.SessionPre,
		"POST":     engine.SessionPost,
		"POSTPOST": engine.SessionPost,
		"CLOSED":   engine.SessionClosed,
		"":         engine.SessionUnknown,
	}
	for state, want := range cases {
		if got := mapMarketState(state); got != want {
			t.Fatalf("%q expected %s, got %s", state, want, got)
		}
	}
}
