package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"nasdaq-drop-alerts/internal/engine"
)

const yahooQuotePath = "/v7/finance/quote"

// YahooOptions parameterise the Yahoo Finance quote fetcher.
type YahooOptions struct {
	BaseURL         string
	Timeout         time.Duration
	UserAgent       string
	RequestsPerSec  int
	MaxRetryElapsed time.Duration
}

// Yahoo fetches snapshots from the Yahoo Finance quote API. Requests are
// rate limited and retried with exponential backoff on transient failures;
// both are bounded by the caller's context.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewYahoo constructs a Yahoo quote fetcher.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	perSec := opts.RequestsPerSec
	if perSec <= 0 {
		perSec = 5
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
		baseURL: baseURL,
	}
}

// FetchSnapshots retrieves one snapshot per symbol found by the quote API.
func (y *Yahoo) FetchSnapshots(ctx context.Context, symbols []string) ([]engine.Snapshot, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols requested")
	}

	endpoint := y.baseURL + yahooQuotePath + "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	payload, err := y.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var res quoteResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}
	if res.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote api error: %s", res.QuoteResponse.Error.Description)
	}

	snapshots := make([]engine.Snapshot, 0, len(res.QuoteResponse.Result))
	for _, quote := range res.QuoteResponse.Result {
		snap, ok := quote.toSnapshot()
		if !ok {
			y.logger.Warn().Str("symbol", quote.Symbol).Msg("quote without usable price skipped")
			continue
		}
		snapshots = append(snapshots, snap)
	}

	y.logger.Debug().Int("requested", len(symbols)).Int("returned", len(snapshots)).Msg("snapshots fetched")
	return snapshots, nil
}

// get performs the request with rate limiting and bounded retries. 4xx
// responses are not retried; the upstream will not change its mind.
func (y *Yahoo) get(ctx context.Context, endpoint string) ([]byte, error) {
	var payload []byte

	operation := func() error {
		if err := y.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
			req.Header.Set("User-Agent", ua)
		} else {
			req.Header.Set("User-Agent", "nasdaqwatcher/1.0")
		}

		resp, err := y.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			payload = body
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("quote api status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("quote api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = y.opts.MaxRetryElapsed
	if strategy.MaxElapsedTime <= 0 {
		strategy.MaxElapsedTime = 30 * time.Second
	}

	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, err
	}
	return payload, nil
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol            string      `json:"symbol"`
	MarketState       string      `json:"marketState"`
	RegularMarketTime int64       `json:"regularMarketTime"`
	Price             json.Number `json:"regularMarketPrice"`
	PreviousClose     json.Number `json:"regularMarketPreviousClose"`
}

func (q quoteResult) toSnapshot() (engine.Snapshot, bool) {
	price, err := decimal.NewFromString(q.Price.String())
	if err != nil || !price.IsPositive() {
		return engine.Snapshot{}, false
	}

	previousClose := decimal.Zero
	if q.PreviousClose != "" {
		if parsed, err := decimal.NewFromString(q.PreviousClose.String()); err == nil {
			previousClose = parsed
		}
	}

	observedAt := time.Now().UTC()
	if q.RegularMarketTime > 0 {
		observedAt = time.Unix(q.RegularMarketTime, 0).UTC()
	}

	return engine.Snapshot{
		Symbol:        q.Symbol,
		Price:         price,
		PreviousClose: previousClose,
		Session:       mapMarketState(q.MarketState),
		ObservedAt:    observedAt,
	}, true
}

func mapMarketState(state string) engine.SessionState {
	switch {
	case state == "REGULAR":
		return engine.SessionRegular
	case strings.HasPrefix(state, "PRE"):
		return engine.SessionPre
	case strings.HasPrefix(state, "POST"):
		return engine.SessionPost
	case state == "CLOSED":
		return engine.SessionClosed
	default:
		return engine.SessionUnknown
	}
}

var _ SnapshotFetcher = (*Yahoo)(nil)
