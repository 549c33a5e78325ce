// Package winticket is the JSON API client for the upstream keirin data
// source: monthly cup listings, cup detail, race cards, and odds.
package winticket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/keirindata/pipeline/internal/backoff"
	"github.com/keirindata/pipeline/internal/ratelimit"
)

const (
	baseURL = "https://api.winticket.jp/v1/keirin"

	userAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36 Edg/91.0.864.59 KeirinApp/0.1.0"
	defaultRetryCount  = 3
	defaultRetryAfter  = 60 * time.Second
	serverErrorBackoff = 3 * time.Second
	maxServerBackoff   = 30 * time.Second
	backoffFactor      = 2.0
	requestTimeout     = 30 * time.Second
)

// Client is a stateful HTTP session against the Winticket API: persistent
// user-agent/headers, per-endpoint throttling, and the retry policy
// described for HTTP 429/5xx/network errors.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	limiter         *ratelimit.Limiter
	requestInterval time.Duration
	retryCount      int
	backoffUnit     time.Duration
	serverBackoff   *backoff.Controller
	logger          *slog.Logger
}

// NewClient returns a Client with the given request interval (minimum
// inter-call spacing; defaults to 1s when zero) and logger.
func NewClient(requestInterval time.Duration, logger *slog.Logger) *Client {
	return newClient(baseURL, requestInterval, logger)
}

func newClient(base string, requestInterval time.Duration, logger *slog.Logger) *Client {
	if requestInterval <= 0 {
		requestInterval = time.Second
	}
	return &Client{
		httpClient:      &http.Client{Timeout: requestTimeout},
		baseURL:         base,
		limiter:         ratelimit.New(requestInterval, 0.2),
		requestInterval: requestInterval,
		retryCount:      defaultRetryCount,
		backoffUnit:     serverErrorBackoff,
		serverBackoff:   backoff.New(serverErrorBackoff, maxServerBackoff, defaultRetryCount, backoffFactor),
		logger:          logger,
	}
}

// MonthlyListing fetches the monthly cup listing for the given YYYYMMDD
// date, scoped to month-level fields.
func (c *Client) MonthlyListing(ctx context.Context, yyyymmdd string) (json.RawMessage, error) {
	return c.get(ctx, "cups", "/cups", map[string]string{
		"date":   yyyymmdd,
		"fields": "month",
		"pfm":    "web",
	})
}

// CupDetail fetches schedules and races for one cup.
func (c *Client) CupDetail(ctx context.Context, cupID string) (json.RawMessage, error) {
	return c.get(ctx, "cup_detail", fmt.Sprintf("/cups/%s", cupID), map[string]string{
		"fields": "cup,schedules,races",
		"pfm":    "web",
	})
}

// RaceCard fetches players, entries, records, and line prediction for one
// race.
func (c *Client) RaceCard(ctx context.Context, cupID string, scheduleIndex, raceNumber int) (json.RawMessage, error) {
	path := fmt.Sprintf("/cups/%s/schedules/%d/races/%d", cupID, scheduleIndex, raceNumber)
	return c.get(ctx, "race", path, map[string]string{
		"fields": "players,entries,records,linePrediction",
		"pfm":    "web",
	})
}

// Odds fetches the odds tables for one race.
func (c *Client) Odds(ctx context.Context, cupID string, scheduleIndex, raceNumber int) (json.RawMessage, error) {
	path := fmt.Sprintf("/cups/%s/schedules/%d/races/%d/odds", cupID, scheduleIndex, raceNumber)
	return c.get(ctx, "odds", path, map[string]string{"pfm": "web"})
}

// get performs a throttled GET with the documented retry policy. A nil
// result with a nil error means "give up without a retryable failure" —
// matching the Python client's contract of returning None on 4xx/malformed
// JSON rather than raising.
func (c *Client) get(ctx context.Context, endpoint, path string, params map[string]string) (json.RawMessage, error) {
	u := c.baseURL + path
	req0, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	q := req0.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	req0.URL.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt < c.retryCount; attempt++ {
		if err := c.limiter.Wait(ctx, endpoint, c.requestInterval); err != nil {
			return nil, err
		}

		req := req0.Clone(ctx)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Origin", "https://www.winticket.jp")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("winticket request failed, retrying", "endpoint", endpoint, "attempt", attempt+1, "error", err)
			if !sleepCtx(ctx, time.Duration(attempt+1)*c.backoffUnit) {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			c.serverBackoff.Reset(endpoint)
			var raw json.RawMessage
			if err := json.Unmarshal(body, &raw); err != nil {
				c.logger.Error("winticket response was not valid JSON", "endpoint", endpoint, "error", err)
				return nil, nil
			}
			c.logger.Debug("winticket request succeeded", "endpoint", endpoint)
			return raw, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			c.logger.Warn("winticket rate limited", "endpoint", endpoint, "retry_after", retryAfter, "attempt", attempt+1)
			if !sleepCtx(ctx, retryAfter) {
				return nil, ctx.Err()
			}

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			c.logger.Warn("winticket server error, retrying", "endpoint", endpoint, "status", resp.StatusCode, "attempt", attempt+1)
			if !c.serverBackoff.WaitBeforeRetry(ctx, endpoint) {
				return nil, fmt.Errorf("winticket %s: exhausted retries: %w", endpoint, lastErr)
			}

		default:
			c.logger.Warn("winticket client error, not retrying", "endpoint", endpoint, "status", resp.StatusCode)
			return nil, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("winticket %s: exhausted retries: %w", endpoint, lastErr)
	}
	return nil, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
