// Package yenjoy is the HTML API client for the upstream race-result
// source: charset-tolerant decoding of result pages that feed the Stage 5
// parser.
package yenjoy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"

	"github.com/keirindata/pipeline/internal/ratelimit"
)

const (
	baseURL = "https://www.yen-joy.net"

	userAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36 YenjoyApp/0.1.0"
	defaultRetryCount  = 3
	defaultRetryAfter  = 60 * time.Second
	serverErrorBackoff = 3 * time.Second
	requestTimeout     = 30 * time.Second
)

// Result is the outcome of an HTML fetch, matching the Python client's
// {success, content, status_code, error} return shape. On success Content
// holds the decoded page; a decode failure or exhausted retries set Err; a
// non-retryable 4xx response sets neither, only StatusCode.
type Result struct {
	Success    bool
	Content    string
	StatusCode int
	Err        error
}

// Client fetches race-result HTML pages with throttling, retry, and
// charset-tolerant decoding.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	limiter         *ratelimit.Limiter
	requestInterval time.Duration
	retryCount      int
	backoffUnit     time.Duration
	logger          *slog.Logger
}

// NewClient returns a Client throttled to rateLimitWait between requests
// (defaults to 1s when zero).
func NewClient(rateLimitWait time.Duration, logger *slog.Logger) *Client {
	return newClient(baseURL, rateLimitWait, logger)
}

func newClient(base string, rateLimitWait time.Duration, logger *slog.Logger) *Client {
	if rateLimitWait <= 0 {
		rateLimitWait = time.Second
	}
	return &Client{
		httpClient:      &http.Client{Timeout: requestTimeout},
		baseURL:         base,
		limiter:         ratelimit.New(rateLimitWait, 0.2),
		requestInterval: rateLimitWait,
		retryCount:      defaultRetryCount,
		backoffUnit:     serverErrorBackoff,
		logger:          logger,
	}
}

// ResultPageURL builds the race-result detail page URL for a cup/venue/race.
// monthOfCupStart and cupStartDate are YYYYMM and YYYYMMDD of the cup's
// first day; raceDate is the YYYYMMDD of the specific race day.
func (c *Client) ResultPageURL(monthOfCupStart, venueID string, cupStartDate, raceDate string, raceNumber int) string {
	return fmt.Sprintf("%s/kaisai/race/result/detail/%s/%s/%s/%s/%d",
		c.baseURL, monthOfCupStart, venueID, cupStartDate, raceDate, raceNumber)
}

// GetHTMLContent fetches url and decodes the body, trying UTF-8, then the
// server-declared charset, then Shift_JIS, then EUC-JP; the first
// successful decode wins.
func (c *Client) GetHTMLContent(ctx context.Context, url string) Result {
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt < c.retryCount; attempt++ {
		if err := c.limiter.Wait(ctx, "html", c.requestInterval); err != nil {
			return Result{Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Result{Err: fmt.Errorf("build request: %w", err)}
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
		req.Header.Set("Origin", "https://yenjoy.keirin.jp")
		req.Header.Set("Referer", "https://yenjoy.keirin.jp/")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("yenjoy request failed, retrying", "url", url, "attempt", attempt+1, "error", err)
			if !sleepCtx(ctx, time.Duration(attempt+1)*c.backoffUnit) {
				return Result{Err: ctx.Err()}
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		contentType := resp.Header.Get("Content-Type")
		resp.Body.Close()
		lastStatus = resp.StatusCode
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			text, ok := decodeHTML(body, contentType)
			if !ok {
				c.logger.Error("yenjoy HTML decode failed", "url", url, "content_type", contentType)
				return Result{Success: false, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTML decode error")}
			}
			return Result{Success: true, Content: text, StatusCode: resp.StatusCode}

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			c.logger.Warn("yenjoy rate limited", "url", url, "retry_after", retryAfter)
			if !sleepCtx(ctx, retryAfter) {
				return Result{Err: ctx.Err()}
			}

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			wait := time.Duration(attempt+1) * c.backoffUnit
			c.logger.Warn("yenjoy server error, retrying", "url", url, "status", resp.StatusCode, "wait", wait)
			if !sleepCtx(ctx, wait) {
				return Result{Err: ctx.Err()}
			}

		default:
			c.logger.Warn("yenjoy client error, not retrying", "url", url, "status", resp.StatusCode)
			return Result{Success: false, StatusCode: resp.StatusCode}
		}
	}

	return Result{Success: false, StatusCode: lastStatus, Err: lastErr}
}

// decodeHTML tries UTF-8 first, then the charset declared in contentType,
// then Shift_JIS, then EUC-JP. A decode that yields replacement characters
// counts as a failure, so the next candidate is tried.
func decodeHTML(body []byte, contentType string) (string, bool) {
	if utf8.Valid(body) {
		return string(body), true
	}

	candidates := make([]encoding.Encoding, 0, 3)
	if declared := declaredCharset(contentType, body); declared != nil {
		candidates = append(candidates, declared)
	}
	candidates = append(candidates, japanese.ShiftJIS, japanese.EUCJP)

	for _, enc := range candidates {
		if enc == nil {
			continue
		}
		decoded, err := enc.NewDecoder().Bytes(body)
		if err == nil && utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError) {
			return string(decoded), true
		}
	}
	return "", false
}

// declaredCharset resolves an explicit charset first from the HTTP
// Content-Type header, then by sniffing the page's own <meta charset>
// declaration — yenjoy's result pages don't always set one on the
// response header.
func declaredCharset(contentType string, body []byte) encoding.Encoding {
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			switch params["charset"] {
			case "Shift_JIS", "shift_jis", "sjis":
				return japanese.ShiftJIS
			case "EUC-JP", "euc-jp":
				return japanese.EUCJP
			}
		}
	}
	if enc, _, certain := charset.DetermineEncoding(body, contentType); certain {
		return enc
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil {
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
