// Package ratelimit throttles outbound requests per endpoint with a small
// jitter, so a burst of calls against one upstream doesn't hammer it in
// lockstep.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultEndpoint = "default"
	minInterval     = 100 * time.Millisecond
)

// Limiter enforces a minimum interval between requests to the same
// endpoint, independently per endpoint. The zero value is not usable; use
// New.
type Limiter struct {
	defaultRate time.Duration
	jitter      float64 // 0.0-1.0, fraction of rate

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New returns a Limiter with the given default interval and jitter
// fraction. jitter is clamped to [0, 1].
func New(defaultRate time.Duration, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return &Limiter{
		defaultRate: defaultRate,
		jitter:      jitter,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Wait blocks until it is this endpoint's turn to issue a request, honoring
// ctx cancellation. An interval of zero uses the limiter's default. Passing
// an empty endpoint throttles against a shared "default" bucket. Each call
// re-jitters the endpoint's effective interval, so the bucket's refill rate
// drifts slightly call to call instead of settling into lockstep.
func (l *Limiter) Wait(ctx context.Context, endpoint string, interval time.Duration) error {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if interval <= 0 {
		interval = l.defaultRate
	}
	adjusted := l.jitteredRate(interval)

	l.mu.Lock()
	lim, ok := l.limiters[endpoint]
	if !ok {
		lim = rate.NewLimiter(rate.Every(adjusted), 1)
		l.limiters[endpoint] = lim
	} else {
		lim.SetLimit(rate.Every(adjusted))
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}

func (l *Limiter) jitteredRate(rate time.Duration) time.Duration {
	jitterAmount := time.Duration(float64(rate) * l.jitter)
	if jitterAmount <= 0 {
		return rate
	}
	half := float64(jitterAmount) / 2
	offset := time.Duration(rand.Float64()*2*half - half)
	adjusted := rate + offset
	if adjusted < minInterval {
		adjusted = minInterval
	}
	return adjusted
}
