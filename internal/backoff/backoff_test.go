package backoff

import (
	"context"
	"testing"
	"time"
)

// TestShouldRetryHonorsMaxRetries tests that the retry budget is exhausted
// after maxRetries attempts.
func TestShouldRetryHonorsMaxRetries(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := New(time.Millisecond, 10*time.Millisecond, 2, 2.0)
	ctx := context.Background()

	if !c.ShouldRetry("odds") {
		t.Fatal("expected first attempt to be retryable")
	}
	if !c.WaitBeforeRetry(ctx, "odds") {
		t.Fatal("expected first WaitBeforeRetry to succeed")
	}
	if !c.ShouldRetry("odds") {
		t.Fatal("expected second attempt to be retryable")
	}
	if !c.WaitBeforeRetry(ctx, "odds") {
		t.Fatal("expected second WaitBeforeRetry to succeed")
	}
	if c.ShouldRetry("odds") {
		t.Fatal("expected retry budget to be exhausted")
	}
	if c.WaitBeforeRetry(ctx, "odds") {
		t.Fatal("expected WaitBeforeRetry to fail once budget exhausted")
	}
}

// TestResetClearsCounter tests that Reset allows a fresh retry sequence.
func TestResetClearsCounter(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := New(time.Millisecond, 10*time.Millisecond, 1, 2.0)
	ctx := context.Background()

	if !c.WaitBeforeRetry(ctx, "odds") {
		t.Fatal("expected first WaitBeforeRetry to succeed")
	}
	if c.ShouldRetry("odds") {
		t.Fatal("expected budget exhausted before reset")
	}

	c.Reset("odds")
	if !c.ShouldRetry("odds") {
		t.Fatal("expected retry budget restored after Reset")
	}
}

// TestEndpointsAreIndependent tests that retry state for one endpoint does
// not affect another.
func TestEndpointsAreIndependent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := New(time.Millisecond, 10*time.Millisecond, 1, 2.0)
	ctx := context.Background()

	c.WaitBeforeRetry(ctx, "cups")
	if !c.ShouldRetry("odds") {
		t.Fatal("expected unrelated endpoint to retain its own retry budget")
	}
}

// TestDelayGrowsExponentially tests that later attempts wait longer, up to
// the configured ceiling.
func TestDelayGrowsExponentially(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := New(10*time.Millisecond, time.Second, 5, 2.0)
	d0 := c.delayForAttempt(0)
	d3 := c.delayForAttempt(3)
	if d3 <= d0 {
		t.Fatalf("expected later attempt to have a longer delay: attempt0=%v attempt3=%v", d0, d3)
	}

	dCapped := c.delayForAttempt(20)
	if dCapped > time.Second+time.Second/10 {
		t.Fatalf("expected delay to respect max delay ceiling, got %v", dCapped)
	}
}

// TestWaitBeforeRetryRespectsContextCancellation tests that a cancelled
// context interrupts the wait and does not report success.
func TestWaitBeforeRetryRespectsContextCancellation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := New(time.Second, time.Second, 5, 2.0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if c.WaitBeforeRetry(ctx, "odds") {
		t.Fatal("expected cancelled context to prevent a successful wait")
	}
}
