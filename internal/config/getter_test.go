package config

import (
	"log/slog"
	"testing"
	"time"
)

// TestGetEnvStrFallsBackToDefault tests that an unset variable returns the
// default.
func TestGetEnvStrFallsBackToDefault(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("PIPELINE_UNSET_STR", "")
	if got := GetEnvStr("PIPELINE_UNSET_STR", "default"); got != "default" {
		t.Fatalf("got %q, want %q", got, "default")
	}
}

// TestGetEnvIntParsesValidValue tests that a well-formed integer overrides
// the default.
func TestGetEnvIntParsesValidValue(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("PIPELINE_WORKERS", "7")
	if got := GetEnvInt("PIPELINE_WORKERS", 3); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

// TestGetEnvIntIgnoresMalformedValue tests that an unparsable value falls
// back to the default rather than panicking.
func TestGetEnvIntIgnoresMalformedValue(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("PIPELINE_WORKERS", "not-a-number")
	if got := GetEnvInt("PIPELINE_WORKERS", 3); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

// TestGetEnvBoolAcceptsCommonSpellings tests the accepted true/false
// spellings.
func TestGetEnvBoolAcceptsCommonSpellings(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cases := map[string]bool{"true": true, "1": true, "yes": true, "false": false, "0": false, "no": false}
	for raw, want := range cases {
		t.Setenv("PIPELINE_FLAG", raw)
		if got := GetEnvBool("PIPELINE_FLAG", !want); got != want {
			t.Errorf("GetEnvBool(%q) = %v, want %v", raw, got, want)
		}
	}
}

// TestGetEnvDurationParsesValidValue tests duration parsing.
func TestGetEnvDurationParsesValidValue(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("PIPELINE_TIMEOUT", "30s")
	if got := GetEnvDuration("PIPELINE_TIMEOUT", time.Minute); got != 30*time.Second {
		t.Fatalf("got %v, want 30s", got)
	}
}

// TestGetEnvLogLevelParsesKnownLevels tests the accepted log level strings.
func TestGetEnvLogLevelParsesKnownLevels(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("PIPELINE_LOG_LEVEL", "warn")
	if got := GetEnvLogLevel("PIPELINE_LOG_LEVEL", slog.LevelInfo); got != slog.LevelWarn {
		t.Fatalf("got %v, want %v", got, slog.LevelWarn)
	}
}

// TestParseCommaSeparatedListTrimsAndFilters tests that whitespace and
// empty entries are cleaned up.
func TestParseCommaSeparatedListTrimsAndFilters(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	got := ParseCommaSeparatedList("cups, ,races,  odds ")
	want := []string{"cups", "races", "odds"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
