package store

import (
	"strings"
	"testing"
)

// TestNewConfigAppliesDefaults tests that an unset port falls back to 3306
// and pool settings get production-ready defaults.
func TestNewConfigAppliesDefaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := NewConfig("db.internal", 0, "keirin", "s3cr3t", "keirin_data")
	if c.Port != defaultPort {
		t.Fatalf("expected default port %d, got %d", defaultPort, c.Port)
	}
	if c.MaxOpenConns != defaultMaxOpenConns {
		t.Fatalf("expected default MaxOpenConns, got %d", c.MaxOpenConns)
	}
	if !strings.Contains(c.dsn, "db.internal:3306") {
		t.Fatalf("expected dsn to contain host:port, got %q", c.dsn)
	}
}

// TestValidateRejectsEmptyHost tests that Validate reports ErrHostEmpty.
func TestValidateRejectsEmptyHost(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := NewConfig("", 3306, "keirin", "s3cr3t", "keirin_data")
	if err := c.Validate(); err != ErrHostEmpty {
		t.Fatalf("expected ErrHostEmpty, got %v", err)
	}
}

// TestMaskDSNRedactsPassword tests that the password never appears in the
// masked DSN, while the rest of the connection string is preserved.
func TestMaskDSNRedactsPassword(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := NewConfig("db.internal", 3306, "keirin", "s3cr3t", "keirin_data")
	masked := c.MaskDSN()
	if strings.Contains(masked, "s3cr3t") {
		t.Fatalf("expected password to be redacted, got %q", masked)
	}
	if !strings.Contains(masked, "keirin:***@") {
		t.Fatalf("expected masked user:pass marker, got %q", masked)
	}
}
