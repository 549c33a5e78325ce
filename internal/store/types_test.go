package store

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// TestHealthCheckPingsConnection tests that HealthCheck delegates to the
// underlying ping.
func TestHealthCheckPingsConnection(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()

	conn := &Connection{db}
	if err := conn.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestHealthCheckDefaultsContext tests that a nil context is tolerated.
func TestHealthCheckDefaultsContext(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()

	conn := &Connection{db}
	if err := conn.HealthCheck(nil); err != nil { //nolint:staticcheck
		t.Fatalf("HealthCheck: %v", err)
	}
}
