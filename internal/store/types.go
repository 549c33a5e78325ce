// Package store provides the MySQL-backed data access layer shared by every
// Saver and Updater: pooled connections, deadlock-aware retries, and the
// lock-order discipline that keeps concurrent multi-table writes from
// cross-deadlocking each other.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

const (
	mysqlDriver = "mysql"
	ctxTimeout  = 5 * time.Second
)

// Connection wraps a pooled MySQL *sql.DB.
type Connection struct {
	*sql.DB
}

// NewConnection opens a pooled MySQL connection using config and verifies it
// with an immediate ping.
func NewConnection(config *Config) (*Connection, error) {
	db, err := sql.Open(mysqlDriver, config.dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	return &Connection{db}, nil
}

// HealthCheck pings the database, suitable for periodic liveness checks. A
// nil ctx gets a 5s timeout; a non-nil ctx is used as given.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), ctxTimeout)
		defer cancel()
	}
	return c.PingContext(ctx)
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Stats returns connection pool statistics for monitoring.
func (c *Connection) Stats() sql.DBStats {
	return c.DB.Stats()
}
