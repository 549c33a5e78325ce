package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	// MaxRetryAttempts bounds how many times in total an operation is
	// attempted while it fails with a deadlock or lock-wait timeout, before
	// the error is allowed to propagate.
	MaxRetryAttempts = 3

	errDeadlock        = 1213
	errLockWaitTimeout = 1205

	retryDelayBase = 500 * time.Millisecond
)

// isRetryable reports whether err is a MySQL deadlock or lock-wait timeout,
// the only conditions the pipeline retries automatically.
func isRetryable(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == errDeadlock || mysqlErr.Number == errLockWaitTimeout
}

// withRetry runs fn up to MaxRetryAttempts times in total while it fails
// with a deadlock or lock-wait timeout, waiting (attempt+1) * 500ms after
// each such failure. Any other error is returned immediately without retry.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < MaxRetryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		delay := time.Duration(attempt+1) * retryDelayBase
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// Querier is the query surface shared by *Connection and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ExecuteQuery runs a read or write query against the pool, retrying on
// deadlock/lock-wait timeout.
func (c *Connection) ExecuteQuery(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := withRetry(ctx, func() error {
		var err error
		rows, err = c.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

// ExecuteQueryTx is ExecuteQuery scoped to an existing transaction, used by
// callers that already hold a connection via ExecuteInTransaction. It does
// not retry: a deadlock inside an open transaction must abort and roll the
// whole transaction back, not just the failing statement.
func ExecuteQueryTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	return tx.QueryContext(ctx, query, args...)
}

// ExecuteQueryForUpdate runs query inside tx and expects the caller to have
// appended "FOR UPDATE" to query themselves; it exists to document the
// calling convention and is otherwise a thin wrapper.
func ExecuteQueryForUpdate(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	return tx.QueryContext(ctx, query, args...)
}

// ExecuteMany runs query once per row in paramRows inside a single
// retryable unit of work, returning the total number of affected rows.
func (c *Connection) ExecuteMany(ctx context.Context, query string, paramRows [][]any) (int64, error) {
	var affected int64
	err := withRetry(ctx, func() error {
		affected = 0
		tx, err := c.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, params := range paramRows {
			res, err := tx.ExecContext(ctx, query, params...)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			affected += n
		}
		return tx.Commit()
	})
	return affected, err
}

// ExecuteScalar runs query and scans a single column from the first row
// into dest.
func (c *Connection) ExecuteScalar(ctx context.Context, query string, args []any, dest any) error {
	return withRetry(ctx, func() error {
		return c.QueryRowContext(ctx, query, args...).Scan(dest)
	})
}

// ExecuteInTransaction opens a transaction, invokes fn with it, and commits
// on success or rolls back on any error returned by fn (including a panic
// recovered and re-raised). The whole unit of work is retried on deadlock
// or lock-wait timeout.
func (c *Connection) ExecuteInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return withRetry(ctx, func() (err error) {
		tx, err := c.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
			if err != nil {
				_ = tx.Rollback()
				return
			}
			err = tx.Commit()
		}()
		err = fn(tx)
		return err
	})
}
