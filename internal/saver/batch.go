package saver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultBatchSize is the chunk size used when a caller doesn't specify
// one, matching the upstream savers' default.
const DefaultBatchSize = 500

// Row is one table row about to be upserted, carrying its primary-key
// check alongside the column values so upsertBatch can skip and log rows
// missing a primary key without the caller repeating that check.
type Row struct {
	Values  []any
	HasKey  bool
	KeyDesc string // for the warning log when HasKey is false
}

// upsertBatch builds and executes one `INSERT ... ON DUPLICATE KEY UPDATE`
// statement per chunk of batchSize rows. Rows without a primary key are
// skipped and logged rather than aborting the whole batch. updateCols
// lists the columns refreshed on conflict (everything except the key
// columns, conventionally).
func upsertBatch(
	ctx context.Context,
	tx *sql.Tx,
	logger *slog.Logger,
	table string,
	columns []string,
	updateCols []string,
	rows []Row,
	batchSize int,
) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	valid := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !r.HasKey {
			logger.Warn("skipping row missing primary key", "table", table, "row", r.KeyDesc)
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	var total int64
	for start := 0; start < len(valid); start += batchSize {
		end := start + batchSize
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]

		query, args := buildUpsert(table, columns, updateCols, chunk)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("upsert %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("upsert %s rows affected: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func buildUpsert(table string, columns, updateCols []string, rows []Row) (string, []any) {
	placeholderGroup := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholderGroup)
		args = append(args, r.Values...)
	}

	b.WriteString(" ON DUPLICATE KEY UPDATE ")
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	b.WriteString(strings.Join(sets, ", "))

	return b.String(), args
}

// insertIgnoreBatch is used for rows that must be created once and never
// overwritten by a later Saver call (race_status seeding): an
// `INSERT ... ON DUPLICATE KEY UPDATE race_id = VALUES(race_id)` no-op keeps an
// existing row untouched.
func insertIgnoreBatch(
	ctx context.Context,
	tx *sql.Tx,
	logger *slog.Logger,
	table string,
	columns []string,
	keyColumn string,
	rows []Row,
	batchSize int,
) (int64, error) {
	return upsertBatch(ctx, tx, logger, table, columns, []string{keyColumn}, rows, batchSize)
}
