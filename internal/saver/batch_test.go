package saver

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestUpsertBatchSkipsRowsMissingKey tests that a row without a primary
// key is dropped from the statement rather than aborting the batch.
func TestUpsertBatchSkipsRowsMissingKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO regions")).
		WithArgs("r1", "Kanto").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	rows := []Row{
		{Values: []any{"r1", "Kanto"}, HasKey: true, KeyDesc: "r1"},
		{Values: []any{"", "Nowhere"}, HasKey: false, KeyDesc: ""},
	}
	affected, err := upsertBatch(context.Background(), tx, discardLogger(), "regions",
		[]string{"id", "name"}, []string{"name"}, rows, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestUpsertBatchChunksByBatchSize tests that rows exceeding batchSize are
// split into multiple statements.
func TestUpsertBatchChunksByBatchSize(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO regions")).
		WithArgs("r1", "A").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO regions")).
		WithArgs("r2", "B").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	rows := []Row{
		{Values: []any{"r1", "A"}, HasKey: true},
		{Values: []any{"r2", "B"}, HasKey: true},
	}
	affected, err := upsertBatch(context.Background(), tx, discardLogger(), "regions",
		[]string{"id", "name"}, []string{"name"}, rows, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestUpsertBatchAllRowsMissingKeyIsNoop tests that a batch with no valid
// rows issues no statement at all.
func TestUpsertBatchAllRowsMissingKeyIsNoop(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	rows := []Row{{Values: []any{"", "A"}, HasKey: false}}
	affected, err := upsertBatch(context.Background(), tx, discardLogger(), "regions",
		[]string{"id", "name"}, []string{"name"}, rows, 0)
	require.NoError(t, err)
	require.Zero(t, affected)
	require.NoError(t, tx.Commit())
}

// TestBuildUpsertProducesOnDuplicateKeyClause tests the generated SQL shape.
func TestBuildUpsertProducesOnDuplicateKeyClause(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	query, args := buildUpsert("cups", []string{"id", "name"}, []string{"name"},
		[]Row{{Values: []any{"c1", "Summer Cup"}}})

	require.Equal(t, "INSERT INTO cups (id, name) VALUES (?,?) ON DUPLICATE KEY UPDATE name = VALUES(name)", query)
	require.Equal(t, []any{"c1", "Summer Cup"}, args)
}
