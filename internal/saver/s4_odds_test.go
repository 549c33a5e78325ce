package saver

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/store"
)

// TestSaveRaceOddsWritesPopulatedBetTypesAndStatus tests that only bet
// types with rows are written, in lock order, with the status row always
// written last.
func TestSaveRaceOddsWritesPopulatedBetTypesAndStatus(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO odds_exacta")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO odds_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conn := &store.Connection{DB: db}
	saver := NewOddsSaver(conn, discardLogger())
	lockOrder := store.LoadLockOrder("/nonexistent/path.ini", discardLogger())

	data := RaceOddsData{
		ByBetType: map[string][]model.OddsRow{
			"exacta": {{RaceID: "r1", Key: "1-2", Odds: 12.5}},
		},
		Status: model.OddsStatus{RaceID: "r1", IsAggregated: true},
	}

	require.NoError(t, saver.SaveRaceOdds(context.Background(), data, lockOrder))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSaveRaceOddsSkipsEmptyBetTypes tests that a bet type with no rows
// issues no statement for its table, leaving only the status write.
func TestSaveRaceOddsSkipsEmptyBetTypes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO odds_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conn := &store.Connection{DB: db}
	saver := NewOddsSaver(conn, discardLogger())
	lockOrder := store.LoadLockOrder("/nonexistent/path.ini", discardLogger())

	data := RaceOddsData{
		ByBetType: map[string][]model.OddsRow{},
		Status:    model.OddsStatus{RaceID: "r1"},
	}

	require.NoError(t, saver.SaveRaceOdds(context.Background(), data, lockOrder))
	require.NoError(t, mock.ExpectationsWereMet())
}
