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

// TestSaveRaceDetailsStep3WritesInLockOrder tests that players, entries,
// player records, and the line prediction are upserted in the configured
// lock order inside one transaction.
func TestSaveRaceDetailsStep3WritesInLockOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO players")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO player_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO line_predictions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conn := &store.Connection{DB: db}
	saver := NewRaceCardSaver(conn, discardLogger())
	lockOrder := store.LoadLockOrder("/nonexistent/path.ini", discardLogger())

	data := RaceCardData{
		Players:         []model.Player{{RaceID: "r1", PlayerID: "p1", Name: "Taro"}},
		Entries:         []model.Entry{{RaceID: "r1", Number: 1, BracketNumber: 1}},
		PlayerRecords:   []model.PlayerRecord{{RaceID: "r1", PlayerID: "p1"}},
		LinePredictions: []model.LinePrediction{{RaceID: "r1", LineType: "kakutei", LineFormation: "1・2"}},
	}

	require.NoError(t, saver.SaveRaceDetailsStep3(context.Background(), data, lockOrder))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetRaceStatusesReturnsEmptyMapForNoIDs tests that an empty id slice
// short-circuits without issuing a query.
func TestGetRaceStatusesReturnsEmptyMapForNoIDs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conn := &store.Connection{DB: db}
	saver := NewRaceCardSaver(conn, discardLogger())

	got, err := saver.GetRaceStatuses(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetRaceStatusesScansRows tests that status rows are collected into a
// map keyed by race id.
func TestGetRaceStatusesScansRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "status"}).
		AddRow("r1", 3).
		AddRow("r2", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status FROM races WHERE id IN (?,?)")).
		WithArgs("r1", "r2").
		WillReturnRows(rows)

	conn := &store.Connection{DB: db}
	saver := NewRaceCardSaver(conn, discardLogger())

	got, err := saver.GetRaceStatuses(context.Background(), []string{"r1", "r2"})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"r1": 3, "r2": 1}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
