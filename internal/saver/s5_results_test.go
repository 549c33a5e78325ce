package saver

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/keirindata/pipeline/internal/htmlparse"
	"github.com/keirindata/pipeline/internal/store"
)

// TestSaveRaceResultsStep5OmitsEmptyOptionalSections tests that a parse
// with no comment and no lap positions only writes race_results and
// lap_data_status, skipping the optional tables entirely.
func TestSaveRaceResultsStep5OmitsEmptyOptionalSections(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lap_data_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inspection_reports")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO race_results")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conn := &store.Connection{DB: db}
	saver := NewResultsSaver(conn, discardLogger())
	lockOrder := store.LoadLockOrder("/nonexistent/path.ini", discardLogger())

	html := `<table><tr><th>着</th><th>車番</th><th>選手名</th></tr>
<tr><td>1</td><td><i class="bikeno-2"></i></td><td>テスト選手</td></tr></table>`
	parsed := htmlparse.Parse("r1", html)

	data := FromParsed("r1", parsed, true, 1700000000)
	require.NoError(t, saver.SaveRaceResultsStep5(context.Background(), data, lockOrder))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSaveRaceResultsStep5WritesCommentAndLapPositionsWhenPresent tests
// that the optional tables are written when the parse produced them.
func TestSaveRaceResultsStep5WritesCommentAndLapPositionsWhenPresent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO race_results")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO race_comments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lap_positions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inspection_reports")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lap_data_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conn := &store.Connection{DB: db}
	saver := NewResultsSaver(conn, discardLogger())
	lockOrder := store.LoadLockOrder("/nonexistent/path.ini", discardLogger())

	html := `
<html><body>
<table><tr><th>着</th><th>車番</th><th>選手名</th></tr>
<tr><td>1</td><td><i class="bikeno-2"></i></td><td></td><td>テスト選手</td><td>30</td><td>東京</td><td>100</td><td>A1</td><td></td><td>11.0</td></tr></table>
<div><h3>レース評</h3><p>好スタートだった</p></div>
<div class="b-hyo">
<table><tr><th class="bg-base-color">周回</th></tr></table>
<span class="bike-icon-wrapper bikeno-2 x-5 y-5"><span class="racer-nm">テスト</span></span>
</div>
<p class="result-kensya-report-text">【テスト選手(1着)】「好走」</p>
</body></html>`
	parsed := htmlparse.Parse("r1", html)
	require.True(t, parsed.HasComment, "expected test fixture to produce a comment, got %+v", parsed)

	data := FromParsed("r1", parsed, true, 1700000000)
	require.NoError(t, saver.SaveRaceResultsStep5(context.Background(), data, lockOrder))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetEntryPlayerMapSkipsNullPlayerIDs tests that entries with a NULL
// player_id are dropped from the returned map rather than producing a
// zero-value entry.
func TestGetEntryPlayerMapSkipsNullPlayerIDs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"bracket_number", "player_id"}).
		AddRow(1, "p1").
		AddRow(2, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT bracket_number, player_id FROM entries WHERE race_id = ?")).
		WithArgs("r1").
		WillReturnRows(rows)

	conn := &store.Connection{DB: db}
	saver := NewResultsSaver(conn, discardLogger())

	got, err := saver.GetEntryPlayerMap(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, map[int]string{1: "p1"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
