package racestatus

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/keirindata/pipeline/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestValidateTransitionAllowsPendingToProcessing tests the initial
// transition out of pending.
func TestValidateTransitionAllowsPendingToProcessing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if err := ValidateTransition(model.StepPending, model.StepProcessing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestValidateTransitionAllowsRetryFromTerminal tests that a terminal
// state can be retried by re-entering processing.
func TestValidateTransitionAllowsRetryFromTerminal(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	for _, from := range []model.StepStatus{model.StepCompleted, model.StepFailed, model.StepNoData, model.StepDataNotAvailable} {
		if err := ValidateTransition(from, model.StepProcessing); err != nil {
			t.Errorf("expected retry from %q to be allowed, got %v", from, err)
		}
	}
}

// TestValidateTransitionRejectsProcessingFromProcessing tests that
// "processing" cannot be re-entered from itself.
func TestValidateTransitionRejectsProcessingFromProcessing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if err := ValidateTransition(model.StepProcessing, model.StepProcessing); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TestValidateTransitionRequiresProcessingBeforeTerminal tests that a
// terminal status cannot be reached directly from pending.
func TestValidateTransitionRequiresProcessingBeforeTerminal(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if err := ValidateTransition(model.StepPending, model.StepCompleted); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TestUpdateBatchSkipsMissingRows tests that a race_id with no race_status
// row is skipped without failing the whole batch.
func TestUpdateBatchSkipsMissingRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT race_id, step4_status FROM race_status").
		WithArgs("missing-race").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	gw := NewGateway(db, discardLogger())
	if err := gw.UpdateBatch(context.Background(), Step4, []string{"missing-race"}, model.StepNoData); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestUpdateBatchAppliesValidTransition tests the happy path: a race in
// "processing" moves to "completed".
func TestUpdateBatchAppliesValidTransition(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT race_id, step4_status FROM race_status").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"race_id", "step4_status"}).AddRow("r1", "processing"))
	mock.ExpectExec("UPDATE race_status SET step4_status").
		WithArgs("completed", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gw := NewGateway(db, discardLogger())
	if err := gw.UpdateBatch(context.Background(), Step4, []string{"r1"}, model.StepCompleted); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
