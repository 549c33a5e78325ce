// Package racestatus implements the per-race, per-stage status machine
// that drives incremental, idempotent re-runs: race_status.step2_status
// through step5_status each track one pipeline stage's progress against a
// single race.
package racestatus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keirindata/pipeline/internal/model"
)

// Step identifies which of the four stage columns a transition applies to.
type Step int

const (
	Step2 Step = 2
	Step3 Step = 3
	Step4 Step = 4
	Step5 Step = 5
)

func (s Step) column() (string, error) {
	switch s {
	case Step2:
		return "step2_status", nil
	case Step3:
		return "step3_status", nil
	case Step4:
		return "step4_status", nil
	case Step5:
		return "step5_status", nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownStep, s)
	}
}

// Sentinel errors for invalid transitions.
var (
	ErrUnknownStep          = errors.New("unknown status step")
	ErrTerminalFromTerminal = errors.New("processing may only be entered from pending or a terminal state")
)

// terminal reports whether a status requires no further transitions to
// reach a resting state; "processing" is explicitly excluded; a crash mid
// run leaves a race there, and the next run treats it exactly like
// pending.
func terminal(s model.StepStatus) bool {
	switch s {
	case model.StepCompleted, model.StepFailed, model.StepNoData, model.StepDataNotAvailable:
		return true
	default:
		return false
	}
}

// ValidateTransition reports whether moving a race's stage status from
// `from` to `to` is legal. Every status value may move to "processing"
// (pending and every terminal state included — a later run is always
// allowed to retry). From "processing" only a terminal state may be
// entered; a terminal state may only be left by re-entering "processing".
func ValidateTransition(from, to model.StepStatus) error {
	if to == model.StepProcessing {
		if from != model.StepPending && !terminal(from) {
			return fmt.Errorf("%w: from %q", ErrTerminalFromTerminal, from)
		}
		return nil
	}
	if !terminal(to) {
		return fmt.Errorf("invalid target status %q", to)
	}
	if from != model.StepProcessing {
		return fmt.Errorf("status %q may only be entered from \"processing\", got %q", to, from)
	}
	return nil
}

// Gateway applies status-machine transitions against race_status rows,
// serialized per race with SELECT ... FOR UPDATE so a concurrent batch
// sweep can't race with an in-flight worker's own update.
type Gateway struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGateway returns a Gateway backed by db.
func NewGateway(db *sql.DB, logger *slog.Logger) *Gateway {
	return &Gateway{db: db, logger: logger}
}

// UpdateBatch sets step's status column to `to` for every race in raceIDs,
// inside one transaction. Each row is locked with SELECT ... FOR UPDATE
// before the UPDATE, matching the pipeline's lock-order discipline. A race
// ID with no matching row is logged and otherwise ignored — the race might
// not have existed when an earlier stage ran.
func (g *Gateway) UpdateBatch(ctx context.Context, step Step, raceIDs []string, to model.StepStatus) error {
	column, err := step.column()
	if err != nil {
		return err
	}
	if len(raceIDs) == 0 {
		return nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := fmt.Sprintf("SELECT race_id, %s FROM race_status WHERE race_id = ? FOR UPDATE", column)
	updateQuery := fmt.Sprintf("UPDATE race_status SET %s = ?, last_updated = NOW() WHERE race_id = ?", column)

	for _, raceID := range raceIDs {
		var foundID string
		var current sql.NullString
		err := tx.QueryRowContext(ctx, selectQuery, raceID).Scan(&foundID, &current)
		if errors.Is(err, sql.ErrNoRows) {
			g.logger.Warn("race_status row missing, skipping status update", "race_id", raceID, "step", step)
			continue
		}
		if err != nil {
			return err
		}

		from := model.StepStatus(current.String)
		if verr := ValidateTransition(from, to); verr != nil {
			g.logger.Warn("skipping invalid status transition", "race_id", raceID, "step", step, "from", from, "to", to, "error", verr)
			continue
		}

		if _, err := tx.ExecContext(ctx, updateQuery, string(to), raceID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
