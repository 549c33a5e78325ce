package updater

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/saver"
	"github.com/keirindata/pipeline/internal/store"
	"github.com/keirindata/pipeline/internal/winticket"
)

// CupDetailUpdater is U2: fetches schedules and races for a list of cups
// with a bounded worker pool and persists them per cup.
type CupDetailUpdater struct {
	client     *winticket.Client
	saver      *saver.CupDetailSaver
	lockOrder  *store.LockOrder
	maxWorkers int
	logger     *slog.Logger
}

// NewCupDetailUpdater returns a CupDetailUpdater with the given worker
// pool size (at least 1).
func NewCupDetailUpdater(client *winticket.Client, s *saver.CupDetailSaver, lockOrder *store.LockOrder, maxWorkers int, logger *slog.Logger) *CupDetailUpdater {
	return &CupDetailUpdater{client: client, saver: s, lockOrder: lockOrder, maxWorkers: maxWorkers, logger: logger}
}

type cupOutcome struct {
	cupID string
	err   error
	empty bool
}

// Run fetches and persists detail for each cup id, tolerating individual
// cup failures without aborting the batch.
func (u *CupDetailUpdater) Run(ctx context.Context, cupIDs []string) Summary {
	summary := Summary{Inputs: len(cupIDs)}
	if len(cupIDs) == 0 {
		return summary
	}

	outcomes := runPool(cupIDs, u.maxWorkers, func(cupID string) cupOutcome {
		return u.processOne(ctx, cupID)
	})

	for _, o := range outcomes {
		summary.Attempted++
		switch {
		case o.err != nil:
			summary.Failed++
			u.logger.Error("cup detail update failed", "cup_id", o.cupID, "error", o.err)
		case o.empty:
			summary.NoData++
		default:
			summary.Completed++
		}
	}
	return summary
}

func (u *CupDetailUpdater) processOne(ctx context.Context, cupID string) cupOutcome {
	raw, err := u.client.CupDetail(ctx, cupID)
	if err != nil {
		return cupOutcome{cupID: cupID, err: fmt.Errorf("fetch cup detail: %w", err)}
	}
	if raw == nil {
		return cupOutcome{cupID: cupID, empty: true}
	}

	var wire wireCupDetail
	if err := unmarshalInto(raw, &wire); err != nil {
		return cupOutcome{cupID: cupID, err: fmt.Errorf("decode cup detail: %w", err)}
	}

	scheduleIDs := make(map[string]bool, len(wire.Schedules))
	schedules := make([]model.Schedule, 0, len(wire.Schedules))
	for _, sc := range wire.Schedules {
		scheduleIDs[sc.ID] = true
		schedules = append(schedules, model.Schedule{
			ID:             sc.ID,
			CupID:          cupID,
			Date:           sc.Date,
			DayNumber:      sc.Day,
			ScheduleIndex:  sc.Index,
			EntriesUnfixed: sc.EntriesUnfixed,
		})
	}

	races := make([]model.Race, 0, len(wire.Races))
	for _, r := range wire.Races {
		scheduleID := ResolveScheduleID(r.ScheduleID, scheduleIDs)
		if r.ScheduleID != "" && scheduleID == nil {
			u.logger.Warn("race scheduleId did not resolve against cup schedules", "race_id", r.ID, "cup_id", cupID, "schedule_id", r.ScheduleID)
		}
		races = append(races, model.Race{
			ID:             r.ID,
			CupID:          cupID,
			ScheduleID:     scheduleID,
			Number:         r.Number,
			Class:          r.Class,
			RaceType:       r.RaceType,
			StartAt:        ParseTimestamp(r.StartAt),
			CloseAt:        ParseTimestamp(r.CloseAt),
			DecidedAt:      ParseTimestamp(r.DecidedAt),
			Status:         coerceStatus(r.Status),
			Cancel:         saver.BoolFromAny(r.Cancel),
			CancelReason:   r.CancelReason,
			Weather:        r.Weather,
			WindSpeed:      r.WindSpeed,
			Distance:       r.Distance,
			LapCount:       r.Lap,
			EntriesCount:   r.EntriesNumber,
			GradeRace:      saver.BoolFromAny(r.IsGradeRace),
			HasDigestVideo: saver.BoolFromAny(r.HasDigestVideo),
			DigestVideo:    r.DigestVideo,
			DigestProvider: r.DigestVideoProvider,
		})
	}

	if err := u.saver.SaveCupDetail(ctx, schedules, races, u.lockOrder); err != nil {
		return cupOutcome{cupID: cupID, err: fmt.Errorf("save cup detail: %w", err)}
	}
	return cupOutcome{cupID: cupID}
}

// coerceStatus accepts either a JSON number or numeric string for
// races.status, matching the upstream API's inconsistent encoding.
func coerceStatus(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		return ParseIntDefault(t, 0)
	default:
		return 0
	}
}
