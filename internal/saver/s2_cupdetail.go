package saver

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/store"
)

// CupDetailSaver persists the schedules, races, and seed race_status rows
// produced by Updater U2.
type CupDetailSaver struct {
	conn   *store.Connection
	logger *slog.Logger
}

// NewCupDetailSaver returns a CupDetailSaver writing through conn.
func NewCupDetailSaver(conn *store.Connection, logger *slog.Logger) *CupDetailSaver {
	return &CupDetailSaver{conn: conn, logger: logger}
}

func (s *CupDetailSaver) saveSchedulesBatch(ctx context.Context, tx *sql.Tx, schedules []model.Schedule, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(schedules))
	for _, sc := range schedules {
		rows = append(rows, Row{
			Values:  []any{sc.ID, sc.CupID, sc.Date, sc.DayNumber, sc.ScheduleIndex, BoolToInt(sc.EntriesUnfixed)},
			HasKey:  sc.ID != "",
			KeyDesc: sc.ID,
		})
	}
	columns := []string{"id", "cup_id", "date", "day_number", "schedule_index", "entries_unfixed"}
	updateCols := columns[1:]
	return upsertBatch(ctx, tx, s.logger, "schedules", columns, updateCols, rows, batchSize)
}

func (s *CupDetailSaver) saveRacesBatch(ctx context.Context, tx *sql.Tx, races []model.Race, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(races))
	for _, r := range races {
		var scheduleID any
		if r.ScheduleID != nil {
			scheduleID = *r.ScheduleID
		}
		rows = append(rows, Row{
			Values: []any{
				r.ID, r.CupID, scheduleID, r.Number, r.Class, r.RaceType,
				r.StartAt, r.CloseAt, r.DecidedAt, r.Status,
				BoolToInt(r.Cancel), r.CancelReason, r.Weather, r.WindSpeed,
				r.Distance, r.LapCount, r.EntriesCount, BoolToInt(r.GradeRace),
				BoolToInt(r.HasDigestVideo), r.DigestVideo, r.DigestProvider,
			},
			HasKey:  r.ID != "",
			KeyDesc: r.ID,
		})
	}
	columns := []string{
		"id", "cup_id", "schedule_id", "number", "class", "race_type",
		"start_at", "close_at", "decided_at", "status",
		"cancel", "cancel_reason", "weather", "wind_speed",
		"distance", "lap_count", "entries_count", "grade_race",
		"has_digest_video", "digest_video", "digest_provider",
	}
	updateCols := columns[1:]
	return upsertBatch(ctx, tx, s.logger, "races", columns, updateCols, rows, batchSize)
}

// seedRaceStatusBatch inserts a bare race_status row for each race id,
// leaving an existing row untouched (an already-running pipeline must not
// have its progress reset by a later re-fetch of cup detail).
func (s *CupDetailSaver) seedRaceStatusBatch(ctx context.Context, tx *sql.Tx, raceIDs []string, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(raceIDs))
	for _, id := range raceIDs {
		rows = append(rows, Row{Values: []any{id}, HasKey: id != "", KeyDesc: id})
	}
	return insertIgnoreBatch(ctx, tx, s.logger, "race_status", []string{"race_id"}, "race_id", rows, batchSize)
}

// SaveCupDetail persists one cup's schedules and races, then seeds
// race_status rows, all inside a single transaction in lock order.
func (s *CupDetailSaver) SaveCupDetail(
	ctx context.Context,
	schedules []model.Schedule,
	races []model.Race,
	lockOrder *store.LockOrder,
) error {
	tables := lockOrder.Sort([]string{"race_status", "races", "schedules"}, s.logger)

	raceIDs := make([]string, 0, len(races))
	for _, r := range races {
		raceIDs = append(raceIDs, r.ID)
	}

	return s.conn.ExecuteInTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			var err error
			switch table {
			case "schedules":
				_, err = s.saveSchedulesBatch(ctx, tx, schedules, 0)
			case "races":
				_, err = s.saveRacesBatch(ctx, tx, races, 0)
			case "race_status":
				_, err = s.seedRaceStatusBatch(ctx, tx, raceIDs, 0)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
