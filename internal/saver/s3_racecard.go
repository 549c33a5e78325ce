package saver

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/store"
)

// RaceCardSaver persists the Players, Entries, PlayerRecords, and
// LinePrediction shapes produced by Updater U3.
type RaceCardSaver struct {
	conn   *store.Connection
	logger *slog.Logger
}

// NewRaceCardSaver returns a RaceCardSaver writing through conn.
func NewRaceCardSaver(conn *store.Connection, logger *slog.Logger) *RaceCardSaver {
	return &RaceCardSaver{conn: conn, logger: logger}
}

func (s *RaceCardSaver) savePlayersBatch(ctx context.Context, tx *sql.Tx, players []model.Player, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(players))
	for _, p := range players {
		rows = append(rows, Row{
			Values: []any{
				p.RaceID, p.PlayerID, p.Name, p.Class, p.Group, p.Prefecture,
				p.Term, p.RegionID, Birthday(p.Birthday), p.Age, p.Gender,
			},
			HasKey:  p.RaceID != "" && p.PlayerID != "",
			KeyDesc: p.RaceID + "/" + p.PlayerID,
		})
	}
	columns := []string{
		"race_id", "player_id", "name", "class", "player_group", "prefecture",
		"term", "region_id", "birthday", "age", "gender",
	}
	updateCols := columns[2:]
	return upsertBatch(ctx, tx, s.logger, "players", columns, updateCols, rows, batchSize)
}

func (s *RaceCardSaver) saveEntriesBatch(ctx context.Context, tx *sql.Tx, entries []model.Entry, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		var playerID any
		if e.PlayerID != nil {
			playerID = *e.PlayerID
		}
		rows = append(rows, Row{
			Values: []any{
				e.RaceID, e.Number, BoolToInt(e.Absent), playerID, e.BracketNumber,
				e.CurrentTermClass, e.CurrentTermGroup,
				e.PreviousTermClass, e.PreviousTermGroup,
				BoolToInt(e.HasPreviousClassGroup),
			},
			HasKey:  e.RaceID != "" && e.Number > 0,
			KeyDesc: e.RaceID,
		})
	}
	columns := []string{
		"race_id", "number", "absent", "player_id", "bracket_number",
		"current_term_class", "current_term_group",
		"previous_term_class", "previous_term_group", "has_previous_class_group",
	}
	updateCols := columns[2:]
	return upsertBatch(ctx, tx, s.logger, "entries", columns, updateCols, rows, batchSize)
}

func (s *RaceCardSaver) savePlayerRecordsBatch(ctx context.Context, tx *sql.Tx, records []model.PlayerRecord, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, Row{
			Values: []any{
				r.RaceID, r.PlayerID, r.GearRatio, r.Style, r.RacePoint, r.Comment,
				r.PredictionMark, r.FirstRate, r.SecondRate, r.ThirdRate,
				BoolToInt(r.HasModifiedGearRatio), r.ModifiedGearRatio, r.PreviousCupID,
			},
			HasKey:  r.RaceID != "" && r.PlayerID != "",
			KeyDesc: r.RaceID + "/" + r.PlayerID,
		})
	}
	columns := []string{
		"race_id", "player_id", "gear_ratio", "style", "race_point", "comment",
		"prediction_mark", "first_rate", "second_rate", "third_rate",
		"has_modified_gear_ratio", "modified_gear_ratio", "previous_cup_id",
	}
	updateCols := columns[2:]
	return upsertBatch(ctx, tx, s.logger, "player_records", columns, updateCols, rows, batchSize)
}

func (s *RaceCardSaver) saveLinePredictionsBatch(ctx context.Context, tx *sql.Tx, predictions []model.LinePrediction, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(predictions))
	for _, p := range predictions {
		rows = append(rows, Row{
			Values:  []any{p.RaceID, p.LineType, p.LineFormation},
			HasKey:  p.RaceID != "",
			KeyDesc: p.RaceID,
		})
	}
	columns := []string{"race_id", "line_type", "line_formation"}
	updateCols := columns[1:]
	return upsertBatch(ctx, tx, s.logger, "line_predictions", columns, updateCols, rows, batchSize)
}

// RaceCardData is one race's transformed card: entries, player snapshots,
// per-player records, and the predicted line formation.
type RaceCardData struct {
	Players         []model.Player
	Entries         []model.Entry
	PlayerRecords   []model.PlayerRecord
	LinePredictions []model.LinePrediction
}

// SaveRaceDetailsStep3 persists one race's players, entries, player
// records, and line prediction inside a single transaction in lock order.
func (s *RaceCardSaver) SaveRaceDetailsStep3(ctx context.Context, data RaceCardData, lockOrder *store.LockOrder) error {
	tables := lockOrder.Sort(
		[]string{"line_predictions", "player_records", "entries", "players"}, s.logger)

	return s.conn.ExecuteInTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			var err error
			switch table {
			case "players":
				_, err = s.savePlayersBatch(ctx, tx, data.Players, 0)
			case "entries":
				_, err = s.saveEntriesBatch(ctx, tx, data.Entries, 0)
			case "player_records":
				_, err = s.savePlayerRecordsBatch(ctx, tx, data.PlayerRecords, 0)
			case "line_predictions":
				_, err = s.saveLinePredictionsBatch(ctx, tx, data.LinePredictions, 0)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRaceStatuses returns the current races.status for each of the given
// race ids, used by Updater U3's force-update gate.
func (s *RaceCardSaver) GetRaceStatuses(ctx context.Context, raceIDs []string) (map[string]int, error) {
	if len(raceIDs) == 0 {
		return map[string]int{}, nil
	}

	placeholders := make([]any, len(raceIDs))
	query := "SELECT id, status FROM races WHERE id IN ("
	for i, id := range raceIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"

	rows, err := s.conn.ExecuteQuery(ctx, query, placeholders...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[string]int, len(raceIDs))
	for rows.Next() {
		var id string
		var status int
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		statuses[id] = status
	}
	return statuses, rows.Err()
}
