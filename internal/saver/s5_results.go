package saver

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/keirindata/pipeline/internal/htmlparse"
	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/store"
)

// ResultsSaver persists the RaceResult, RaceComment, LapPosition, and
// InspectionReport shapes extracted from HTML by Updater U5.
type ResultsSaver struct {
	conn   *store.Connection
	logger *slog.Logger
}

// NewResultsSaver returns a ResultsSaver writing through conn.
func NewResultsSaver(conn *store.Connection, logger *slog.Logger) *ResultsSaver {
	return &ResultsSaver{conn: conn, logger: logger}
}

func (s *ResultsSaver) saveRaceResultsBatch(ctx context.Context, tx *sql.Tx, results []model.RaceResult, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		var playerID any
		if r.PlayerID != nil {
			playerID = *r.PlayerID
		}
		rows = append(rows, Row{
			Values: []any{
				r.RaceID, r.BracketNumber, r.Rank, r.RankText, r.Mark,
				r.PlayerName, playerID, r.Age, r.Prefecture, r.Period, r.Class,
				r.Diff, r.Time, r.LastLapTime, r.WinningTechnique,
				r.Symbols, r.WinFactor, r.PersonalStatus,
			},
			HasKey:  r.RaceID != "" && r.BracketNumber > 0,
			KeyDesc: r.RaceID,
		})
	}
	columns := []string{
		"race_id", "bracket_number", "rank", "rank_text", "mark",
		"player_name", "player_id", "age", "prefecture", "period", "class",
		"diff", "time", "last_lap_time", "winning_technique",
		"symbols", "win_factor", "personal_status",
	}
	updateCols := columns[2:]
	return upsertBatch(ctx, tx, s.logger, "race_results", columns, updateCols, rows, batchSize)
}

func (s *ResultsSaver) saveRaceCommentsBatch(ctx context.Context, tx *sql.Tx, comments []model.RaceComment, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(comments))
	for _, c := range comments {
		rows = append(rows, Row{
			Values:  []any{c.RaceID, c.Comment},
			HasKey:  c.RaceID != "",
			KeyDesc: c.RaceID,
		})
	}
	columns := []string{"race_id", "comment"}
	return upsertBatch(ctx, tx, s.logger, "race_comments", columns, columns[1:], rows, batchSize)
}

func (s *ResultsSaver) saveLapPositionsBatch(ctx context.Context, tx *sql.Tx, positions []model.LapPositions, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(positions))
	for _, lp := range positions {
		rows = append(rows, Row{
			Values: []any{
				lp.RaceID,
				marshalPoints(lp.Shuukai),
				marshalPoints(lp.Akaban),
				marshalPoints(lp.Dasho),
				marshalPoints(lp.HS),
				marshalPoints(lp.BS),
			},
			HasKey:  lp.RaceID != "",
			KeyDesc: lp.RaceID,
		})
	}
	columns := []string{"race_id", "lap_shuukai", "lap_akaban", "lap_dasho", "lap_hs", "lap_bs"}
	return upsertBatch(ctx, tx, s.logger, "lap_positions", columns, columns[1:], rows, batchSize)
}

// marshalPoints serializes a track section's points to JSON as ordered
// [bracket, name, x, y, has_arrow] tuples; nil for an empty section so it
// is stored as SQL NULL rather than "[]", matching the "sections with
// zero rows are omitted" contract.
func marshalPoints(points []model.LapPositionPoint) any {
	if len(points) == 0 {
		return nil
	}
	tuples := make([][]any, len(points))
	for i, p := range points {
		tuples[i] = []any{p.Bracket, p.PlayerName, p.X, p.Y, p.HasArrow}
	}
	encoded, err := json.Marshal(tuples)
	if err != nil {
		return nil
	}
	return string(encoded)
}

func (s *ResultsSaver) saveInspectionReportsBatch(ctx context.Context, tx *sql.Tx, reports []model.InspectionReport, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, Row{
			Values:  []any{r.RaceID, Truncate(r.Player, 6), r.Comment},
			HasKey:  r.RaceID != "",
			KeyDesc: r.RaceID,
		})
	}
	columns := []string{"race_id", "player", "comment"}
	return upsertBatch(ctx, tx, s.logger, "inspection_reports", columns, columns[1:], rows, batchSize)
}

func (s *ResultsSaver) saveLapDataStatusBatch(ctx context.Context, tx *sql.Tx, statuses []model.LapDataStatus, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, Row{
			Values:  []any{st.RaceID, BoolToInt(st.IsProcessed), st.LastCheckedAtUnix},
			HasKey:  st.RaceID != "",
			KeyDesc: st.RaceID,
		})
	}
	columns := []string{"race_id", "is_processed", "last_checked_at"}
	return upsertBatch(ctx, tx, s.logger, "lap_data_status", columns, columns[1:], rows, batchSize)
}

// GetEntryPlayerMap returns bracket_number -> player_id for a race's
// entries, used by Updater U5 to resolve RaceResult.PlayerID from the
// bracket number printed on the result page.
func (s *ResultsSaver) GetEntryPlayerMap(ctx context.Context, raceID string) (map[int]string, error) {
	rows, err := s.conn.ExecuteQuery(ctx, "SELECT bracket_number, player_id FROM entries WHERE race_id = ?", raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var bracket int
		var playerID sql.NullString
		if err := rows.Scan(&bracket, &playerID); err != nil {
			return nil, err
		}
		if playerID.Valid {
			out[bracket] = playerID.String
		}
	}
	return out, rows.Err()
}

// RaceResultData is one race's parsed HTML result, already reconciled
// against Entry for player_id and ready to persist.
type RaceResultData struct {
	Results           []model.RaceResult
	Comment           *model.RaceComment
	LapPositions      *model.LapPositions
	InspectionReports []model.InspectionReport
	LapDataStatus     model.LapDataStatus
}

// FromParsed builds a RaceResultData from an htmlparse.Parsed value,
// leaving PlayerID reconciliation (which requires the Entry table) to the
// caller. LapPositions is nil when no track section has any points.
func FromParsed(raceID string, parsed htmlparse.Parsed, isProcessed bool, lastCheckedAtUnix int64) RaceResultData {
	data := RaceResultData{
		Results:           parsed.Results,
		InspectionReports: parsed.InspectionReports,
		LapDataStatus: model.LapDataStatus{
			RaceID:            raceID,
			IsProcessed:       isProcessed,
			LastCheckedAtUnix: lastCheckedAtUnix,
		},
	}
	if parsed.HasComment {
		data.Comment = &model.RaceComment{RaceID: raceID, Comment: parsed.Comment}
	}
	lp := parsed.LapPositions
	if len(lp.Shuukai) > 0 || len(lp.Akaban) > 0 || len(lp.Dasho) > 0 || len(lp.HS) > 0 || len(lp.BS) > 0 {
		data.LapPositions = &lp
	}
	return data
}

// SaveRaceResultsStep5 persists one race's results, comment, lap
// positions, inspection reports, and lap_data_status inside a single
// transaction, in lock order.
func (s *ResultsSaver) SaveRaceResultsStep5(ctx context.Context, data RaceResultData, lockOrder *store.LockOrder) error {
	tables := lockOrder.Sort(
		[]string{"lap_data_status", "inspection_reports", "lap_positions", "race_comments", "race_results"}, s.logger)

	return s.conn.ExecuteInTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			var err error
			switch table {
			case "race_results":
				_, err = s.saveRaceResultsBatch(ctx, tx, data.Results, 0)
			case "race_comments":
				if data.Comment != nil {
					_, err = s.saveRaceCommentsBatch(ctx, tx, []model.RaceComment{*data.Comment}, 0)
				}
			case "lap_positions":
				if data.LapPositions != nil {
					_, err = s.saveLapPositionsBatch(ctx, tx, []model.LapPositions{*data.LapPositions}, 0)
				}
			case "inspection_reports":
				_, err = s.saveInspectionReportsBatch(ctx, tx, data.InspectionReports, 0)
			case "lap_data_status":
				_, err = s.saveLapDataStatusBatch(ctx, tx, []model.LapDataStatus{data.LapDataStatus}, 0)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
