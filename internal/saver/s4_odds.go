package saver

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/store"
)

// BetTypeTable maps a logical bet type to its table name.
var BetTypeTable = map[string]string{
	"exacta":          "odds_exacta",
	"quinella":        "odds_quinella",
	"quinellaPlace":   "odds_quinella_place",
	"trifecta":        "odds_trifecta",
	"trio":            "odds_trio",
	"bracketExacta":   "odds_bracket_exacta",
	"bracketQuinella": "odds_bracket_quinella",
}

// OddsSaver persists the seven bet-type odds tables and OddsStatus
// produced by Updater U4.
type OddsSaver struct {
	conn   *store.Connection
	logger *slog.Logger
}

// NewOddsSaver returns an OddsSaver writing through conn.
func NewOddsSaver(conn *store.Connection, logger *slog.Logger) *OddsSaver {
	return &OddsSaver{conn: conn, logger: logger}
}

func (s *OddsSaver) saveOddsBatch(ctx context.Context, tx *sql.Tx, table string, rows []model.OddsRow, batchSize int) (int64, error) {
	converted := make([]Row, 0, len(rows))
	for _, r := range rows {
		converted = append(converted, Row{
			Values: []any{
				r.RaceID, r.Key, r.Odds, r.MinOdds, r.MaxOdds,
				r.PopularityOrder, BoolToInt(r.Absent), r.Type,
			},
			HasKey:  r.RaceID != "" && r.Key != "",
			KeyDesc: r.RaceID + "/" + r.Key,
		})
	}
	columns := []string{"race_id", "odds_key", "odds", "min_odds", "max_odds", "popularity_order", "absent", "type"}
	updateCols := columns[2:]
	return upsertBatch(ctx, tx, s.logger, table, columns, updateCols, converted, batchSize)
}

func (s *OddsSaver) saveOddsStatusBatch(ctx context.Context, tx *sql.Tx, statuses []model.OddsStatus, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(statuses))
	for _, os := range statuses {
		payoff, _ := json.Marshal(os.PayoffStatus)
		rows = append(rows, Row{
			Values: []any{
				os.RaceID, string(payoff), BoolToInt(os.IsAggregated),
				os.OddsUpdatedAtUnix, BoolToInt(os.OddsDelayed), BoolToInt(os.FinalOdds),
			},
			HasKey:  os.RaceID != "",
			KeyDesc: os.RaceID,
		})
	}
	columns := []string{"race_id", "payoff_status", "is_aggregated", "odds_updated_at", "odds_delayed", "final_odds"}
	updateCols := columns[1:]
	return upsertBatch(ctx, tx, s.logger, "odds_status", columns, updateCols, rows, batchSize)
}

// RaceOddsData is one race's transformed odds: a row set per bet type,
// keyed by the logical bet-type name (e.g. "exacta"), plus the race's
// status row.
type RaceOddsData struct {
	ByBetType map[string][]model.OddsRow
	Status    model.OddsStatus
}

// SaveRaceOdds persists all seven bet-type tables and the OddsStatus row
// for one race inside a single transaction, in lock order.
func (s *OddsSaver) SaveRaceOdds(ctx context.Context, data RaceOddsData, lockOrder *store.LockOrder) error {
	tableNames := make([]string, 0, len(BetTypeTable)+1)
	tableToBetType := make(map[string]string, len(BetTypeTable))
	for betType, table := range BetTypeTable {
		tableNames = append(tableNames, table)
		tableToBetType[table] = betType
	}
	tableNames = append(tableNames, "odds_status")

	ordered := lockOrder.Sort(tableNames, s.logger)

	return s.conn.ExecuteInTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range ordered {
			if table == "odds_status" {
				if _, err := s.saveOddsStatusBatch(ctx, tx, []model.OddsStatus{data.Status}, 0); err != nil {
					return err
				}
				continue
			}
			betType, ok := tableToBetType[table]
			if !ok {
				continue
			}
			rows := data.ByBetType[betType]
			if len(rows) == 0 {
				continue
			}
			if _, err := s.saveOddsBatch(ctx, tx, table, rows, 0); err != nil {
				return err
			}
		}
		return nil
	})
}
