package saver

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/store"
)

// ListingSaver persists the monthly-listing shapes (Region, Venue, Cup)
// produced by Updater U1.
type ListingSaver struct {
	conn   *store.Connection
	logger *slog.Logger
}

// NewListingSaver returns a ListingSaver writing through conn.
func NewListingSaver(conn *store.Connection, logger *slog.Logger) *ListingSaver {
	return &ListingSaver{conn: conn, logger: logger}
}

func (s *ListingSaver) saveRegionsBatch(ctx context.Context, tx *sql.Tx, regions []model.Region, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, Row{
			Values:  []any{r.ID, r.Name},
			HasKey:  r.ID != "",
			KeyDesc: r.ID,
		})
	}
	return upsertBatch(ctx, tx, s.logger, "regions",
		[]string{"id", "name"}, []string{"name"}, rows, batchSize)
}

func (s *ListingSaver) saveVenuesBatch(ctx context.Context, tx *sql.Tx, venues []model.Venue, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(venues))
	for _, v := range venues {
		rows = append(rows, Row{
			Values: []any{
				v.ID, v.Name, v.Address, v.BankFeature,
				v.TrackStraightLength, v.TrackAngleCenter, v.TrackAngleStraight,
				v.HomeWidth, v.BackWidth, v.CenterWidth, v.RegionID,
			},
			HasKey:  v.ID != "",
			KeyDesc: v.ID,
		})
	}
	columns := []string{
		"id", "name", "address", "bank_feature",
		"track_straight_length", "track_angle_center", "track_angle_straight",
		"home_width", "back_width", "center_width", "region_id",
	}
	updateCols := columns[1:]
	return upsertBatch(ctx, tx, s.logger, "venues", columns, updateCols, rows, batchSize)
}

func (s *ListingSaver) saveCupsBatch(ctx context.Context, tx *sql.Tx, cups []model.Cup, batchSize int) (int64, error) {
	rows := make([]Row, 0, len(cups))
	for _, c := range cups {
		rows = append(rows, Row{
			Values: []any{
				c.ID, c.Name, c.StartDate, c.EndDate, c.Duration, c.Grade,
				c.VenueID, JoinLabels(c.Labels), BoolToInt(c.PlayersUnfixed),
			},
			HasKey:  c.ID != "",
			KeyDesc: c.ID,
		})
	}
	columns := []string{
		"id", "name", "start_date", "end_date", "duration", "grade",
		"venue_id", "labels", "players_unfixed",
	}
	updateCols := columns[1:]
	return upsertBatch(ctx, tx, s.logger, "cups", columns, updateCols, rows, batchSize)
}

// SaveMonthlyListing persists one month's regions, venues, and cups inside
// a single transaction, in lock order, and returns the set of cup ids
// touched.
func (s *ListingSaver) SaveMonthlyListing(
	ctx context.Context,
	regions []model.Region,
	venues []model.Venue,
	cups []model.Cup,
	lockOrder *store.LockOrder,
) ([]string, error) {
	tables := lockOrder.Sort([]string{"cups", "venues", "regions"}, s.logger)

	err := s.conn.ExecuteInTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			var err error
			switch table {
			case "regions":
				_, err = s.saveRegionsBatch(ctx, tx, regions, 0)
			case "venues":
				_, err = s.saveVenuesBatch(ctx, tx, venues, 0)
			case "cups":
				_, err = s.saveCupsBatch(ctx, tx, cups, 0)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cupIDs := make([]string, 0, len(cups))
	for _, c := range cups {
		if c.ID != "" {
			cupIDs = append(cupIDs, c.ID)
		}
	}
	return cupIDs, nil
}
