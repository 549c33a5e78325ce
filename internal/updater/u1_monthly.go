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

// MonthlyUpdater is U1: fetches one month's cup listing and persists
// regions, venues, and cups.
type MonthlyUpdater struct {
	client    *winticket.Client
	saver     *saver.ListingSaver
	lockOrder *store.LockOrder
	logger    *slog.Logger
}

// NewMonthlyUpdater returns a MonthlyUpdater wiring client, saver and
// lockOrder together.
func NewMonthlyUpdater(client *winticket.Client, s *saver.ListingSaver, lockOrder *store.LockOrder, logger *slog.Logger) *MonthlyUpdater {
	return &MonthlyUpdater{client: client, saver: s, lockOrder: lockOrder, logger: logger}
}

// Summary is the per-stage outcome every Updater returns: counts over the
// input set, matching §7's documented {inputs, attempted, completed,
// no_data/failed} shape.
type Summary struct {
	Inputs          int
	Attempted       int
	Completed       int
	NoData          int
	DataUnavailable int
	Failed          int
}

// Ok reports the pipeline-level exit condition: success iff at least one
// input reached a terminal-good state, or there was no input at all.
func (s Summary) Ok() bool {
	return s.Inputs == 0 || s.Completed > 0
}

// Run fetches the monthly listing for yyyymmdd and persists it, returning
// the cup ids touched.
func (u *MonthlyUpdater) Run(ctx context.Context, yyyymmdd string) ([]string, Summary, error) {
	summary := Summary{Inputs: 1, Attempted: 1}

	raw, err := u.client.MonthlyListing(ctx, yyyymmdd)
	if err != nil {
		summary.Failed = 1
		return nil, summary, fmt.Errorf("fetch monthly listing: %w", err)
	}
	if raw == nil {
		summary.NoData = 1
		return nil, summary, nil
	}

	var wire wireMonthlyListing
	if err := unmarshalInto(raw, &wire); err != nil {
		summary.Failed = 1
		return nil, summary, fmt.Errorf("decode monthly listing: %w", err)
	}

	regions := make([]model.Region, 0, len(wire.Month.Regions))
	for _, r := range wire.Month.Regions {
		regions = append(regions, model.Region{ID: r.ID, Name: r.Name})
	}

	venues := make([]model.Venue, 0, len(wire.Month.Venues))
	for _, v := range wire.Month.Venues {
		venues = append(venues, model.Venue{
			ID:                  v.ID,
			Name:                v.Name,
			Address:             v.Address,
			BankFeature:         v.BankFeature,
			TrackStraightLength: v.TrackStraightDistance,
			TrackAngleCenter:    v.TrackAngleCenter,
			TrackAngleStraight:  v.TrackAngleStraight,
			HomeWidth:           v.HomeWidth,
			BackWidth:           v.BackWidth,
			CenterWidth:         v.CenterWidth,
			RegionID:            v.RegionID,
		})
	}

	cups := make([]model.Cup, 0, len(wire.Month.Cups))
	for _, c := range wire.Month.Cups {
		cups = append(cups, model.Cup{
			ID:             c.ID,
			Name:           c.Name,
			StartDate:      c.StartDate,
			EndDate:        c.EndDate,
			Duration:       c.Duration,
			Grade:          c.Grade,
			VenueID:        c.VenueID,
			Labels:         c.Labels,
			PlayersUnfixed: c.PlayersUnfixed,
		})
	}

	cupIDs, err := u.saver.SaveMonthlyListing(ctx, regions, venues, cups, u.lockOrder)
	if err != nil {
		summary.Failed = 1
		return nil, summary, fmt.Errorf("save monthly listing: %w", err)
	}

	summary.Completed = 1
	return cupIDs, summary, nil
}
