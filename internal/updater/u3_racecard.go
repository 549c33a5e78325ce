package updater

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keirindata/pipeline/internal/lineoverride"
	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/racestatus"
	"github.com/keirindata/pipeline/internal/saver"
	"github.com/keirindata/pipeline/internal/store"
	"github.com/keirindata/pipeline/internal/winticket"
)

// RaceCardUpdater is U3: fetches and persists entries, players, player
// records, and the predicted line formation for a batch of races.
type RaceCardUpdater struct {
	client        *winticket.Client
	saver         *saver.RaceCardSaver
	lockOrder     *store.LockOrder
	status        *racestatus.Gateway
	maxWorkers    int
	rateLimit     time.Duration
	lineOverrides map[string]string
	logger        *slog.Logger
}

// NewRaceCardUpdater returns a RaceCardUpdater. rateLimit is the total
// per-batch inter-call spacing budget; each worker sleeps
// rateLimit/maxWorkers between its own calls. overridePath points at an
// optional YAML file of manual line-formation corrections, keyed by race
// id; a missing file is not an error.
func NewRaceCardUpdater(
	client *winticket.Client,
	s *saver.RaceCardSaver,
	lockOrder *store.LockOrder,
	status *racestatus.Gateway,
	maxWorkers int,
	rateLimit time.Duration,
	overridePath string,
	logger *slog.Logger,
) *RaceCardUpdater {
	return &RaceCardUpdater{
		client: client, saver: s, lockOrder: lockOrder, status: status,
		maxWorkers: maxWorkers, rateLimit: rateLimit,
		lineOverrides: lineoverride.Load(overridePath, logger),
		logger:        logger,
	}
}

type raceCardOutcome struct {
	raceID string
	err    error
}

// Run processes refs in RaceBatchSize chunks: mark processing, fetch in
// parallel, save, sweep status. force bypasses the finished-race gate.
func (u *RaceCardUpdater) Run(ctx context.Context, refs []RaceRef, force bool) Summary {
	summary := Summary{Inputs: len(refs)}
	if len(refs) == 0 {
		return summary
	}

	pending := refs
	if !force {
		pending = u.filterUnfinished(ctx, refs, &summary)
	}

	for _, batch := range chunk(pending, RaceBatchSize) {
		u.runBatch(ctx, batch, &summary)
	}
	return summary
}

func (u *RaceCardUpdater) filterUnfinished(ctx context.Context, refs []RaceRef, summary *Summary) []RaceRef {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.RaceID
	}
	statuses, err := u.saver.GetRaceStatuses(ctx, ids)
	if err != nil {
		u.logger.Warn("failed to fetch race statuses for gating, processing all races", "error", err)
		return refs
	}

	pending := make([]RaceRef, 0, len(refs))
	finishedIDs := make([]string, 0)
	for _, r := range refs {
		status, known := statuses[r.RaceID]
		if !known {
			u.logger.Warn("race has no status row, processing with warning", "race_id", r.RaceID)
			pending = append(pending, r)
			continue
		}
		if IsFinishedStatus(status) {
			finishedIDs = append(finishedIDs, r.RaceID)
			continue
		}
		pending = append(pending, r)
	}

	if len(finishedIDs) > 0 {
		// A terminal status may only be entered from processing, so the
		// skipped races pass through processing on their way to completed.
		err := u.status.UpdateBatch(ctx, racestatus.Step3, finishedIDs, model.StepProcessing)
		if err == nil {
			err = u.status.UpdateBatch(ctx, racestatus.Step3, finishedIDs, model.StepCompleted)
		}
		if err != nil {
			u.logger.Error("failed to mark finished races completed", "error", err)
		}
		summary.Completed += len(finishedIDs)
	}
	return pending
}

func (u *RaceCardUpdater) runBatch(ctx context.Context, batch []RaceRef, summary *Summary) {
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.RaceID
	}
	if err := u.status.UpdateBatch(ctx, racestatus.Step3, ids, model.StepProcessing); err != nil {
		u.logger.Error("failed to mark batch processing, skipping API fetch", "error", err)
		summary.Failed += len(batch)
		return
	}

	perCallSleep := time.Duration(0)
	if u.maxWorkers > 0 {
		perCallSleep = u.rateLimit / time.Duration(u.maxWorkers)
	}

	outcomes := runPool(batch, u.maxWorkers, func(ref RaceRef) raceCardOutcome {
		if perCallSleep > 0 {
			time.Sleep(perCallSleep)
		}
		return u.processOne(ctx, ref)
	})

	completed := make([]string, 0, len(outcomes))
	failed := make([]string, 0)
	for _, o := range outcomes {
		summary.Attempted++
		if o.err != nil {
			failed = append(failed, o.raceID)
			summary.Failed++
			u.logger.Error("race card update failed", "race_id", o.raceID, "error", o.err)
			continue
		}
		completed = append(completed, o.raceID)
		summary.Completed++
	}

	if len(completed) > 0 {
		if err := u.status.UpdateBatch(ctx, racestatus.Step3, completed, model.StepCompleted); err != nil {
			u.logger.Error("failed to sweep completed race card statuses", "error", err)
		}
	}
	if len(failed) > 0 {
		if err := u.status.UpdateBatch(ctx, racestatus.Step3, failed, model.StepFailed); err != nil {
			u.logger.Error("failed to sweep failed race card statuses", "error", err)
		}
	}
}

func (u *RaceCardUpdater) processOne(ctx context.Context, ref RaceRef) raceCardOutcome {
	raw, err := u.client.RaceCard(ctx, ref.CupID, ref.ScheduleIndex, ref.RaceNumber)
	if err != nil {
		return raceCardOutcome{raceID: ref.RaceID, err: fmt.Errorf("fetch race card: %w", err)}
	}
	if raw == nil {
		return raceCardOutcome{raceID: ref.RaceID, err: fmt.Errorf("race card request failed (non-retryable client error)")}
	}

	var wire wireRaceCard
	if err := unmarshalInto(raw, &wire); err != nil {
		return raceCardOutcome{raceID: ref.RaceID, err: fmt.Errorf("decode race card: %w", err)}
	}

	data := saver.RaceCardData{
		Players:       make([]model.Player, 0, len(wire.Players)),
		Entries:       make([]model.Entry, 0, len(wire.Entries)),
		PlayerRecords: make([]model.PlayerRecord, 0, len(wire.Records)),
	}
	for _, p := range wire.Players {
		data.Players = append(data.Players, model.Player{
			RaceID:     ref.RaceID,
			PlayerID:   p.ID,
			Name:       p.Name,
			Class:      p.Class,
			Group:      p.Group,
			Prefecture: p.Prefecture,
			Term:       p.Term,
			RegionID:   p.RegionID,
			Birthday:   saver.Birthday(p.Birthday),
			Age:        p.Age,
			Gender:     saver.Gender(p.Gender),
		})
	}
	for _, e := range wire.Entries {
		data.Entries = append(data.Entries, model.Entry{
			RaceID:                ref.RaceID,
			Number:                e.Number,
			Absent:                saver.BoolFromAny(e.Absent),
			PlayerID:              e.PlayerID,
			BracketNumber:         e.BracketNumber,
			CurrentTermClass:      e.PlayerCurrentTermClass,
			CurrentTermGroup:      e.PlayerCurrentTermGroup,
			PreviousTermClass:     e.PlayerPreviousTermClass,
			PreviousTermGroup:     e.PlayerPreviousTermGroup,
			HasPreviousClassGroup: saver.BoolFromAny(e.HasPreviousClassGroup),
		})
	}
	for _, r := range wire.Records {
		data.PlayerRecords = append(data.PlayerRecords, model.PlayerRecord{
			RaceID:               ref.RaceID,
			PlayerID:             r.PlayerID,
			GearRatio:            r.GearRatio,
			Style:                r.Style,
			RacePoint:            r.RacePoint,
			Comment:              r.Comment,
			PredictionMark:       r.PredictionMark,
			FirstRate:            r.FirstRate,
			SecondRate:           r.SecondRate,
			ThirdRate:            r.ThirdRate,
			HasModifiedGearRatio: saver.BoolFromAny(r.HasModifiedGearRatio),
			ModifiedGearRatio:    r.ModifiedGearRatio,
			PreviousCupID:        r.PreviousCupID,
		})
	}
	if wire.LinePrediction != nil {
		groups := make([]LineGroup, 0, len(wire.LinePrediction.Lines))
		for _, g := range wire.LinePrediction.Lines {
			lg := LineGroup{Numbers: g.Numbers}
			for _, e := range g.Entries {
				lg.Entries = append(lg.Entries, LineEntry{Numbers: e.Numbers})
			}
			groups = append(groups, lg)
		}
		formation := BuildLineFormation(groups)
		if override, ok := u.lineOverrides[ref.RaceID]; ok {
			u.logger.Info("applying manual line override", "race_id", ref.RaceID, "formation", override)
			formation = override
		}
		data.LinePredictions = []model.LinePrediction{{
			RaceID:        ref.RaceID,
			LineType:      wire.LinePrediction.LineType,
			LineFormation: formation,
		}}
	}

	if err := u.saver.SaveRaceDetailsStep3(ctx, data, u.lockOrder); err != nil {
		return raceCardOutcome{raceID: ref.RaceID, err: fmt.Errorf("save race card: %w", err)}
	}
	return raceCardOutcome{raceID: ref.RaceID}
}
