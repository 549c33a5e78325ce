package updater

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/racestatus"
	"github.com/keirindata/pipeline/internal/saver"
	"github.com/keirindata/pipeline/internal/store"
	"github.com/keirindata/pipeline/internal/winticket"
)

// OddsHistory reports, per race, whether races.status is finished and
// whether any prior odds update has ever been recorded — the two facts
// U4's gate needs.
type OddsHistory struct {
	Finished       bool
	HasPriorUpdate bool
}

// OddsUpdater is U4: fetches and persists the seven bet-type odds tables
// plus OddsStatus for a batch of races.
type OddsUpdater struct {
	client     *winticket.Client
	saver      *saver.OddsSaver
	lockOrder  *store.LockOrder
	status     *racestatus.Gateway
	history    func(ctx context.Context, raceIDs []string) (map[string]OddsHistory, error)
	maxWorkers int
	logger     *slog.Logger
}

// NewOddsUpdater returns an OddsUpdater. history is queried once per batch
// to evaluate the finished/already-updated gate.
func NewOddsUpdater(
	client *winticket.Client,
	s *saver.OddsSaver,
	lockOrder *store.LockOrder,
	status *racestatus.Gateway,
	history func(ctx context.Context, raceIDs []string) (map[string]OddsHistory, error),
	maxWorkers int,
	logger *slog.Logger,
) *OddsUpdater {
	return &OddsUpdater{client: client, saver: s, lockOrder: lockOrder, status: status, history: history, maxWorkers: maxWorkers, logger: logger}
}

type oddsOutcome struct {
	raceID string
	err    error
	noData bool
}

// Run processes refs in RaceBatchSize chunks. forceUpdateAll bypasses the
// finished/already-updated gate entirely.
func (u *OddsUpdater) Run(ctx context.Context, refs []RaceRef, forceUpdateAll bool) Summary {
	summary := Summary{Inputs: len(refs)}
	if len(refs) == 0 {
		return summary
	}

	for _, batch := range chunk(refs, RaceBatchSize) {
		u.runBatch(ctx, batch, forceUpdateAll, &summary)
	}
	return summary
}

func (u *OddsUpdater) runBatch(ctx context.Context, batch []RaceRef, forceUpdateAll bool, summary *Summary) {
	pending := batch
	if !forceUpdateAll {
		pending = u.applyGate(ctx, batch, summary)
	}
	if len(pending) == 0 {
		return
	}

	ids := make([]string, len(pending))
	for i, r := range pending {
		ids[i] = r.RaceID
	}
	if err := u.status.UpdateBatch(ctx, racestatus.Step4, ids, model.StepProcessing); err != nil {
		u.logger.Error("failed to mark odds batch processing, skipping API fetch", "error", err)
		summary.Failed += len(pending)
		return
	}

	outcomes := runPool(pending, u.maxWorkers, func(ref RaceRef) oddsOutcome {
		return u.processOne(ctx, ref)
	})

	completed, noData, failed := []string{}, []string{}, []string{}
	for _, o := range outcomes {
		summary.Attempted++
		switch {
		case o.err != nil:
			failed = append(failed, o.raceID)
			summary.Failed++
			u.logger.Error("odds update failed", "race_id", o.raceID, "error", o.err)
		case o.noData:
			noData = append(noData, o.raceID)
			summary.NoData++
		default:
			completed = append(completed, o.raceID)
			summary.Completed++
		}
	}

	// Only a finished race rests at completed; an unfinished race whose odds
	// were saved stays in processing, since its odds can still move.
	if len(completed) > 0 {
		histories, err := u.history(ctx, completed)
		if err != nil {
			u.logger.Error("failed to fetch race status for odds completion, leaving races in processing", "error", err)
		}
		finished := make([]string, 0, len(completed))
		for _, id := range completed {
			if err == nil && histories[id].Finished {
				finished = append(finished, id)
			}
		}
		completed = finished
	}

	u.sweep(ctx, completed, model.StepCompleted)
	u.sweep(ctx, noData, model.StepNoData)
	u.sweep(ctx, failed, model.StepFailed)
}

func (u *OddsUpdater) sweep(ctx context.Context, raceIDs []string, to model.StepStatus) {
	if len(raceIDs) == 0 {
		return
	}
	if err := u.status.UpdateBatch(ctx, racestatus.Step4, raceIDs, to); err != nil {
		u.logger.Error("failed to sweep odds statuses", "to", to, "error", err)
	}
}

// applyGate drops finished races that already have update history
// (terminal completion already achieved) from the batch, marking them
// completed without an API call; a finished race with no prior history
// still gets one final overwrite.
func (u *OddsUpdater) applyGate(ctx context.Context, batch []RaceRef, summary *Summary) []RaceRef {
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.RaceID
	}
	histories, err := u.history(ctx, ids)
	if err != nil {
		u.logger.Warn("failed to fetch odds history for gating, processing all races", "error", err)
		return batch
	}

	pending := make([]RaceRef, 0, len(batch))
	alreadyDone := make([]string, 0)
	for _, ref := range batch {
		h := histories[ref.RaceID]
		if h.Finished && h.HasPriorUpdate {
			alreadyDone = append(alreadyDone, ref.RaceID)
			continue
		}
		pending = append(pending, ref)
	}

	if len(alreadyDone) > 0 {
		// completed may only be entered from processing.
		u.sweep(ctx, alreadyDone, model.StepProcessing)
		u.sweep(ctx, alreadyDone, model.StepCompleted)
		summary.Completed += len(alreadyDone)
	}
	return pending
}

func (u *OddsUpdater) processOne(ctx context.Context, ref RaceRef) oddsOutcome {
	raw, err := u.client.Odds(ctx, ref.CupID, ref.ScheduleIndex, ref.RaceNumber)
	if err != nil {
		return oddsOutcome{raceID: ref.RaceID, err: fmt.Errorf("fetch odds: %w", err)}
	}
	if raw == nil {
		return oddsOutcome{raceID: ref.RaceID, err: fmt.Errorf("odds request failed (non-retryable client error)")}
	}

	var wire wireOddsResponse
	if err := unmarshalInto(raw, &wire); err != nil {
		return oddsOutcome{raceID: ref.RaceID, err: fmt.Errorf("decode odds: %w", err)}
	}

	if wire.isEffectivelyEmpty() {
		status := buildOddsStatus(ref.RaceID, &wire)
		if err := u.saver.SaveRaceOdds(ctx, saver.RaceOddsData{Status: status}, u.lockOrder); err != nil {
			return oddsOutcome{raceID: ref.RaceID, err: fmt.Errorf("save empty odds status: %w", err)}
		}
		return oddsOutcome{raceID: ref.RaceID, noData: true}
	}

	data := saver.RaceOddsData{
		ByBetType: make(map[string][]model.OddsRow, len(wire.byBetType())),
		Status:    buildOddsStatus(ref.RaceID, &wire),
	}
	for betType, rows := range wire.byBetType() {
		converted := make([]model.OddsRow, 0, len(rows))
		for _, r := range rows {
			betTypeCode := DefaultOddsType(betType)
			if r.Type != nil {
				betTypeCode = *r.Type
			}
			converted = append(converted, model.OddsRow{
				RaceID:          ref.RaceID,
				Key:             OddsKey(betType, r.combination()),
				Odds:            r.Odds,
				MinOdds:         r.MinOdds,
				MaxOdds:         r.MaxOdds,
				PopularityOrder: r.PopularityOrder,
				Absent:          saver.BoolFromAny(r.Absent),
				Type:            betTypeCode,
			})
		}
		if len(converted) > 0 {
			data.ByBetType[betType] = converted
		}
	}

	if err := u.saver.SaveRaceOdds(ctx, data, u.lockOrder); err != nil {
		return oddsOutcome{raceID: ref.RaceID, err: fmt.Errorf("save odds: %w", err)}
	}
	return oddsOutcome{raceID: ref.RaceID}
}

func buildOddsStatus(raceID string, wire *wireOddsResponse) model.OddsStatus {
	return model.OddsStatus{
		RaceID:            raceID,
		IsAggregated:      true,
		OddsUpdatedAtUnix: ParseTimestamp(wire.UpdatedAt),
	}
}
