package updater

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keirindata/pipeline/internal/htmlparse"
	"github.com/keirindata/pipeline/internal/model"
	"github.com/keirindata/pipeline/internal/racestatus"
	"github.com/keirindata/pipeline/internal/saver"
	"github.com/keirindata/pipeline/internal/store"
	"github.com/keirindata/pipeline/internal/yenjoy"
)

// ResultRef identifies one race's HTML result page and carries everything
// ResultPageURL needs to build it.
type ResultRef struct {
	RaceID          string
	MonthOfCupStart string
	VenueID         string
	CupStartDate    string
	RaceDate        string
	RaceNumber      int
}

// ResultsUpdater is U5: fetches race-result HTML, parses it, reconciles
// bracket numbers against entries, and persists results, comments, lap
// positions, and inspection reports.
type ResultsUpdater struct {
	client     *yenjoy.Client
	saver      *saver.ResultsSaver
	lockOrder  *store.LockOrder
	status     *racestatus.Gateway
	maxWorkers int
	batchSleep time.Duration
	logger     *slog.Logger
}

// NewResultsUpdater returns a ResultsUpdater. batchSleep is the pause
// applied once per batch between worker-pool runs, independent of the
// yenjoy client's own per-request throttling.
func NewResultsUpdater(
	client *yenjoy.Client,
	s *saver.ResultsSaver,
	lockOrder *store.LockOrder,
	status *racestatus.Gateway,
	maxWorkers int,
	batchSleep time.Duration,
	logger *slog.Logger,
) *ResultsUpdater {
	return &ResultsUpdater{
		client: client, saver: s, lockOrder: lockOrder, status: status,
		maxWorkers: maxWorkers, batchSleep: batchSleep, logger: logger,
	}
}

type resultOutcome struct {
	raceID          string
	err             error
	dataUnavailable bool
}

// Run processes refs in RaceBatchSize chunks, sleeping batchSleep between
// chunks so the HTML source sees an even request rate across the pool.
func (u *ResultsUpdater) Run(ctx context.Context, refs []ResultRef) Summary {
	summary := Summary{Inputs: len(refs)}
	if len(refs) == 0 {
		return summary
	}

	batches := chunk(refs, RaceBatchSize)
	for i, batch := range batches {
		u.runBatch(ctx, batch, &summary)
		if i < len(batches)-1 && u.batchSleep > 0 {
			time.Sleep(u.batchSleep)
		}
	}
	return summary
}

func (u *ResultsUpdater) runBatch(ctx context.Context, batch []ResultRef, summary *Summary) {
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.RaceID
	}
	if err := u.status.UpdateBatch(ctx, racestatus.Step5, ids, model.StepProcessing); err != nil {
		u.logger.Error("failed to mark results batch processing, skipping fetch", "error", err)
		summary.Failed += len(batch)
		return
	}

	outcomes := runPool(batch, u.maxWorkers, func(ref ResultRef) resultOutcome {
		return u.processOne(ctx, ref)
	})

	completed, dataUnavailable, failed := []string{}, []string{}, []string{}
	for _, o := range outcomes {
		summary.Attempted++
		switch {
		case o.err != nil:
			failed = append(failed, o.raceID)
			summary.Failed++
			u.logger.Error("race result update failed", "race_id", o.raceID, "error", o.err)
		case o.dataUnavailable:
			dataUnavailable = append(dataUnavailable, o.raceID)
			summary.DataUnavailable++
		default:
			completed = append(completed, o.raceID)
			summary.Completed++
		}
	}

	u.sweep(ctx, completed, model.StepCompleted)
	u.sweep(ctx, dataUnavailable, model.StepDataNotAvailable)
	u.sweep(ctx, failed, model.StepFailed)
}

func (u *ResultsUpdater) sweep(ctx context.Context, raceIDs []string, to model.StepStatus) {
	if len(raceIDs) == 0 {
		return
	}
	if err := u.status.UpdateBatch(ctx, racestatus.Step5, raceIDs, to); err != nil {
		u.logger.Error("failed to sweep results statuses", "to", to, "error", err)
	}
}

func (u *ResultsUpdater) processOne(ctx context.Context, ref ResultRef) resultOutcome {
	url := u.client.ResultPageURL(ref.MonthOfCupStart, ref.VenueID, ref.CupStartDate, ref.RaceDate, ref.RaceNumber)
	res := u.client.GetHTMLContent(ctx, url)
	if res.Err != nil {
		return resultOutcome{raceID: ref.RaceID, err: fmt.Errorf("fetch result page: %w", res.Err)}
	}
	if !res.Success {
		return resultOutcome{raceID: ref.RaceID, dataUnavailable: true}
	}

	parsed := htmlparse.Parse(ref.RaceID, res.Content)
	if parsed.ParseError {
		return resultOutcome{raceID: ref.RaceID, err: fmt.Errorf("parse race result html")}
	}
	if parsed.IsEmpty {
		return resultOutcome{raceID: ref.RaceID, dataUnavailable: true}
	}

	playerByBracket, err := u.saver.GetEntryPlayerMap(ctx, ref.RaceID)
	if err != nil {
		u.logger.Warn("failed to load entries for player_id reconciliation, saving without it", "race_id", ref.RaceID, "error", err)
		playerByBracket = map[int]string{}
	}
	for i, r := range parsed.Results {
		if playerID, ok := playerByBracket[r.BracketNumber]; ok {
			id := playerID
			parsed.Results[i].PlayerID = &id
		}
	}

	data := saver.FromParsed(ref.RaceID, parsed, true, time.Now().Unix())
	if err := u.saver.SaveRaceResultsStep5(ctx, data, u.lockOrder); err != nil {
		return resultOutcome{raceID: ref.RaceID, err: fmt.Errorf("save race results: %w", err)}
	}
	return resultOutcome{raceID: ref.RaceID}
}
