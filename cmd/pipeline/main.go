// Package main provides the pipeline stage-runner CLI: one subcommand per
// Updater (monthly, cupdetail, racecard, odds, results), each a thin
// wrapper that loads configuration, builds the stage's dependencies, runs
// it to completion, and prints its summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/keirindata/pipeline/internal/config"
	"github.com/keirindata/pipeline/internal/pipelineconfig"
	"github.com/keirindata/pipeline/internal/racestatus"
	"github.com/keirindata/pipeline/internal/saver"
	"github.com/keirindata/pipeline/internal/store"
	"github.com/keirindata/pipeline/internal/updater"
	"github.com/keirindata/pipeline/internal/winticket"
	"github.com/keirindata/pipeline/internal/yenjoy"
)

const (
	version           = "1.0.0-dev"
	name              = "pipeline"
	defaultConfigPath = "config/config.ini"
	dateLayout        = "2006-01-02"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	stage := os.Args[1]
	args := os.Args[2:]

	if stage == "--version" {
		fmt.Printf("%s v%s\n", name, version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("PIPELINE_LOG_LEVEL", slog.LevelInfo),
	}))

	var (
		summary updater.Summary
		err     error
	)

	switch stage {
	case "monthly":
		summary, err = runMonthly(context.Background(), args, logger)
	case "cupdetail":
		summary, err = runCupDetail(context.Background(), args, logger)
	case "racecard":
		summary, err = runRaceCard(context.Background(), args, logger)
	case "odds":
		summary, err = runOdds(context.Background(), args, logger)
	case "results":
		summary, err = runResults(context.Background(), args, logger)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("stage run failed", "stage", stage, "error", err)
		os.Exit(1)
	}

	encoded, _ := json.Marshal(summary)
	fmt.Println(string(encoded))
	if !summary.Ok() {
		os.Exit(1)
	}
}

func usage() {
	log.Printf("%s v%s", name, version)
	log.Println("usage: pipeline <monthly|cupdetail|racecard|odds|results> [flags]")
}

// commonFlags are accepted by every subcommand: the config file path and
// the date range the stage operates over.
type commonFlags struct {
	configPath string
	startDate  string
	endDate    string
	force      bool
}

func bindCommonFlags(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", defaultConfigPath, "path to config.ini")
	fs.StringVar(&f.startDate, "start-date", "", "range start, YYYY-MM-DD")
	fs.StringVar(&f.endDate, "end-date", "", "range end, YYYY-MM-DD")
	fs.BoolVar(&f.force, "force", false, "bypass the stage's gating rules and reprocess everything in range")
	return f
}

func dateRange(start, end string) ([]string, error) {
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("parse start-date: %w", err)
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("parse end-date: %w", err)
	}
	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("20060102"))
	}
	return days, nil
}

func setup(configPath string, logger *slog.Logger) (*store.Connection, *pipelineconfig.Config, *store.LockOrder, *racestatus.Gateway, error) {
	cfg, err := pipelineconfig.Load(configPath, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load pipeline config: %w", err)
	}
	conn, err := store.NewConnection(cfg.MySQL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	lockOrder := store.LoadLockOrder(configPath, logger)
	status := racestatus.NewGateway(conn.DB, logger)
	return conn, cfg, lockOrder, status, nil
}

func runMonthly(ctx context.Context, args []string, logger *slog.Logger) (updater.Summary, error) {
	fs := flag.NewFlagSet("monthly", flag.ExitOnError)
	f := bindCommonFlags(fs)
	_ = fs.Parse(args)

	conn, cfg, lockOrder, _, err := setup(f.configPath, logger)
	if err != nil {
		return updater.Summary{}, err
	}
	defer conn.Close()

	days, err := dateRange(f.startDate, f.endDate)
	if err != nil {
		return updater.Summary{}, err
	}

	client := winticket.NewClient(cfg.Stages["step2"].RequestInterval, logger)
	listingSaver := saver.NewListingSaver(conn, logger)
	u := updater.NewMonthlyUpdater(client, listingSaver, lockOrder, logger)

	var total updater.Summary
	for _, day := range days {
		_, s, err := u.Run(ctx, day)
		if err != nil {
			logger.Error("monthly update failed for date", "date", day, "error", err)
		}
		total = addSummary(total, s)
	}
	return total, nil
}

func runCupDetail(ctx context.Context, args []string, logger *slog.Logger) (updater.Summary, error) {
	fs := flag.NewFlagSet("cupdetail", flag.ExitOnError)
	f := bindCommonFlags(fs)
	var cupIDFlag string
	fs.StringVar(&cupIDFlag, "cup-id", "", "comma-separated list of cup ids to process, overriding date-range discovery")
	_ = fs.Parse(args)

	conn, cfg, lockOrder, _, err := setup(f.configPath, logger)
	if err != nil {
		return updater.Summary{}, err
	}
	defer conn.Close()

	cupIDs := config.ParseCommaSeparatedList(cupIDFlag)
	if len(cupIDs) == 0 {
		cupIDs, err = cupIDsInRange(ctx, conn, f.startDate, f.endDate, f.force)
		if err != nil {
			return updater.Summary{}, fmt.Errorf("discover candidate cups: %w", err)
		}
	}

	tuning := cfg.Stages["step2"]
	client := winticket.NewClient(tuning.RequestInterval, logger)
	s := saver.NewCupDetailSaver(conn, logger)
	u := updater.NewCupDetailUpdater(client, s, lockOrder, tuning.MaxWorkers, logger)
	return u.Run(ctx, cupIDs), nil
}

func runRaceCard(ctx context.Context, args []string, logger *slog.Logger) (updater.Summary, error) {
	fs := flag.NewFlagSet("racecard", flag.ExitOnError)
	f := bindCommonFlags(fs)
	_ = fs.Parse(args)

	conn, cfg, lockOrder, status, err := setup(f.configPath, logger)
	if err != nil {
		return updater.Summary{}, err
	}
	defer conn.Close()

	refs, err := raceRefsInRange(ctx, conn, f.startDate, f.endDate, "", racestatus.Step3, f.force)
	if err != nil {
		return updater.Summary{}, fmt.Errorf("discover candidate races: %w", err)
	}

	tuning := cfg.Stages["step3"]
	client := winticket.NewClient(tuning.RequestInterval, logger)
	s := saver.NewRaceCardSaver(conn, logger)
	u := updater.NewRaceCardUpdater(client, s, lockOrder, status, tuning.MaxWorkers, tuning.RateLimitWait, cfg.LineOverridePath, logger)
	return u.Run(ctx, refs, f.force), nil
}

func runOdds(ctx context.Context, args []string, logger *slog.Logger) (updater.Summary, error) {
	fs := flag.NewFlagSet("odds", flag.ExitOnError)
	f := bindCommonFlags(fs)
	_ = fs.Parse(args)

	conn, cfg, lockOrder, status, err := setup(f.configPath, logger)
	if err != nil {
		return updater.Summary{}, err
	}
	defer conn.Close()

	refs, err := raceRefsInRange(ctx, conn, f.startDate, f.endDate, "", racestatus.Step4, f.force)
	if err != nil {
		return updater.Summary{}, fmt.Errorf("discover candidate races: %w", err)
	}

	tuning := cfg.Stages["step4"]
	client := winticket.NewClient(tuning.RequestInterval, logger)
	s := saver.NewOddsSaver(conn, logger)
	u := updater.NewOddsUpdater(client, s, lockOrder, status, oddsHistoryFetcher(conn), tuning.MaxWorkers, logger)
	return u.Run(ctx, refs, f.force), nil
}

func runResults(ctx context.Context, args []string, logger *slog.Logger) (updater.Summary, error) {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	f := bindCommonFlags(fs)
	var venueID string
	fs.StringVar(&venueID, "venue-id", "", "restrict to races at this venue")
	_ = fs.Parse(args)

	conn, cfg, lockOrder, status, err := setup(f.configPath, logger)
	if err != nil {
		return updater.Summary{}, err
	}
	defer conn.Close()

	refs, err := resultRefsInRange(ctx, conn, f.startDate, f.endDate, venueID, f.force)
	if err != nil {
		return updater.Summary{}, fmt.Errorf("discover candidate races: %w", err)
	}

	tuning := cfg.Stages["step5"]
	client := yenjoy.NewClient(tuning.RateLimitWait, logger)
	s := saver.NewResultsSaver(conn, logger)
	u := updater.NewResultsUpdater(client, s, lockOrder, status, tuning.MaxWorkers, tuning.RateLimitWait, logger)
	return u.Run(ctx, refs), nil
}

func addSummary(a, b updater.Summary) updater.Summary {
	return updater.Summary{
		Inputs:          a.Inputs + b.Inputs,
		Attempted:       a.Attempted + b.Attempted,
		Completed:       a.Completed + b.Completed,
		NoData:          a.NoData + b.NoData,
		DataUnavailable: a.DataUnavailable + b.DataUnavailable,
		Failed:          a.Failed + b.Failed,
	}
}

// cupIDsInRange returns cups whose start_date falls in [start, end]. Unless
// force is set, only cups with at least one race whose step2 status isn't
// "completed", or with no schedules yet, are returned.
func cupIDsInRange(ctx context.Context, conn *store.Connection, start, end string, force bool) ([]string, error) {
	query := "SELECT id FROM cups WHERE start_date BETWEEN ? AND ?"
	if !force {
		query += ` AND (EXISTS (
			SELECT 1 FROM schedules sc JOIN races r ON r.schedule_id = sc.id
			LEFT JOIN race_status rs ON rs.race_id = r.id
			WHERE sc.cup_id = cups.id AND (rs.step2_status IS NULL OR rs.step2_status NOT IN ('completed'))
		) OR NOT EXISTS (SELECT 1 FROM schedules sc WHERE sc.cup_id = cups.id))`
	}
	rows, err := conn.ExecuteQuery(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// raceRefsInRange returns races (joined to their schedule for index and
// cup for id) whose schedule date falls in [start, end]. step, when
// non-zero, limits to races whose corresponding race_status column isn't
// already "completed", unless force is set.
func raceRefsInRange(ctx context.Context, conn *store.Connection, start, end, venueID string, step racestatus.Step, force bool) ([]updater.RaceRef, error) {
	query := `SELECT r.id, r.cup_id, sc.schedule_index, r.number
		FROM races r JOIN schedules sc ON sc.id = r.schedule_id
		JOIN cups c ON c.id = r.cup_id
		WHERE sc.date BETWEEN ? AND ?`
	args := []any{start, end}
	if venueID != "" {
		query += " AND c.venue_id = ?"
		args = append(args, venueID)
	}
	if !force {
		if col, err := stepColumn(step); err == nil {
			query += fmt.Sprintf(" AND (r.id NOT IN (SELECT race_id FROM race_status WHERE %s = 'completed'))", col)
		}
	}

	rows, err := conn.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []updater.RaceRef
	for rows.Next() {
		var ref updater.RaceRef
		if err := rows.Scan(&ref.RaceID, &ref.CupID, &ref.ScheduleIndex, &ref.RaceNumber); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func stepColumn(step racestatus.Step) (string, error) {
	switch step {
	case racestatus.Step3:
		return "step3_status", nil
	case racestatus.Step4:
		return "step4_status", nil
	case racestatus.Step5:
		return "step5_status", nil
	default:
		return "", fmt.Errorf("no status column for step %d", step)
	}
}

// resultRefsInRange returns races in range with everything ResultPageURL
// needs to build the result page URL: the cup's start month/date, the
// schedule's race-day date, the venue id, and the race number.
func resultRefsInRange(ctx context.Context, conn *store.Connection, start, end, venueID string, force bool) ([]updater.ResultRef, error) {
	query := `SELECT r.id, c.venue_id, c.start_date, sc.date, r.number
		FROM races r JOIN schedules sc ON sc.id = r.schedule_id
		JOIN cups c ON c.id = r.cup_id
		WHERE sc.date BETWEEN ? AND ?`
	args := []any{start, end}
	if venueID != "" {
		query += " AND c.venue_id = ?"
		args = append(args, venueID)
	}
	if !force {
		query += ` AND r.id NOT IN (SELECT race_id FROM lap_data_status WHERE is_processed = 1)`
	}

	rows, err := conn.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []updater.ResultRef
	for rows.Next() {
		var ref updater.ResultRef
		var cupStartDate, raceDate string
		if err := rows.Scan(&ref.RaceID, &ref.VenueID, &cupStartDate, &raceDate, &ref.RaceNumber); err != nil {
			return nil, err
		}
		ref.CupStartDate = strings.ReplaceAll(cupStartDate, "-", "")
		ref.RaceDate = strings.ReplaceAll(raceDate, "-", "")
		if len(ref.CupStartDate) >= 6 {
			ref.MonthOfCupStart = ref.CupStartDate[:6]
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// oddsHistoryFetcher returns a closure querying races.status and whether
// odds_status already has a row per race, the two facts Updater U4's gate
// needs.
func oddsHistoryFetcher(conn *store.Connection) func(context.Context, []string) (map[string]updater.OddsHistory, error) {
	return func(ctx context.Context, raceIDs []string) (map[string]updater.OddsHistory, error) {
		histories := make(map[string]updater.OddsHistory, len(raceIDs))
		if len(raceIDs) == 0 {
			return histories, nil
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

		rows, err := conn.ExecuteQuery(ctx, query, placeholders...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			var status int
			if err := rows.Scan(&id, &status); err != nil {
				rows.Close()
				return nil, err
			}
			histories[id] = updater.OddsHistory{Finished: updater.IsFinishedStatus(status)}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()

		var withHistory map[string]bool
		withHistory, err = oddsStatusExists(ctx, conn, raceIDs)
		if err != nil {
			return nil, err
		}
		for id, h := range histories {
			h.HasPriorUpdate = withHistory[id]
			histories[id] = h
		}
		return histories, nil
	}
}

func oddsStatusExists(ctx context.Context, conn *store.Connection, raceIDs []string) (map[string]bool, error) {
	placeholders := make([]any, len(raceIDs))
	query := "SELECT race_id FROM odds_status WHERE race_id IN ("
	for i, id := range raceIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"

	rows, err := conn.ExecuteQuery(ctx, query, placeholders...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool, len(raceIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
