// Package model defines the domain entities persisted by the pipeline.
//
// Entities mirror the upstream JSON/HTML shapes after normalization: unix
// timestamps instead of ISO-8601 strings, bools that Savers write as 0/1
// tinyints, and nullable fields expressed as pointers so a Saver can tell "absent" from
// "zero value".
package model

// Region is an administrative region, the root reference for Venue.
type Region struct {
	ID   string
	Name string
}

// Venue is a velodrome.
type Venue struct {
	ID                   string
	Name                 string
	Address              string
	BankFeature          string
	TrackStraightLength  float64
	TrackAngleCenter     float64
	TrackAngleStraight   float64
	HomeWidth            float64
	BackWidth            float64
	CenterWidth          float64
	RegionID             string
}

// Cup is a multi-day race meet at one Venue.
type Cup struct {
	ID              string
	Name            string
	StartDate       string // YYYY-MM-DD
	EndDate         string // YYYY-MM-DD
	Duration        int
	Grade           int
	VenueID         string
	Labels          []string // stored as comma-joined string; order is not significant
	PlayersUnfixed  bool
}

// Schedule is one day within a Cup.
type Schedule struct {
	ID              string
	CupID           string
	Date            string // YYYY-MM-DD
	DayNumber       int
	ScheduleIndex   int
	EntriesUnfixed  bool
}

// Race is a single numbered contest within a Schedule.
type Race struct {
	ID               string
	CupID            string
	ScheduleID       *string // nil when upstream omits or the id doesn't resolve against the cup's schedules
	Number           int
	Class            string
	RaceType         string
	StartAt          *int64 // unix seconds
	CloseAt          *int64
	DecidedAt        *int64
	Status           int
	Cancel           bool
	CancelReason     string
	Weather          string
	WindSpeed        float64
	Distance         int
	LapCount         int
	EntriesCount     int
	GradeRace        bool
	HasDigestVideo   bool
	DigestVideo      string
	DigestProvider   string
}

// StatusFinished is the upstream lifecycle code for a race that has run to
// completion. See spec §3 invariants: "a race is finished iff races.status = 3".
const StatusFinished = 3

// IsFinished reports whether the race has reached the terminal upstream state.
func (r Race) IsFinished() bool { return r.Status == StatusFinished }

// Player is a rider snapshot as of a specific race.
type Player struct {
	RaceID     string
	PlayerID   string
	Name       string
	Class      string
	Group      string
	Prefecture string
	Term       int
	RegionID   string
	Birthday   string // YYYY-MM-DD after coercion
	Age        int
	Gender     int // 0 unknown, 1 male, 2 female
}

// Entry is a starting slot assigned to a player for a race.
type Entry struct {
	RaceID                  string
	Number                  int // bracket/starting position, 1..9
	Absent                  bool
	PlayerID                *string
	BracketNumber           int
	CurrentTermClass        string
	CurrentTermGroup        string
	PreviousTermClass       string
	PreviousTermGroup       string
	HasPreviousClassGroup   bool
}

// PlayerRecord holds a rider's statistics for a specific race.
type PlayerRecord struct {
	RaceID               string
	PlayerID             string
	GearRatio            float64
	Style                string
	RacePoint            float64
	Comment              string
	PredictionMark       string
	FirstRate            float64
	SecondRate           float64
	ThirdRate            float64
	HasModifiedGearRatio bool
	ModifiedGearRatio    float64
	PreviousCupID        string
}

// LinePrediction is the predicted line formation for a race.
type LinePrediction struct {
	RaceID        string
	LineType      string
	LineFormation string
}

// OddsRow is one row of one bet-type table (exacta, quinella, trio, ...).
type OddsRow struct {
	RaceID           string
	Key              string // canonical combination, e.g. "1-2" or "1-2-3"
	Odds             float64
	MinOdds          float64
	MaxOdds          float64
	PopularityOrder  int
	Absent           bool
	Type             int
}

// OddsStatus is per-race odds metadata.
type OddsStatus struct {
	RaceID                string
	PayoffStatus          map[string]string // bet type -> status string
	IsAggregated          bool
	OddsUpdatedAtUnix     *int64
	OddsDelayed           bool
	FinalOdds             bool
}

// RaceResult is one finishing-order row, keyed by bracket number.
type RaceResult struct {
	RaceID           string
	BracketNumber    int
	Rank             int // 99 for the "落"/"失" markers, 0 for any other non-numeric rank text
	RankText         string
	Mark             string
	PlayerName       string
	PlayerID         *string // resolved against Entry by U5; nil if unresolvable
	Age              int
	Prefecture       string
	Period           string
	Class            string
	Diff             string
	Time             float64
	LastLapTime      string
	WinningTechnique string
	Symbols          string
	WinFactor        string
	PersonalStatus   string
}

// LapPositionPoint is one rider's snapshot within a track section.
type LapPositionPoint struct {
	Bracket    int
	PlayerName string
	X          float64
	Y          float64
	HasArrow   bool
}

// LapPositions holds the five track-section sequences for a race.
type LapPositions struct {
	RaceID      string
	Shuukai     []LapPositionPoint // 周回
	Akaban      []LapPositionPoint // 赤板
	Dasho       []LapPositionPoint // 打鐘
	HS          []LapPositionPoint
	BS          []LapPositionPoint
}

// RaceComment is the free-text race commentary scraped from the block under
// the result page's "レース評" heading.
type RaceComment struct {
	RaceID  string
	Comment string
}

// InspectionReport is a post-race rider/mechanic comment. Player is
// truncated to 6 runes before storage (see spec §9 open question on
// potential collisions).
type InspectionReport struct {
	RaceID  string
	Player  string // truncated to <= 6 runes, used as part of the composite key
	Comment string
}

// StepStatus is one of the values a race_status.stepN_status column may
// hold. The empty string represents SQL NULL ("pending").
type StepStatus string

const (
	StepPending           StepStatus = ""
	StepProcessing        StepStatus = "processing"
	StepCompleted         StepStatus = "completed"
	StepFailed            StepStatus = "failed"
	StepNoData            StepStatus = "no_data"
	StepDataNotAvailable  StepStatus = "data_not_available"
)

// RaceStatus is the per-race pipeline-progress row driving incremental,
// idempotent re-runs.
type RaceStatus struct {
	RaceID        string
	Step2Status   StepStatus
	Step3Status   StepStatus
	Step4Status   StepStatus
	Step5Status   StepStatus
}

// LapDataStatus records whether Stage 5 has already processed a race's HTML
// result page, gating re-fetches absent --force.
type LapDataStatus struct {
	RaceID       string
	IsProcessed  bool
	LastCheckedAtUnix int64
}
