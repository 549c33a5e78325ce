package updater

// RaceRef identifies a race well enough to build its card/odds URL: the
// cup it belongs to, that cup's schedule index, and the race number
// within that schedule.
type RaceRef struct {
	RaceID        string
	CupID         string
	ScheduleIndex int
	RaceNumber    int
}

// finishedRaceStatuses is the set of races.status values treated as
// terminal; only "3" today, kept as a set for parity with the upstream
// FINISHED_RACE_STATUSES constant which is written as a set of strings.
var finishedRaceStatuses = map[int]bool{3: true}

// IsFinishedStatus reports whether status is a terminal race lifecycle
// code.
func IsFinishedStatus(status int) bool {
	return finishedRaceStatuses[status]
}
