package updater

import (
	"strconv"
	"strings"
	"time"
)

// RaceBatchSize is the batch size Updaters U3-U5 process race ids in.
const RaceBatchSize = 50

// nullTimestamp is the upstream sentinel for "no timestamp", which must
// coerce to a null column rather than a unix-epoch zero.
const nullTimestamp = "0000-00-00 00:00:00"

// ParseTimestamp converts an ISO-8601 or "YYYY-MM-DD HH:MM:SS" (treated as
// UTC when naive) upstream timestamp to unix seconds. It returns nil for
// the empty string and the upstream null sentinel.
func ParseTimestamp(raw string) *int64 {
	if raw == "" || raw == nullTimestamp {
		return nil
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			unix := t.UTC().Unix()
			return &unix
		}
	}
	return nil
}

// ParseBool coerces an upstream boolean that may arrive as a JSON bool or
// as the strings "true"/"false".
func ParseBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}

// ResolveScheduleID validates candidateID against the schedule ids
// belonging to the same cup, returning nil (with the caller expected to
// log a warning) when it is absent or doesn't resolve.
func ResolveScheduleID(candidateID string, cupScheduleIDs map[string]bool) *string {
	if candidateID == "" || !cupScheduleIDs[candidateID] {
		return nil
	}
	id := candidateID
	return &id
}

// ParseIntDefault parses s as an int, returning def on any parse failure
// or an empty string.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
