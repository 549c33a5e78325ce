package store

import (
	"log/slog"
	"strings"

	"gopkg.in/ini.v1"
)

// defaultLockOrder is used when no lock-order config file is present, so a
// first-run deployment doesn't have to ship one before it can write data.
var defaultLockOrder = []string{
	"regions", "venues", "cups", "schedules", "races", "race_status",
	"players", "entries", "player_records", "line_predictions",
	"odds_exacta", "odds_quinella", "odds_trio", "odds_quinella_place", "odds_trifecta",
	"odds_bracket_exacta", "odds_bracket_quinella", "odds_status",
	"race_results", "race_comments", "lap_positions", "inspection_reports",
	"lap_data_status",
}

// LockOrder is the canonical table write order used by Savers to avoid
// cross-transaction deadlocks: every multi-table write acquires locks in
// this sequence.
type LockOrder struct {
	order []string
	index map[string]int
}

// LoadLockOrder reads the `[LockOrder]` section of an ini-format config
// file. A missing file or missing section is not fatal: it falls back to
// defaultLockOrder with a warning log, mirroring the pipeline's tolerance
// for incomplete deployment configuration elsewhere.
func LoadLockOrder(path string, logger *slog.Logger) *LockOrder {
	order := defaultLockOrder

	cfg, err := ini.Load(path)
	if err != nil {
		logger.Warn("lock order config not found, using default order", "path", path, "error", err)
		return newLockOrder(order)
	}

	section, err := cfg.GetSection("LockOrder")
	if err != nil {
		logger.Warn("lock order config missing [LockOrder] section, using default order", "path", path)
		return newLockOrder(order)
	}

	raw := section.Key("order").String()
	if strings.TrimSpace(raw) == "" {
		logger.Warn("lock order config has empty order key, using default order", "path", path)
		return newLockOrder(order)
	}

	parsed := make([]string, 0)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			parsed = append(parsed, name)
		}
	}
	if len(parsed) == 0 {
		logger.Warn("lock order config order key parsed to no tables, using default order", "path", path)
		return newLockOrder(order)
	}

	return newLockOrder(parsed)
}

func newLockOrder(order []string) *LockOrder {
	index := make(map[string]int, len(order))
	for i, table := range order {
		index[table] = i
	}
	return &LockOrder{order: order, index: index}
}

// Sort returns tables reordered to match the configured lock order. Tables
// absent from the configured order are appended afterward, in their
// original relative order, with a warning — the spec documents this as an
// "arbitrary order" fallback rather than an error.
func (l *LockOrder) Sort(tables []string, logger *slog.Logger) []string {
	known := make([]string, 0, len(tables))
	unknown := make([]string, 0)
	for _, t := range tables {
		if _, ok := l.index[t]; ok {
			known = append(known, t)
		} else {
			unknown = append(unknown, t)
		}
	}

	sortByIndex(known, l.index)

	if len(unknown) > 0 && logger != nil {
		logger.Warn("table(s) absent from lock order config, appending in arbitrary order", "tables", unknown)
	}

	return append(known, unknown...)
}

func sortByIndex(tables []string, index map[string]int) {
	for i := 1; i < len(tables); i++ {
		for j := i; j > 0 && index[tables[j-1]] > index[tables[j]]; j-- {
			tables[j-1], tables[j] = tables[j], tables[j-1]
		}
	}
}
