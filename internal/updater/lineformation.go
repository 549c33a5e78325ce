// Package updater implements the five stage orchestrators (U1-U5): each
// pulls candidate work from the database, fetches and transforms upstream
// data, persists it through a Saver, and sweeps race_status at the end of
// its batch.
package updater

import (
	"sort"
	"strconv"
	"strings"
)

// LineEntry is one entry within a line-formation group: a single rider
// number, or several riders sharing one line slot.
type LineEntry struct {
	Numbers []int
}

// LineGroup is one top-level group of the predicted line formation: either
// a bare singleton or an Entries list.
type LineGroup struct {
	Numbers []int       // set when the group is a bare singleton, e.g. {numbers:[6]}
	Entries []LineEntry // set when the group is {entries:[...]}
}

// BuildLineFormation renders groups into the compact grammar used by
// line_predictions.line_formation: entries within a group are joined by
// "・", multi-number entries are wrapped in "[...]" with their numbers
// sorted ascending, and groups are joined by the full-width em-dash "―".
func BuildLineFormation(groups []LineGroup) string {
	rendered := make([]string, 0, len(groups))
	for _, g := range groups {
		rendered = append(rendered, renderGroup(g))
	}
	return strings.Join(rendered, "―")
}

func renderGroup(g LineGroup) string {
	if len(g.Entries) == 0 {
		return renderNumbers(g.Numbers)
	}
	parts := make([]string, 0, len(g.Entries))
	for _, e := range g.Entries {
		parts = append(parts, renderEntry(e))
	}
	return strings.Join(parts, "・")
}

func renderEntry(e LineEntry) string {
	if len(e.Numbers) == 1 {
		return strconv.Itoa(e.Numbers[0])
	}
	sorted := append([]int(nil), e.Numbers...)
	sort.Ints(sorted)
	digits := make([]string, len(sorted))
	for i, n := range sorted {
		digits[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(digits, "・") + "]"
}

func renderNumbers(numbers []int) string {
	digits := make([]string, len(numbers))
	for i, n := range numbers {
		digits[i] = strconv.Itoa(n)
	}
	return strings.Join(digits, "・")
}
