// Package htmlparse extracts race results, lap positions, race comments,
// and post-race inspection reports from result-page HTML. It never talks
// to the database; player_id reconciliation against entries is layered on
// top by the Stage 5 updater.
package htmlparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/keirindata/pipeline/internal/model"
)

// sectionNames are the five track sections extracted from lap-position
// tables, in upstream order.
var sectionNames = []string{"周回", "赤板", "打鐘", "HS", "BS"}

var bikeClassRe = regexp.MustCompile(`^(bikeno|x|y)-(\d+)$`)

// Parsed is the result of parsing one race's HTML page.
type Parsed struct {
	Results           []model.RaceResult
	ProblematicRows   []string
	Comment           string
	HasComment        bool
	LapPositions      model.LapPositions
	InspectionReports []model.InspectionReport
	IsEmpty           bool
	ParseError        bool
}

// Parse extracts all four sections from html for raceID. It never returns
// an error itself; section-level failures set ParseError and leave that
// section empty, matching the upstream "catch per-section, continue"
// behavior.
func Parse(raceID, html string) Parsed {
	var parsed Parsed
	parsed.LapPositions.RaceID = raceID

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		parsed.ParseError = true
		parsed.IsEmpty = true
		return parsed
	}

	results, problematic, err := parseResultsTable(doc, raceID)
	if err != nil {
		parsed.ParseError = true
	} else {
		parsed.Results = results
		parsed.ProblematicRows = problematic
	}

	if comment, ok := parseRaceComment(doc); ok {
		parsed.Comment = comment
		parsed.HasComment = true
	}

	parsed.LapPositions = parseLapPositions(doc, raceID)

	parsed.InspectionReports = parseInspectionReports(doc, raceID)

	parsed.IsEmpty = len(parsed.Results) == 0 && !parsed.HasComment &&
		!hasAnyLapSection(parsed.LapPositions) && len(parsed.InspectionReports) == 0

	return parsed
}

func hasAnyLapSection(lp model.LapPositions) bool {
	return len(lp.Shuukai) > 0 || len(lp.Akaban) > 0 || len(lp.Dasho) > 0 || len(lp.HS) > 0 || len(lp.BS) > 0
}

// parseResultsTable locates and extracts the results table. Any unexpected
// panic while walking the table (a malformed DOM goquery can't safely
// traverse) is recovered and reported as an error rather than crashing the
// updater, matching the original parser's catch-all around this section.
func parseResultsTable(doc *goquery.Document, raceID string) (results []model.RaceResult, problematic []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			problematic = nil
			err = fmt.Errorf("panic parsing results table: %v", r)
		}
	}()

	var table *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		headers := make(map[string]bool)
		t.Find("th").Each(func(_ int, th *goquery.Selection) {
			headers[strings.TrimSpace(th.Text())] = true
		})
		if headers["着"] && headers["車番"] && headers["選手名"] {
			sel := t
			table = sel
			return false
		}
		return true
	})
	if table == nil {
		return nil, nil, nil
	}

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 10 {
			return
		}

		bracketCell := cells.Eq(1)
		bracketNumber, ok := bracketNumberFromIconFunc(bracketCell)
		if !ok {
			html, _ := goquery.OuterHtml(row)
			problematic = append(problematic, html)
			return
		}

		rankText := strings.TrimSpace(cells.Eq(0).Text())
		result := model.RaceResult{
			RaceID:        raceID,
			BracketNumber: bracketNumber,
			Rank:          parseRank(rankText),
			RankText:      rankText,
			Mark:          strings.TrimSpace(cells.Eq(2).Text()),
			PlayerName:    strings.TrimSpace(cells.Eq(3).Text()),
			Age:           parseIntOrZero(strings.TrimSpace(cells.Eq(4).Text())),
			Prefecture:    strings.TrimSpace(cells.Eq(5).Text()),
			Period:        strings.TrimSpace(cells.Eq(6).Text()),
			Class:         strings.TrimSpace(cells.Eq(7).Text()),
			Diff:          strings.TrimSpace(cells.Eq(8).Text()),
		}
		lastLap := strings.TrimSpace(cells.Eq(9).Text())
		result.LastLapTime = lastLap
		if lastLap != "" && lastLap != "0.0" {
			if v, err := strconv.ParseFloat(lastLap, 64); err == nil {
				result.Time = v
			}
		}
		if cells.Length() > 10 {
			result.WinningTechnique = strings.TrimSpace(cells.Eq(10).Text())
		}
		if cells.Length() > 11 {
			result.Symbols = strings.TrimSpace(cells.Eq(11).Text())
		}
		if cells.Length() > 12 {
			result.WinFactor = strings.TrimSpace(cells.Eq(12).Text())
		}
		if cells.Length() > 13 {
			result.PersonalStatus = strings.TrimSpace(cells.Eq(13).Text())
		}

		results = append(results, result)
	})

	return results, problematic, nil
}

func parseRank(rankText string) int {
	if rankText == "落" || rankText == "失" {
		return 99
	}
	if v, err := strconv.Atoi(rankText); err == nil {
		return v
	}
	return 0
}

func parseIntOrZero(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

// bikeClassNumber finds a class of the form prefix-N on sel and returns N.
func bikeClassNumber(sel *goquery.Selection, prefix string) (int, bool) {
	class, exists := sel.Attr("class")
	if !exists {
		return 0, false
	}
	for _, c := range strings.Fields(class) {
		m := bikeClassRe.FindStringSubmatch(c)
		if m != nil && m[1] == prefix {
			n, err := strconv.Atoi(m[2])
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// bracketNumberFromIconFunc is a var indirection so tests can simulate a
// traversal panic and exercise parseResultsTable's recover path.
var bracketNumberFromIconFunc = bracketNumberFromIcon

func bracketNumberFromIcon(cell *goquery.Selection) (int, bool) {
	icon := cell.Find("i[class*='bikeno-']").First()
	if icon.Length() == 0 {
		return 0, false
	}
	return bikeClassNumber(icon, "bikeno")
}

func parseRaceComment(doc *goquery.Document) (string, bool) {
	var block *goquery.Selection
	doc.Find("h3, h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if strings.Contains(h.Text(), "レース評") {
			block = h.ParentsFiltered("div").First()
			return false
		}
		return true
	})
	if block == nil || block.Length() == 0 {
		commentDiv := doc.Find("div[class*='race-comment']").First()
		if commentDiv.Length() == 0 {
			return "", false
		}
		text := strings.TrimSpace(commentDiv.Text())
		if text == "" {
			return "", false
		}
		return text, true
	}

	var texts []string
	block.Find("p, div").Each(func(_ int, p *goquery.Selection) {
		if p.Find("h1,h2,h3,h4,h5,h6").Length() > 0 {
			return
		}
		text := strings.TrimSpace(p.Text())
		if text != "" && !strings.Contains(text, "レース評") {
			texts = append(texts, text)
		}
	})
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, " "), true
}

func parseLapPositions(doc *goquery.Document, raceID string) model.LapPositions {
	lp := model.LapPositions{RaceID: raceID}

	doc.Find("div.b-hyo").Each(func(_ int, section *goquery.Selection) {
		header := section.Find("th.bg-base-color").First()
		if header.Length() == 0 {
			return
		}
		name := strings.TrimSpace(header.Text())

		var points []model.LapPositionPoint
		section.Find("span[class*='bike-icon-wrapper']").Each(func(_ int, icon *goquery.Selection) {
			bikeNo, hasBikeNo := bikeClassNumber(icon, "bikeno")
			x, hasX := bikeClassNumber(icon, "x")
			y, hasY := bikeClassNumber(icon, "y")
			if !hasBikeNo || !hasX || !hasY {
				return
			}

			racerName := strings.TrimSpace(icon.Find("span.racer-nm").First().Text())
			hasArrow := false
			bikeIconElem := icon.Find("span.bike-icon").First()
			if bikeIconElem.Length() > 0 {
				if class, ok := bikeIconElem.Attr("class"); ok {
					for _, c := range strings.Fields(class) {
						if c == "arrow" {
							hasArrow = true
						}
					}
				}
			}

			points = append(points, model.LapPositionPoint{
				Bracket:    bikeNo,
				PlayerName: racerName,
				X:          float64(x),
				Y:          float64(y),
				HasArrow:   hasArrow,
			})
		})

		if len(points) == 0 {
			return
		}

		switch name {
		case "周回":
			lp.Shuukai = points
		case "赤板":
			lp.Akaban = points
		case "打鐘":
			lp.Dasho = points
		case "HS":
			lp.HS = points
		case "BS":
			lp.BS = points
		}
	})

	return lp
}

func parseInspectionReports(doc *goquery.Document, raceID string) []model.InspectionReport {
	var blockText string
	doc.Find("p.result-kensya-report-text").Each(func(_ int, p *goquery.Selection) {
		blockText += p.Text() + "\n"
	})
	blockText = strings.TrimSpace(blockText)
	if blockText == "" {
		return nil
	}

	matches := splitInspectionBlock(blockText)
	reports := make([]model.InspectionReport, 0, len(matches))
	for _, m := range matches {
		reports = append(reports, model.InspectionReport{
			RaceID:  raceID,
			Player:  truncateRunes(m.name, 6),
			Comment: m.comment,
		})
	}
	return reports
}

type inspectionMatch struct {
	name    string
	comment string
}

// markerRe matches one 【Name(rank)】 marker, capturing the name+rank text.
var markerRe = regexp.MustCompile(`【([^】]+)】`)

// splitInspectionBlock splits text on each 【Name(rank)】 marker, capturing
// everything up to the next marker (or end of string) as that rider's
// comment. Surrounding "「」" quotes, if present, are stripped. If the
// marker pattern doesn't appear at all, the entire block becomes a single
// unattributed report row.
func splitInspectionBlock(text string) []inspectionMatch {
	markers := markerRe.FindAllStringSubmatchIndex(text, -1)
	if len(markers) == 0 {
		return []inspectionMatch{{name: "", comment: text}}
	}

	var out []inspectionMatch
	for i, m := range markers {
		nameStart, nameEnd := m[2], m[3]
		contentStart := m[1]
		contentEnd := len(text)
		if i+1 < len(markers) {
			contentEnd = markers[i+1][0]
		}
		name := strings.ReplaceAll(text[nameStart:nameEnd], " ", "")
		name = strings.ReplaceAll(name, "　", "")
		comment := strings.TrimSpace(text[contentStart:contentEnd])
		comment = strings.Trim(comment, "「」")
		out = append(out, inspectionMatch{name: name, comment: comment})
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
