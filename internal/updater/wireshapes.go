package updater

import "encoding/json"

// The wire* types carry json tags naming the upstream camelCase fields
// exactly; transform functions translate them into internal/model values.

type wireMonthlyListing struct {
	Month struct {
		Regions []wireRegion `json:"regions"`
		Venues  []wireVenue  `json:"venues"`
		Cups    []wireCup    `json:"cups"`
	} `json:"month"`
}

type wireRegion struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireVenue struct {
	ID                     string  `json:"id"`
	Name                   string  `json:"name"`
	Address                string  `json:"address"`
	BankFeature            string  `json:"bankFeature"`
	TrackStraightDistance  float64 `json:"trackStraightDistance"`
	TrackAngleCenter       float64 `json:"trackAngleCenter"`
	TrackAngleStraight     float64 `json:"trackAngleStraight"`
	HomeWidth              float64 `json:"homeWidth"`
	BackWidth              float64 `json:"backWidth"`
	CenterWidth            float64 `json:"centerWidth"`
	RegionID               string  `json:"regionId"`
}

type wireCup struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
	Duration       int      `json:"duration"`
	Grade          int      `json:"grade"`
	VenueID        string   `json:"venueId"`
	Labels         []string `json:"labels"`
	PlayersUnfixed bool     `json:"playersUnfixed"`
}

type wireCupDetail struct {
	Schedules []wireSchedule `json:"schedules"`
	Races     []wireRace     `json:"races"`
}

type wireSchedule struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	Day             int    `json:"day"`
	Index           int    `json:"index"`
	EntriesUnfixed  bool   `json:"entriesUnfixed"`
}

type wireRace struct {
	ID                   string `json:"id"`
	ScheduleID           string `json:"scheduleId"`
	Number               int    `json:"number"`
	Class                string `json:"class"`
	RaceType             string `json:"raceType"`
	StartAt              string `json:"startAt"`
	CloseAt              string `json:"closeAt"`
	DecidedAt            string `json:"decidedAt"`
	Status               any    `json:"status"`
	// Cancel, IsGradeRace, and HasDigestVideo arrive as either a JSON bool
	// or a "true"/"false" string depending on the upstream endpoint;
	// decode as any and coerce with saver.BoolFromAny.
	Cancel               any    `json:"cancel"`
	CancelReason         string `json:"cancelReason"`
	Weather              string `json:"weather"`
	WindSpeed            float64 `json:"windSpeed"`
	Distance             int    `json:"distance"`
	Lap                  int    `json:"lap"`
	EntriesNumber        int    `json:"entriesNumber"`
	IsGradeRace          any    `json:"isGradeRace"`
	HasDigestVideo       any    `json:"hasDigestVideo"`
	DigestVideo          string `json:"digestVideo"`
	DigestVideoProvider  string `json:"digestVideoProvider"`
}

type wireRaceCard struct {
	Players         []wirePlayer       `json:"players"`
	Entries         []wireEntry        `json:"entries"`
	Records         []wirePlayerRecord `json:"records"`
	LinePrediction  *wireLinePrediction `json:"linePrediction"`
}

type wirePlayer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Class      string `json:"class"`
	Group      string `json:"group"`
	Prefecture string `json:"prefecture"`
	Term       int    `json:"term"`
	RegionID   string `json:"regionId"`
	Birthday   string `json:"birthday"`
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
}

type wireEntry struct {
	Number                    int     `json:"number"`
	Absent                    any     `json:"absent"`
	PlayerID                  *string `json:"playerId"`
	BracketNumber             int     `json:"bracketNumber"`
	PlayerCurrentTermClass    string  `json:"playerCurrentTermClass"`
	PlayerCurrentTermGroup    string  `json:"playerCurrentTermGroup"`
	PlayerPreviousTermClass   string  `json:"playerPreviousTermClass"`
	PlayerPreviousTermGroup   string  `json:"playerPreviousTermGroup"`
	HasPreviousClassGroup     any     `json:"hasPreviousClassGroup"`
}

type wirePlayerRecord struct {
	PlayerID             string  `json:"playerId"`
	GearRatio            float64 `json:"gearRatio"`
	Style                string  `json:"style"`
	RacePoint            float64 `json:"racePoint"`
	Comment              string  `json:"comment"`
	PredictionMark       string  `json:"predictionMark"`
	FirstRate            float64 `json:"firstRate"`
	SecondRate           float64 `json:"secondRate"`
	ThirdRate            float64 `json:"thirdRate"`
	HasModifiedGearRatio any     `json:"hasModifiedGearRatio"`
	ModifiedGearRatio    float64 `json:"modifiedGearRatio"`
	PreviousCupID        string  `json:"previousCupId"`
}

type wireLinePrediction struct {
	LineType string          `json:"lineType"`
	Lines    []wireLineGroup `json:"lines"`
}

type wireLineGroup struct {
	Numbers []int           `json:"numbers"`
	Entries []wireLineEntry `json:"entries"`
}

type wireLineEntry struct {
	Numbers []int `json:"numbers"`
}

type wireOddsResponse struct {
	UpdatedAt       string             `json:"updatedAt"`
	Exacta          []wireOddsRow      `json:"exacta"`
	Quinella        []wireOddsRow      `json:"quinella"`
	QuinellaPlace   []wireOddsRow      `json:"quinellaPlace"`
	Trifecta        []wireOddsRow      `json:"trifecta"`
	Trio            []wireOddsRow      `json:"trio"`
	BracketExacta   []wireOddsRow      `json:"bracketExacta"`
	BracketQuinella []wireOddsRow      `json:"bracketQuinella"`
}

type wireOddsRow struct {
	Key             []int   `json:"key"`
	Numbers         []int   `json:"numbers"`
	Brackets        []int   `json:"brackets"`
	Odds            float64 `json:"odds"`
	MinOdds         float64 `json:"minOdds"`
	MaxOdds         float64 `json:"maxOdds"`
	Type            *int    `json:"type"`
	PopularityOrder int     `json:"popularityOrder"`
	Absent          any     `json:"absent"`
}

// combination returns whichever of Key/Numbers/Brackets the API populated.
func (r wireOddsRow) combination() []int {
	switch {
	case len(r.Key) > 0:
		return r.Key
	case len(r.Numbers) > 0:
		return r.Numbers
	default:
		return r.Brackets
	}
}

func (r *wireOddsResponse) byBetType() map[string][]wireOddsRow {
	return map[string][]wireOddsRow{
		"exacta":          r.Exacta,
		"quinella":        r.Quinella,
		"quinellaPlace":   r.QuinellaPlace,
		"trifecta":        r.Trifecta,
		"trio":            r.Trio,
		"bracketExacta":   r.BracketExacta,
		"bracketQuinella": r.BracketQuinella,
	}
}

func (r *wireOddsResponse) isEffectivelyEmpty() bool {
	for _, rows := range r.byBetType() {
		if len(rows) > 0 {
			return false
		}
	}
	return true
}

func unmarshalInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
