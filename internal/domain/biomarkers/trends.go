package biomarkers

import (
	"math"
	"sort"
	"time"
)

// TrendLabel enum.
type TrendLabel string

const (
	TrendImproving TrendLabel = "improving"
	TrendDeclining TrendLabel = "declining"
	TrendStable    TrendLabel = "stable"
)

// direction of "better" per marker; markers without an entry get no
// directionality and always label stable.
type direction int

const (
	higherIsBetter direction = iota
	lowerIsBetter
)

var trendDirections = map[string]direction{
	"hdl cholesterol":   higherIsBetter,
	"vitamin d":         higherIsBetter,
	"vitamin b12":       higherIsBetter,
	"ldl cholesterol":   lowerIsBetter,
	"total cholesterol": lowerIsBetter,
	"triglycerides":     lowerIsBetter,
	"glucose":           lowerIsBetter,
	"hba1c":             lowerIsBetter,
	"crp":               lowerIsBetter,
	"homocysteine":      lowerIsBetter,
}

// Relative moves smaller than this are labeled stable.
const trendDeadbandPct = 2.0

// TrendPoint is one dated value in a marker series.
type TrendPoint struct {
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
	Unit   string    `json:"unit,omitempty"`
	Status Status    `json:"status,omitempty"`
}

// Trend is the longitudinal view of one marker across records.
type Trend struct {
	Name          string       `json:"name"`
	Points        []TrendPoint `json:"points"`
	ChangePercent *float64     `json:"change_percent"`
	Label         TrendLabel   `json:"trend"`
}

// RecordSnapshot is the slice of a completed record the trend engine
// needs: its effective date and biomarkers.
type RecordSnapshot struct {
	Date       time.Time
	Biomarkers []Biomarker
}

// Comparison is the read-only projection over a user's history.
type Comparison struct {
	Trends          []Trend    `json:"biomarker_trends"`
	RecordsCompared int        `json:"records_compared"`
	DateRange       *DateRange `json:"date_range,omitempty"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ComputeTrends aligns same-named biomarkers across the given records
// and derives percent change and a direction label per marker. Records
// are expected to be the user's completed history; order is handled
// here. Never mutates its input.
func ComputeTrends(records []RecordSnapshot) Comparison {
	ordered := make([]RecordSnapshot, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	series := map[string][]TrendPoint{}
	var names []string
	for _, rec := range ordered {
		for _, b := range rec.Biomarkers {
			name := Normalize(b.Name)
			if _, seen := series[name]; !seen {
				names = append(names, name)
			}
			series[name] = append(series[name], TrendPoint{
				Date:   rec.Date,
				Value:  b.Value,
				Unit:   b.Unit,
				Status: b.Status,
			})
		}
	}

	cmp := Comparison{RecordsCompared: len(ordered)}
	if len(ordered) > 0 {
		cmp.DateRange = &DateRange{
			Start: ordered[0].Date,
			End:   ordered[len(ordered)-1].Date,
		}
	}

	for _, name := range names {
		pts := series[name]
		t := Trend{Name: name, Points: pts, Label: TrendStable}
		if len(pts) >= 2 {
			earliest, latest := pts[0].Value, pts[len(pts)-1].Value
			if earliest != 0 {
				change := (latest - earliest) / math.Abs(earliest) * 100
				t.ChangePercent = &change
				t.Label = labelFor(name, change)
			}
		}
		cmp.Trends = append(cmp.Trends, t)
	}
	return cmp
}

func labelFor(name string, changePct float64) TrendLabel {
	if math.Abs(changePct) < trendDeadbandPct {
		return TrendStable
	}
	dir, ok := trendDirections[name]
	if !ok {
		return TrendStable
	}
	rising := changePct > 0
	if (dir == higherIsBetter) == rising {
		return TrendImproving
	}
	return TrendDeclining
}
