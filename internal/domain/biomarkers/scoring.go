package biomarkers

import "math"

// WellnessScore derives a 0-100 composite from the fraction of optimal
// markers. Markers without a known status are excluded. Zero scorable
// markers yields 0; otherwise the score has a floor of 30.
func WellnessScore(list []Biomarker) int {
	scored, optimal := 0, 0
	for _, b := range list {
		if !b.Scored() {
			continue
		}
		scored++
		if b.Status == StatusOptimal {
			optimal++
		}
	}
	if scored == 0 {
		return 0
	}
	score := int(math.Round(30 + 70*float64(optimal)/float64(scored)))
	if score < 30 {
		score = 30
	}
	if score > 100 {
		score = 100
	}
	return score
}

// AgeRule adds Years to the health-age modifier when the named marker
// is present with the given status.
type AgeRule struct {
	Marker string
	Status Status
	Years  int
}

// AgeRules is the health-age modifier table, keyed by normalized marker
// name. Markers without a rule contribute nothing. Exported so each
// rule can be exercised on its own in tests.
var AgeRules = []AgeRule{
	{Marker: "glucose", Status: StatusHigh, Years: 2},
	{Marker: "hba1c", Status: StatusHigh, Years: 3},
	{Marker: "hdl cholesterol", Status: StatusLow, Years: 2},
	{Marker: "ldl cholesterol", Status: StatusHigh, Years: 2},
	{Marker: "triglycerides", Status: StatusHigh, Years: 1},
	{Marker: "crp", Status: StatusHigh, Years: 2},
	{Marker: "vitamin d", Status: StatusLow, Years: 1},
	{Marker: "vitamin d", Status: StatusOptimal, Years: -1},
	{Marker: "homocysteine", Status: StatusHigh, Years: 1},
	{Marker: "tsh", Status: StatusHigh, Years: 1},
}

const minHealthAge = 18

// HealthAge estimates biological age: chronological age plus the sum of
// matching table modifiers. Returns nil when the chronological age is
// unknown or the biomarker set is empty.
func HealthAge(list []Biomarker, chronologicalAge *int) *int {
	if chronologicalAge == nil || len(list) == 0 {
		return nil
	}
	modifier := 0
	for _, b := range list {
		if !b.Scored() {
			continue
		}
		for _, rule := range AgeRules {
			if rule.Marker == b.Name && rule.Status == b.Status {
				modifier += rule.Years
			}
		}
	}
	age := *chronologicalAge + modifier
	if age < minHealthAge {
		age = minHealthAge
	}
	return &age
}
