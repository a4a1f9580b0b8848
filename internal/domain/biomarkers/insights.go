package biomarkers

import (
	"fmt"
	"sort"
	"strings"
)

// Correlation is a biomarker-group insight with a severity.
type Correlation struct {
	Title      string   `json:"title"`
	Biomarkers []string `json:"biomarkers"`
	Insight    string   `json:"insight"`
	Severity   string   `json:"severity"` // info | moderate | high
}

// SupplementRecommendation is one entry of the supplement protocol.
type SupplementRecommendation struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage"`
	Timing string `json:"timing"`
	Reason string `json:"reason"`
}

// Analysis is the full derived block attached to a finalized record.
type Analysis struct {
	Summary             string                     `json:"summary"`
	KeyFindings         []string                   `json:"key_findings,omitempty"`
	Correlations        []Correlation              `json:"correlations,omitempty"`
	Recommendations     []string                   `json:"recommendations,omitempty"`
	FoodRecommendations []string                   `json:"food_recommendations,omitempty"`
	SupplementProtocol  []SupplementRecommendation `json:"supplement_protocol,omitempty"`
}

// correlationRule fires when every listed marker has the given status.
type correlationRule struct {
	markers  map[string]Status
	title    string
	insight  string
	severity string
}

var correlationRules = []correlationRule{
	{
		markers:  map[string]Status{"glucose": StatusHigh, "hba1c": StatusHigh},
		title:    "Blood sugar regulation",
		insight:  "Both fasting glucose and HbA1c are above the optimal band, which points to sustained rather than situational elevation.",
		severity: "high",
	},
	{
		markers:  map[string]Status{"ldl cholesterol": StatusHigh, "hdl cholesterol": StatusLow},
		title:    "Lipid balance",
		insight:  "Elevated LDL combined with low HDL shifts the cholesterol ratio in an unfavorable direction.",
		severity: "high",
	},
	{
		markers:  map[string]Status{"ldl cholesterol": StatusHigh, "crp": StatusHigh},
		title:    "Lipids and inflammation",
		insight:  "Elevated LDL together with elevated CRP often move together; addressing one tends to help the other.",
		severity: "moderate",
	},
	{
		markers:  map[string]Status{"vitamin d": StatusLow, "crp": StatusHigh},
		title:    "Vitamin D and inflammation",
		insight:  "Low vitamin D frequently accompanies elevated inflammatory markers.",
		severity: "moderate",
	},
	{
		markers:  map[string]Status{"ferritin": StatusLow, "iron": StatusLow},
		title:    "Iron stores",
		insight:  "Low ferritin with low serum iron suggests depleted iron stores rather than a transient dip.",
		severity: "moderate",
	},
}

// per-marker recommendation tables, keyed by normalized name + status.
type markerAdvice struct {
	recommendation string
	foods          []string
	supplement     *SupplementRecommendation
}

var adviceTable = map[string]map[Status]markerAdvice{
	"vitamin d": {
		StatusLow: {
			recommendation: "Increase sun exposure and consider vitamin D3 supplementation; retest in 8-12 weeks.",
			foods:          []string{"fatty fish (salmon, sardines)", "egg yolks", "fortified dairy"},
			supplement:     &SupplementRecommendation{Name: "Vitamin D3", Dosage: "5000 IU", Timing: "with breakfast", Reason: "serum 25-OH vitamin D below optimal band"},
		},
	},
	"vitamin b12": {
		StatusLow: {
			recommendation: "Add B12-rich foods or a methylcobalamin supplement.",
			foods:          []string{"shellfish", "beef liver", "nutritional yeast"},
			supplement:     &SupplementRecommendation{Name: "Methylcobalamin", Dosage: "1000 mcg", Timing: "morning, sublingual", Reason: "B12 below optimal band"},
		},
	},
	"ldl cholesterol": {
		StatusHigh: {
			recommendation: "Reduce saturated fat and refined carbohydrate intake; increase soluble fiber.",
			foods:          []string{"oats", "legumes", "nuts", "olive oil"},
		},
	},
	"hdl cholesterol": {
		StatusLow: {
			recommendation: "Regular aerobic exercise and monounsaturated fats support HDL.",
			foods:          []string{"avocado", "olive oil", "fatty fish"},
			supplement:     &SupplementRecommendation{Name: "Omega-3 (EPA/DHA)", Dosage: "2 g", Timing: "with meals", Reason: "HDL below optimal band"},
		},
	},
	"triglycerides": {
		StatusHigh: {
			recommendation: "Cut added sugar and alcohol; omega-3 intake lowers triglycerides.",
			foods:          []string{"fatty fish", "leafy greens", "berries"},
			supplement:     &SupplementRecommendation{Name: "Omega-3 (EPA/DHA)", Dosage: "2-4 g", Timing: "with meals", Reason: "triglycerides above optimal band"},
		},
	},
	"glucose": {
		StatusHigh: {
			recommendation: "Prioritize post-meal walks and lower glycemic-load meals.",
			foods:          []string{"non-starchy vegetables", "legumes", "cinnamon"},
		},
	},
	"hba1c": {
		StatusHigh: {
			recommendation: "Sustained glucose elevation; review carbohydrate intake and sleep, retest in 3 months.",
			foods:          []string{"whole grains", "leafy greens", "vinegar with meals"},
			supplement:     &SupplementRecommendation{Name: "Berberine", Dosage: "500 mg twice daily", Timing: "before meals", Reason: "HbA1c above optimal band"},
		},
	},
	"crp": {
		StatusHigh: {
			recommendation: "Address inflammation drivers: sleep, processed food, sedentary time.",
			foods:          []string{"turmeric", "fatty fish", "extra-virgin olive oil"},
			supplement:     &SupplementRecommendation{Name: "Curcumin", Dosage: "1000 mg", Timing: "with a fatty meal", Reason: "CRP above optimal band"},
		},
	},
	"ferritin": {
		StatusLow: {
			recommendation: "Increase heme-iron foods; pair plant iron with vitamin C.",
			foods:          []string{"red meat", "lentils", "spinach with citrus"},
			supplement:     &SupplementRecommendation{Name: "Iron bisglycinate", Dosage: "25 mg", Timing: "every other morning, away from coffee", Reason: "ferritin below optimal band"},
		},
	},
	"magnesium": {
		StatusLow: {
			recommendation: "Most diets run low on magnesium; nuts, seeds and dark chocolate help.",
			foods:          []string{"pumpkin seeds", "almonds", "dark chocolate"},
			supplement:     &SupplementRecommendation{Name: "Magnesium glycinate", Dosage: "300 mg", Timing: "evening", Reason: "magnesium below optimal band"},
		},
	},
}

// BuildAnalysis derives the full analysis block from a classified
// biomarker set. Deterministic: same input produces the same output,
// so re-running finalize never changes a completed record.
func BuildAnalysis(list []Biomarker) Analysis {
	var a Analysis

	total, optimal := 0, 0
	var outOfRange []Biomarker
	statuses := map[string]Status{}
	for _, b := range list {
		statuses[b.Name] = b.Status
		if !b.Scored() {
			continue
		}
		total++
		if b.Status == StatusOptimal {
			optimal++
		} else {
			outOfRange = append(outOfRange, b)
		}
	}
	sort.SliceStable(outOfRange, func(i, j int) bool { return outOfRange[i].Name < outOfRange[j].Name })

	switch {
	case total == 0:
		a.Summary = "No markers in this report have a known reference range; results are shown without scoring."
	case len(outOfRange) == 0:
		a.Summary = fmt.Sprintf("All %d scored markers are in their optimal range.", total)
	default:
		names := make([]string, 0, len(outOfRange))
		for _, b := range outOfRange {
			names = append(names, fmt.Sprintf("%s (%s)", b.Name, b.Status))
		}
		a.Summary = fmt.Sprintf("%d of %d scored markers are optimal. Out of range: %s.",
			optimal, total, strings.Join(names, ", "))
	}

	for _, b := range outOfRange {
		a.KeyFindings = append(a.KeyFindings,
			fmt.Sprintf("%s is %s at %s %s (optimal %s)", b.Name, b.Status, trimFloat(b.Value), b.Unit, b.ReferenceRange))
	}

	for _, rule := range correlationRules {
		matched := true
		var names []string
		for marker, want := range rule.markers {
			if statuses[marker] != want {
				matched = false
				break
			}
			names = append(names, marker)
		}
		if !matched {
			continue
		}
		sort.Strings(names)
		a.Correlations = append(a.Correlations, Correlation{
			Title:      rule.title,
			Biomarkers: names,
			Insight:    rule.insight,
			Severity:   rule.severity,
		})
	}

	seenFood := map[string]bool{}
	for _, b := range outOfRange {
		advice, ok := adviceTable[b.Name][b.Status]
		if !ok {
			continue
		}
		a.Recommendations = append(a.Recommendations, advice.recommendation)
		for _, f := range advice.foods {
			if !seenFood[f] {
				seenFood[f] = true
				a.FoodRecommendations = append(a.FoodRecommendations, f)
			}
		}
		if advice.supplement != nil {
			a.SupplementProtocol = append(a.SupplementProtocol, *advice.supplement)
		}
	}

	return a
}
