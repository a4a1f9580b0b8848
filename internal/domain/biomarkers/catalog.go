package biomarkers

import (
	"fmt"
	"math"
	"strings"
)

// Range is the optimal band for a marker. Open-ended bands use ±Inf.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v falls inside the band, boundaries inclusive.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// String renders the band for display, e.g. "40-60", "<130", ">60".
func (r Range) String() string {
	switch {
	case math.IsInf(r.Max, 1):
		return fmt.Sprintf(">%s", trimFloat(r.Min))
	case r.Min <= 0 || math.IsInf(r.Min, -1):
		return fmt.Sprintf("<%s", trimFloat(r.Max))
	default:
		return fmt.Sprintf("%s-%s", trimFloat(r.Min), trimFloat(r.Max))
	}
}

func trimFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

// CatalogEntry describes one supported marker.
type CatalogEntry struct {
	Unit     string
	Optimal  Range
	Category string
}

// catalog maps normalized marker name to its reference range.
// New markers are added here, not in code paths.
var catalog = map[string]CatalogEntry{
	"vitamin d":         {Unit: "ng/mL", Optimal: Range{Min: 40, Max: 60}, Category: "vitamins"},
	"vitamin b12":       {Unit: "pg/mL", Optimal: Range{Min: 400, Max: 900}, Category: "vitamins"},
	"ldl cholesterol":   {Unit: "mg/dL", Optimal: Range{Min: 0, Max: 130}, Category: "lipids"},
	"hdl cholesterol":   {Unit: "mg/dL", Optimal: Range{Min: 60, Max: math.Inf(1)}, Category: "lipids"},
	"total cholesterol": {Unit: "mg/dL", Optimal: Range{Min: 0, Max: 200}, Category: "lipids"},
	"triglycerides":     {Unit: "mg/dL", Optimal: Range{Min: 0, Max: 150}, Category: "lipids"},
	"glucose":           {Unit: "mg/dL", Optimal: Range{Min: 70, Max: 99}, Category: "metabolic"},
	"hba1c":             {Unit: "%", Optimal: Range{Min: 4.0, Max: 5.6}, Category: "metabolic"},
	"insulin":           {Unit: "uIU/mL", Optimal: Range{Min: 2, Max: 12}, Category: "metabolic"},
	"crp":               {Unit: "mg/L", Optimal: Range{Min: 0, Max: 1.0}, Category: "inflammation"},
	"homocysteine":      {Unit: "umol/L", Optimal: Range{Min: 4, Max: 10}, Category: "inflammation"},
	"tsh":               {Unit: "mIU/L", Optimal: Range{Min: 0.5, Max: 2.5}, Category: "thyroid"},
	"free t3":           {Unit: "pg/mL", Optimal: Range{Min: 2.8, Max: 4.2}, Category: "thyroid"},
	"free t4":           {Unit: "ng/dL", Optimal: Range{Min: 0.9, Max: 1.7}, Category: "thyroid"},
	"ferritin":          {Unit: "ng/mL", Optimal: Range{Min: 50, Max: 150}, Category: "minerals"},
	"iron":              {Unit: "ug/dL", Optimal: Range{Min: 60, Max: 170}, Category: "minerals"},
	"magnesium":         {Unit: "mg/dL", Optimal: Range{Min: 1.8, Max: 2.4}, Category: "minerals"},
	"zinc":              {Unit: "ug/dL", Optimal: Range{Min: 70, Max: 120}, Category: "minerals"},
	"creatinine":        {Unit: "mg/dL", Optimal: Range{Min: 0.6, Max: 1.2}, Category: "kidney"},
	"alt":               {Unit: "U/L", Optimal: Range{Min: 0, Max: 30}, Category: "liver"},
	"ast":               {Unit: "U/L", Optimal: Range{Min: 0, Max: 30}, Category: "liver"},
	"testosterone":      {Unit: "ng/dL", Optimal: Range{Min: 400, Max: 900}, Category: "hormones"},
	"cortisol":          {Unit: "ug/dL", Optimal: Range{Min: 6, Max: 18}, Category: "hormones"},
}

// aliases resolves common lab-report spellings to catalog names.
var aliases = map[string]string{
	"ldl":                 "ldl cholesterol",
	"ldl-c":               "ldl cholesterol",
	"hdl":                 "hdl cholesterol",
	"hdl-c":               "hdl cholesterol",
	"cholesterol":         "total cholesterol",
	"vit d":               "vitamin d",
	"vitamin d3":          "vitamin d",
	"25-oh vitamin d":     "vitamin d",
	"25-hydroxyvitamin d": "vitamin d",
	"b12":                 "vitamin b12",
	"cobalamin":           "vitamin b12",
	"a1c":                 "hba1c",
	"hemoglobin a1c":      "hba1c",
	"hb a1c":              "hba1c",
	"blood glucose":       "glucose",
	"fasting glucose":     "glucose",
	"c-reactive protein":  "crp",
	"hs-crp":              "crp",
	"trig":                "triglycerides",
	"sgpt":                "alt",
	"sgot":                "ast",
	"t3 free":             "free t3",
	"t4 free":             "free t4",
}

// Normalize case-folds, trims and resolves aliases to the canonical name.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.Join(strings.Fields(n), " ")
	if canon, ok := aliases[n]; ok {
		return canon
	}
	return n
}

// Lookup returns the catalog entry for a (possibly unnormalized) marker name.
func Lookup(name string) (CatalogEntry, bool) {
	e, ok := catalog[Normalize(name)]
	return e, ok
}
