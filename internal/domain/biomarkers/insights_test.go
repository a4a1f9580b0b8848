package biomarkers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classified(name string, value float64) Biomarker {
	return Classify(Measurement{Name: name, Value: value})
}

func TestBuildAnalysisAllOptimal(t *testing.T) {
	a := BuildAnalysis([]Biomarker{
		classified("hdl", 65),
		classified("glucose", 85),
	})
	assert.Equal(t, "All 2 scored markers are in their optimal range.", a.Summary)
	assert.Empty(t, a.KeyFindings)
	assert.Empty(t, a.Correlations)
	assert.Empty(t, a.SupplementProtocol)
}

func TestBuildAnalysisNothingScorable(t *testing.T) {
	a := BuildAnalysis([]Biomarker{classified("mystery marker", 12)})
	assert.Contains(t, a.Summary, "known reference range")
	assert.Empty(t, a.KeyFindings)
}

func TestBuildAnalysisOutOfRangeSummaryAndFindings(t *testing.T) {
	a := BuildAnalysis([]Biomarker{
		classified("vitamin d", 24),
		classified("ldl", 150),
		classified("hdl", 65),
	})
	assert.Equal(t, "1 of 3 scored markers are optimal. Out of range: ldl cholesterol (high), vitamin d (low).", a.Summary)

	require.Len(t, a.KeyFindings, 2)
	// findings are sorted by marker name
	assert.Contains(t, a.KeyFindings[0], "ldl cholesterol is high at 150")
	assert.Contains(t, a.KeyFindings[1], "vitamin d is low at 24")
	assert.Contains(t, a.KeyFindings[1], "optimal 40-60")
}

func TestBuildAnalysisCorrelationFires(t *testing.T) {
	a := BuildAnalysis([]Biomarker{
		classified("ldl", 160),
		classified("hdl", 35),
	})
	require.Len(t, a.Correlations, 1)
	c := a.Correlations[0]
	assert.Equal(t, "Lipid balance", c.Title)
	assert.Equal(t, []string{"hdl cholesterol", "ldl cholesterol"}, c.Biomarkers)
	assert.Equal(t, "high", c.Severity)
}

func TestBuildAnalysisCorrelationNeedsAllMarkers(t *testing.T) {
	// high LDL alone does not trigger the lipid balance rule
	a := BuildAnalysis([]Biomarker{classified("ldl", 160)})
	assert.Empty(t, a.Correlations)
}

func TestBuildAnalysisSupplementsAndFoodDedup(t *testing.T) {
	// low HDL and high triglycerides both recommend fatty fish; the food
	// list keeps one entry but the supplement protocol keeps both omega-3
	// lines since they carry different reasons.
	a := BuildAnalysis([]Biomarker{
		classified("hdl", 35),
		classified("triglycerides", 220),
	})

	seen := map[string]int{}
	for _, f := range a.FoodRecommendations {
		seen[f]++
	}
	assert.Equal(t, 1, seen["fatty fish"])
	require.Len(t, a.SupplementProtocol, 2)
	assert.Len(t, a.Recommendations, 2)
}

func TestBuildAnalysisDeterministic(t *testing.T) {
	in := []Biomarker{
		classified("vitamin d", 24),
		classified("ldl", 150),
		classified("crp", 3.2),
		classified("hdl", 35),
	}
	first := BuildAnalysis(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildAnalysis(in))
	}
}
