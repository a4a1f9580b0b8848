package biomarkers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func snapshot(n int, bs ...Biomarker) RecordSnapshot {
	return RecordSnapshot{Date: day(n), Biomarkers: bs}
}

func findTrend(t *testing.T, cmp Comparison, name string) Trend {
	t.Helper()
	for _, tr := range cmp.Trends {
		if tr.Name == name {
			return tr
		}
	}
	t.Fatalf("no trend for %s", name)
	return Trend{}
}

func TestComputeTrendsSpecScenario(t *testing.T) {
	// vitamin d 20 -> 28 across two records: +40%, improving
	cmp := ComputeTrends([]RecordSnapshot{
		snapshot(0, Biomarker{Name: "vitamin d", Value: 20, Status: StatusLow}),
		snapshot(30, Biomarker{Name: "vitamin d", Value: 28, Status: StatusLow}),
	})
	require.Equal(t, 2, cmp.RecordsCompared)

	tr := findTrend(t, cmp, "vitamin d")
	require.NotNil(t, tr.ChangePercent)
	assert.InDelta(t, 40.0, *tr.ChangePercent, 1e-9)
	assert.Equal(t, TrendImproving, tr.Label)

	require.NotNil(t, cmp.DateRange)
	assert.Equal(t, day(0), cmp.DateRange.Start)
	assert.Equal(t, day(30), cmp.DateRange.End)
}

func TestComputeTrendsSinglePointIsNull(t *testing.T) {
	cmp := ComputeTrends([]RecordSnapshot{
		snapshot(0, Biomarker{Name: "ldl cholesterol", Value: 120}),
	})
	tr := findTrend(t, cmp, "ldl cholesterol")
	assert.Nil(t, tr.ChangePercent)
	assert.Equal(t, TrendStable, tr.Label)
}

func TestComputeTrendsZeroBaselineIsNull(t *testing.T) {
	cmp := ComputeTrends([]RecordSnapshot{
		snapshot(0, Biomarker{Name: "crp", Value: 0}),
		snapshot(10, Biomarker{Name: "crp", Value: 2}),
	})
	tr := findTrend(t, cmp, "crp")
	assert.Nil(t, tr.ChangePercent)
}

func TestComputeTrendsDirectionality(t *testing.T) {
	// rising ldl is declining, falling ldl is improving
	cmp := ComputeTrends([]RecordSnapshot{
		snapshot(0, Biomarker{Name: "ldl cholesterol", Value: 120}),
		snapshot(10, Biomarker{Name: "ldl cholesterol", Value: 150}),
	})
	assert.Equal(t, TrendDeclining, findTrend(t, cmp, "ldl cholesterol").Label)

	cmp = ComputeTrends([]RecordSnapshot{
		snapshot(0, Biomarker{Name: "ldl cholesterol", Value: 150}),
		snapshot(10, Biomarker{Name: "ldl cholesterol", Value: 120}),
	})
	assert.Equal(t, TrendImproving, findTrend(t, cmp, "ldl cholesterol").Label)
}

func TestComputeTrendsDeadband(t *testing.T) {
	cmp := ComputeTrends([]RecordSnapshot{
		snapshot(0, Biomarker{Name: "hdl cholesterol", Value: 60.0}),
		snapshot(10, Biomarker{Name: "hdl cholesterol", Value: 60.5}),
	})
	tr := findTrend(t, cmp, "hdl cholesterol")
	require.NotNil(t, tr.ChangePercent)
	assert.Equal(t, TrendStable, tr.Label)
}

func TestComputeTrendsNoDirectionalityRule(t *testing.T) {
	cmp := ComputeTrends([]RecordSnapshot{
		snapshot(0, Biomarker{Name: "mystery", Value: 10}),
		snapshot(10, Biomarker{Name: "mystery", Value: 20}),
	})
	tr := findTrend(t, cmp, "mystery")
	require.NotNil(t, tr.ChangePercent)
	assert.InDelta(t, 100.0, *tr.ChangePercent, 1e-9)
	assert.Equal(t, TrendStable, tr.Label)
}

func TestComputeTrendsOrdersByDate(t *testing.T) {
	// snapshots given out of order; earliest/latest must follow dates
	cmp := ComputeTrends([]RecordSnapshot{
		snapshot(30, Biomarker{Name: "glucose", Value: 110}),
		snapshot(0, Biomarker{Name: "glucose", Value: 100}),
	})
	tr := findTrend(t, cmp, "glucose")
	require.NotNil(t, tr.ChangePercent)
	assert.InDelta(t, 10.0, *tr.ChangePercent, 1e-9)
	assert.Equal(t, TrendDeclining, tr.Label)
}

func TestComputeTrendsNegativeBaseline(t *testing.T) {
	// textbook formula uses |earliest| in the denominator
	cmp := ComputeTrends([]RecordSnapshot{
		snapshot(0, Biomarker{Name: "mystery", Value: -10}),
		snapshot(10, Biomarker{Name: "mystery", Value: -5}),
	})
	tr := findTrend(t, cmp, "mystery")
	require.NotNil(t, tr.ChangePercent)
	assert.InDelta(t, 50.0, *tr.ChangePercent, 1e-9)
}

func TestComputeTrendsDoesNotMutateInput(t *testing.T) {
	in := []RecordSnapshot{
		snapshot(30, Biomarker{Name: "glucose", Value: 110}),
		snapshot(0, Biomarker{Name: "glucose", Value: 100}),
	}
	ComputeTrends(in)
	assert.Equal(t, day(30), in[0].Date)
	assert.Equal(t, day(0), in[1].Date)
}

func TestComputeTrendsEmpty(t *testing.T) {
	cmp := ComputeTrends(nil)
	assert.Equal(t, 0, cmp.RecordsCompared)
	assert.Nil(t, cmp.DateRange)
	assert.Empty(t, cmp.Trends)
}
