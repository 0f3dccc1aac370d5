package fitness

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

func TestAnalyze(t *testing.T) {
	t.Parallel()

	m := fuelmodel.DefaultCylinderModel()
	p := fuelmodel.DefaultFitParams()
	exact := Round3(fuelmodel.Evaluate(100, 14, 4, p, m)) // 0.071

	data := []dataset.DataPoint{
		{Cylinders: 4, Ratio: 10, Throttle: 50, Fuel: 5.000},
		{Cylinders: 4, Ratio: 14, Throttle: 100, Fuel: exact},
		{Cylinders: 8, Ratio: 10, Throttle: 120, Fuel: 0.300},
	}
	a := Analyze(p, m, data)
	require.Len(t, a.Rows, 3)

	first := a.Rows[0]
	assert.False(t, first.RoundsCorrect)
	assert.InDelta(t, 0.02442973566283765, first.Calc, 1e-12)
	assert.InDelta(t, 99.52, first.Pct, 1e-9)
	assert.InDelta(t, 5-0.0005-first.Calc, first.RemainingToRound, 1e-12)

	second := a.Rows[1]
	assert.True(t, second.RoundsCorrect)
	assert.Zero(t, second.RemainingToRound)
	assert.Zero(t, second.Pct)

	// calc 0.3308 exceeds 0.3005.
	third := a.Rows[2]
	assert.False(t, third.RoundsCorrect)
	assert.InDelta(t, third.Calc-0.3005, third.RemainingToRound, 1e-12)

	assert.Equal(t, 3, a.Summary.Total)
	assert.Equal(t, 1, a.Summary.CorrectRounds)
	assert.InDelta(t, 1.0/3, a.Summary.CorrectFraction(), 1e-12)
	assert.InDelta(t, first.Err, a.Summary.MaxErr, 1e-12)
	assert.InDelta(t, (first.Err+second.Err+third.Err)/3, a.Summary.AvgErr, 1e-12)
	assert.InDelta(t, (first.Pct+second.Pct+third.Pct)/3, a.Summary.AvgPct, 1e-12)

	// Rows with an eligible actual agree with Score.
	assert.InDelta(t, Score(p, m, data), a.Summary.AvgPct, 1e-9)
}

func TestAnalyzeEmpty(t *testing.T) {
	t.Parallel()

	a := Analyze(fuelmodel.DefaultFitParams(), fuelmodel.DefaultCylinderModel(), nil)
	assert.Empty(t, a.Rows)
	assert.Equal(t, Summary{}, a.Summary)
	assert.Zero(t, a.Summary.CorrectFraction())
	assert.False(t, math.IsNaN(a.Summary.AvgErr))
}

func TestAnalysisWrong(t *testing.T) {
	t.Parallel()

	a := Analysis{Rows: []RowResult{
		{RemainingToRound: 0.1, Pct: 5},
		{RoundsCorrect: true},
		{RemainingToRound: 0.3, Pct: 1},
		{RemainingToRound: 0.1, Pct: 9},
		{RemainingToRound: 0.2, Pct: 2},
	}}

	all := a.Wrong(0)
	require.Len(t, all, 4)
	assert.Equal(t, 0.3, all[0].RemainingToRound)
	assert.Equal(t, 0.2, all[1].RemainingToRound)
	assert.Equal(t, 9.0, all[2].Pct, "ties break on pct")
	assert.Equal(t, 5.0, all[3].Pct)

	top := a.Wrong(2)
	require.Len(t, top, 2)
	assert.Equal(t, 0.3, top[0].RemainingToRound)
}
