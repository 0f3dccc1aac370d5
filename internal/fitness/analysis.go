package fitness

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// roundingHalfWidth is half of the last published decimal.
const roundingHalfWidth = 0.0005

// RowResult compares one measurement with the model.
type RowResult struct {
	dataset.DataPoint
	Calc float64 `json:"calc"`
	// Err is the unrounded absolute error.
	Err float64 `json:"err"`
	// Pct is the rounded percentage error; zero for rows ignored by Score.
	Pct           float64 `json:"pct"`
	RoundsCorrect bool    `json:"rounds_correct"`
	// RemainingToRound is how far Calc lies outside the interval that would
	// round to the measured value. Zero when RoundsCorrect.
	RemainingToRound float64 `json:"remaining_to_round"`
}

// Summary aggregates an analysis.
type Summary struct {
	Total         int     `json:"total"`
	AvgErr        float64 `json:"avg_err"`
	MaxErr        float64 `json:"max_err"`
	AvgPct        float64 `json:"avg_pct"`
	CorrectRounds int     `json:"correct_rounds"`
}

// CorrectFraction is CorrectRounds/Total, or 0 for an empty analysis.
func (s Summary) CorrectFraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.CorrectRounds) / float64(s.Total)
}

// Analysis holds per-row results and their summary.
type Analysis struct {
	Rows    []RowResult `json:"rows"`
	Summary Summary     `json:"summary"`
}

// Analyze evaluates p over every row of data.
func Analyze(p fuelmodel.FitParams, m fuelmodel.CylinderModelParams, data []dataset.DataPoint) Analysis {
	rows := make([]RowResult, len(data))
	errs := make([]float64, len(data))
	pcts := make([]float64, len(data))
	correct := 0

	for i, d := range data {
		calc := fuelmodel.Evaluate(d.Throttle, d.Ratio, d.Cylinders, p, m)
		roundedCalc := Round3(calc)
		roundedActual := Round3(d.Fuel)

		r := RowResult{
			DataPoint:     d,
			Calc:          calc,
			Err:           math.Abs(d.Fuel - calc),
			RoundsCorrect: roundedCalc == roundedActual,
		}
		if roundedActual > MinActual {
			r.Pct = math.Abs((roundedCalc - roundedActual) / roundedActual * 100)
		}
		if !r.RoundsCorrect {
			lower, upper := d.Fuel-roundingHalfWidth, d.Fuel+roundingHalfWidth
			switch {
			case calc < lower:
				r.RemainingToRound = lower - calc
			case calc > upper:
				r.RemainingToRound = calc - upper
			}
		} else {
			correct++
		}

		rows[i] = r
		errs[i] = r.Err
		pcts[i] = r.Pct
	}

	a := Analysis{Rows: rows, Summary: Summary{Total: len(data), CorrectRounds: correct}}
	if len(data) > 0 {
		a.Summary.AvgErr = stat.Mean(errs, nil)
		a.Summary.MaxErr = floats.Max(errs)
		a.Summary.AvgPct = stat.Mean(pcts, nil)
	}
	return a
}

// Wrong returns rows that do not round to the measured value, ordered by
// RemainingToRound then Pct, both descending. A limit of zero or less
// returns every such row.
func (a Analysis) Wrong(limit int) []RowResult {
	var out []RowResult
	for _, r := range a.Rows {
		if !r.RoundsCorrect {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RemainingToRound != out[j].RemainingToRound {
			return out[i].RemainingToRound > out[j].RemainingToRound
		}
		return out[i].Pct > out[j].Pct
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
