// Package fitness scores fuel-model parameters against measured data.
//
// The score is a mean absolute percentage error computed after rounding
// both the modelled and the measured value to three decimals, which is the
// precision the measurements are published at. Lower is better; zero means
// every row rounds to the measured value.
package fitness

import (
	"math"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// MinActual is the rounded measurement at or below which a row is ignored.
const MinActual = 0.001

// Round3 rounds half up to three decimals.
func Round3(v float64) float64 {
	return math.Floor(v*1000+0.5) / 1000
}

// Score returns the mean absolute percentage error of p over data, or +Inf
// when no row qualifies. A non-finite result is reported as +Inf.
func Score(p fuelmodel.FitParams, m fuelmodel.CylinderModelParams, data []dataset.DataPoint) float64 {
	var total float64
	var count int
	for _, d := range data {
		actual := Round3(d.Fuel)
		if actual <= MinActual {
			continue
		}
		calc := Round3(fuelmodel.Evaluate(d.Throttle, d.Ratio, d.Cylinders, p, m))
		total += math.Abs((calc - actual) / actual * 100)
		count++
	}
	if count == 0 {
		return math.Inf(1)
	}
	score := total / float64(count)
	if math.IsNaN(score) {
		return math.Inf(1)
	}
	return score
}

// Evaluator binds a dataset and cylinder model so candidates can be scored
// by parameters alone.
type Evaluator struct {
	Model fuelmodel.CylinderModelParams
	Data  []dataset.DataPoint
}

// NewEvaluator returns an Evaluator over data. The slice is not copied and
// must not be modified while the evaluator is in use.
func NewEvaluator(m fuelmodel.CylinderModelParams, data []dataset.DataPoint) *Evaluator {
	return &Evaluator{Model: m, Data: data}
}

// Score scores p against the bound dataset.
func (e *Evaluator) Score(p fuelmodel.FitParams) float64 {
	return Score(p, e.Model, e.Data)
}
