package fitness

import (
	"math"
	"testing"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

func TestScorePinnedSingleRow(t *testing.T) {
	data := []dataset.DataPoint{{Cylinders: 4, Ratio: 10, Throttle: 50, Fuel: 5.000}}
	// Evaluate(50, 10, 4) = 0.0244297... rounds to 0.024; |0.024-5|/5*100 = 99.52.
	got := Score(fuelmodel.DefaultFitParams(), fuelmodel.DefaultCylinderModel(), data)
	if math.Abs(got-99.52) > 1e-9 {
		t.Errorf("Score = %v, want 99.52", got)
	}
}

func TestScoreZeroWhenModelMatches(t *testing.T) {
	m := fuelmodel.DefaultCylinderModel()
	p := fuelmodel.DefaultFitParams()

	var data []dataset.DataPoint
	for c := 2.0; c <= 16; c += 2 {
		for thr := 40.0; thr <= 140; thr += 20 {
			d := dataset.DataPoint{Cylinders: c, Ratio: 8, Throttle: thr}
			d.Fuel = Round3(fuelmodel.Evaluate(thr, d.Ratio, c, p, m))
			data = append(data, d)
		}
	}

	if got := Score(p, m, data); got != 0 {
		t.Errorf("Score = %v, want 0", got)
	}
}

func TestScoreInfinity(t *testing.T) {
	m := fuelmodel.DefaultCylinderModel()
	p := fuelmodel.DefaultFitParams()

	testCases := []struct {
		name string
		data []dataset.DataPoint
		p    fuelmodel.FitParams
	}{
		{"empty_dataset", nil, p},
		{"all_near_zero", []dataset.DataPoint{
			{Cylinders: 4, Ratio: 10, Throttle: 50, Fuel: 0.001},
			{Cylinders: 4, Ratio: 10, Throttle: 60, Fuel: 0.0004},
		}, p},
		{"nan_params", []dataset.DataPoint{{Cylinders: 4, Ratio: 10, Throttle: 50, Fuel: 1}},
			fuelmodel.FitParams{PowerA: math.NaN(), PowerN: 3, PowerM: 3, LinearC: 0.14, LinearM: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.p, m, tc.data); !math.IsInf(got, 1) {
				t.Errorf("Score = %v, want +Inf", got)
			}
		})
	}
}

func TestScoreSkipsNearZeroRows(t *testing.T) {
	m := fuelmodel.DefaultCylinderModel()
	p := fuelmodel.DefaultFitParams()
	pinned := dataset.DataPoint{Cylinders: 4, Ratio: 10, Throttle: 50, Fuel: 5.000}
	data := []dataset.DataPoint{
		pinned,
		{Cylinders: 4, Ratio: 10, Throttle: 60, Fuel: 0.0014}, // rounds to 0.001: ignored
	}
	if got := Score(p, m, data); math.Abs(got-99.52) > 1e-9 {
		t.Errorf("Score = %v, want 99.52", got)
	}
}

func TestRound3(t *testing.T) {
	testCases := []struct {
		in, want float64
	}{
		{0.0244297, 0.024},
		{0.0245, 0.025},
		{1.9996, 2.0},
		{0, 0},
		{5, 5},
	}
	for _, tc := range testCases {
		if got := Round3(tc.in); math.Abs(got-tc.want) > 1e-15 {
			t.Errorf("Round3(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEvaluatorMatchesScore(t *testing.T) {
	m := fuelmodel.DefaultCylinderModel()
	data := []dataset.DataPoint{
		{Cylinders: 4, Ratio: 10, Throttle: 50, Fuel: 0.03},
		{Cylinders: 8, Ratio: 14, Throttle: 100, Fuel: 0.2},
	}
	e := NewEvaluator(m, data)
	p := fuelmodel.DefaultFitParams()
	if got, want := e.Score(p), Score(p, m, data); got != want {
		t.Errorf("Evaluator.Score = %v, want %v", got, want)
	}
}
