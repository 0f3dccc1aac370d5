package evolution

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/fitness"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// syntheticData samples the model at truth over a small grid.
func syntheticData(truth fuelmodel.FitParams) []dataset.DataPoint {
	m := fuelmodel.DefaultCylinderModel()
	var out []dataset.DataPoint
	for c := 2.0; c <= 12; c += 2 {
		for _, r := range []float64{8, 10, 14} {
			for thr := 30.0; thr <= 130; thr += 20 {
				out = append(out, dataset.DataPoint{
					Cylinders: c, Ratio: r, Throttle: thr,
					Fuel: fitness.Round3(fuelmodel.Evaluate(thr, r, c, truth, m)),
				})
			}
		}
	}
	return out
}

func newTestEngine(t *testing.T, cfg Config, seed uint64) *Engine {
	t.Helper()
	truth := fuelmodel.FitParams{PowerA: 0.004, PowerN: 2.6, PowerM: 3.2, LinearC: 0.2, LinearM: 1.2}
	ev := fitness.NewEvaluator(fuelmodel.DefaultCylinderModel(), syntheticData(truth))
	e, err := NewEngine(cfg, ev.Score, NewSource(seed))
	require.NoError(t, err)
	return e
}

func requireInBounds(t *testing.T, pop Population) {
	t.Helper()
	for i, ind := range pop {
		require.NoError(t, ind.Params.Validate(), "slot %d", i)
	}
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	t.Parallel()

	obj := func(fuelmodel.FitParams) float64 { return 0 }
	testCases := []struct {
		name     string
		cfg      Config
		tooSmall bool
	}{
		{"three_slots", Config{Size: 3, F: 0.4, CR: 0.5}, true},
		{"zero_slots", Config{Size: 0, F: 0.4, CR: 0.5}, true},
		{"negative_f", Config{Size: 10, F: -0.1, CR: 0.5}, false},
		{"cr_above_one", Config{Size: 10, F: 0.4, CR: 1.5}, false},
		{"nan_cr", Config{Size: 10, F: 0.4, CR: math.NaN()}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine(tc.cfg, obj, NewSource(1))
			require.Error(t, err)
			assert.Equal(t, tc.tooSmall, errors.Is(err, ErrPopulationTooSmall))
		})
	}

	_, err := NewEngine(Config{Size: 4, F: 0.4, CR: 0.5}, obj, NewSource(1))
	assert.NoError(t, err)
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{Size: 30, F: 0.4, CR: 0.5}, 7)
	seed := fuelmodel.DefaultFitParams()
	pop := e.Initialize(seed)

	require.Len(t, pop, 30)
	assert.Equal(t, seed, pop[0].Params, "slot 0 holds the seed verbatim")
	assert.Equal(t, e.score(seed), pop[0].Fitness)
	requireInBounds(t, pop)
	for i, ind := range pop {
		assert.Equal(t, e.score(ind.Params), ind.Fitness, "slot %d", i)
	}
}

func TestStepNonRegressionAndBounds(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{Size: 20, F: 0.9, CR: 0.9}, 42)
	pop := e.Initialize(fuelmodel.DefaultFitParams())
	startBest := pop.BestIndividual().Fitness

	for gen := 0; gen < 100; gen++ {
		before := pop.Clone()
		next := e.Step(pop)

		require.Equal(t, before, pop, "step must not mutate its input")
		require.Len(t, next, len(pop))
		for i := range next {
			require.LessOrEqual(t, next[i].Fitness, pop[i].Fitness, "gen %d slot %d", gen, i)
		}
		requireInBounds(t, next)
		pop = next
	}
	assert.LessOrEqual(t, pop.BestIndividual().Fitness, startBest)
}

func TestStepWithZeroCrossoverLeavesPopulationUnchanged(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{Size: 12, F: 0.8, CR: 0}, 3)
	pop := e.Initialize(fuelmodel.DefaultFitParams())
	next := e.Step(pop)
	assert.Equal(t, pop, next)
}

func TestStepIsDeterministicForASeed(t *testing.T) {
	t.Parallel()

	run := func() Population {
		e := newTestEngine(t, Config{Size: 10, F: 0.5, CR: 0.7}, 99)
		pop := e.Initialize(fuelmodel.DefaultFitParams())
		for i := 0; i < 20; i++ {
			pop = e.Step(pop)
		}
		return e.InjectDiversity(pop)
	}
	assert.Equal(t, run(), run())
}

func TestInjectDiversityPreservesBest(t *testing.T) {
	t.Parallel()

	for _, size := range []int{4, 5, 10, 23, 100} {
		e := newTestEngine(t, Config{Size: size, F: 0.6, CR: 0.8}, uint64(size))
		pop := e.Initialize(fuelmodel.DefaultFitParams())
		for i := 0; i < 10; i++ {
			pop = e.Step(pop)
		}

		bestIdx := pop.Best()
		out := e.InjectDiversity(pop)

		require.Len(t, out, size)
		assert.Equal(t, pop[bestIdx], out[bestIdx], "size %d: best slot regenerated", size)
		assert.LessOrEqual(t, out.BestIndividual().Fitness, pop[bestIdx].Fitness)
		requireInBounds(t, out)

		// The KeepCount best slots are untouched.
		kept := 0
		for i := range out {
			if out[i] == pop[i] {
				kept++
			}
		}
		assert.GreaterOrEqual(t, kept, KeepCount(size), "size %d", size)
	}
}

func TestInjectDiversityClampsWildParameters(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{Size: 8, F: 0.4, CR: 0.5}, 5)
	edge := fuelmodel.FitParams{PowerA: 0.1, PowerN: 5, PowerM: 5, LinearC: 5, LinearM: 5}
	pop := make(Population, 8)
	for i := range pop {
		pop[i] = Individual{Params: edge, Fitness: float64(i)}
	}
	requireInBounds(t, e.InjectDiversity(pop))
}

func TestKeepCount(t *testing.T) {
	t.Parallel()

	testCases := []struct{ n, want int }{
		{4, 1}, {5, 1}, {9, 1}, {10, 2}, {15, 3}, {20, 4}, {100, 20},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, KeepCount(tc.n), "n=%d", tc.n)
	}
}

func TestDonorsAreDistinct(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{Size: 4, F: 0.4, CR: 0.5}, 11)
	for iter := 0; iter < 1000; iter++ {
		i := iter % 4
		a, b, c := e.donors(i, 4)
		seen := map[int]bool{i: true}
		for _, d := range []int{a, b, c} {
			require.False(t, seen[d], "donor %d repeated for target %d", d, i)
			seen[d] = true
		}
	}
}

func TestNaNObjectiveIsWorst(t *testing.T) {
	t.Parallel()

	obj := func(p fuelmodel.FitParams) float64 {
		if p.PowerN > 3 {
			return math.NaN()
		}
		return 1
	}
	e, err := NewEngine(Config{Size: 6, F: 0.4, CR: 0.5}, obj, NewSource(2))
	require.NoError(t, err)

	seed := fuelmodel.DefaultFitParams()
	seed.PowerN = 3.5
	pop := e.Initialize(seed)
	assert.True(t, math.IsInf(pop[0].Fitness, 1))
	for _, ind := range e.Step(pop) {
		assert.False(t, math.IsNaN(ind.Fitness))
	}
}
