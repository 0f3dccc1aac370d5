package evolution

import (
	"math/rand/v2"

	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// Source is the randomness consumed by the engine. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	IntN(n int) int
}

// NewSource returns a PCG-backed source. A seed of 0 draws the seed from
// the runtime's entropy so successive runs differ.
func NewSource(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// uniform draws from [r.Min, r.Max).
func uniform(src Source, r fuelmodel.Range) float64 {
	return r.Min + src.Float64()*(r.Max-r.Min)
}

// scale multiplies every field of p by a factor drawn from the matching
// range and clamps the result to fuelmodel.Bounds.
func scale(src Source, p fuelmodel.FitParams, ranges *[fuelmodel.NumFields]fuelmodel.Range) fuelmodel.FitParams {
	out := p
	for _, f := range fuelmodel.Fields {
		out.Set(f, p.Get(f)*uniform(src, ranges[f]))
	}
	return out.Clamped()
}

// randomRanges are the absolute ranges RandomFitParams draws from.
var randomRanges = [fuelmodel.NumFields]fuelmodel.Range{
	fuelmodel.PowerA:  {Min: 0.001, Max: 0.011},
	fuelmodel.PowerN:  {Min: 2, Max: 4},
	fuelmodel.PowerM:  {Min: 2, Max: 4},
	fuelmodel.LinearC: {Min: 0.05, Max: 0.35},
	fuelmodel.LinearM: {Min: 0.5, Max: 2.5},
}

// RandomFitParams draws a fresh starting point, well inside Bounds.
func RandomFitParams(src Source) fuelmodel.FitParams {
	var p fuelmodel.FitParams
	for _, f := range fuelmodel.Fields {
		p.Set(f, uniform(src, randomRanges[f]))
	}
	return p
}
