// Package evolution implements the differential-evolution search over
// fuel-model parameters.
//
// An Engine never mutates the population it is given. Step and
// InjectDiversity return a new Population, so the caller can publish the
// previous generation while the next one is being computed.
package evolution

import (
	"math"

	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// Individual is a candidate parameter vector and its score.
type Individual struct {
	Params  fuelmodel.FitParams `json:"params"`
	Fitness float64             `json:"fitness"`
}

// Population is a fixed-size set of candidates. Slot order is significant:
// Step replaces slots in place and only InjectDiversity rewrites them by
// rank.
type Population []Individual

// Best returns the index of the first individual with the lowest fitness,
// or -1 for an empty population.
func (p Population) Best() int {
	best := -1
	bestFit := math.Inf(1)
	for i, ind := range p {
		if best == -1 || ind.Fitness < bestFit {
			best, bestFit = i, ind.Fitness
		}
	}
	return best
}

// BestIndividual returns the individual at Best. It panics on an empty
// population.
func (p Population) BestIndividual() Individual {
	return p[p.Best()]
}

// Clone returns an independent copy.
func (p Population) Clone() Population {
	out := make(Population, len(p))
	copy(out, p)
	return out
}

// Fitnesses returns the score of every slot in order.
func (p Population) Fitnesses() []float64 {
	out := make([]float64, len(p))
	for i, ind := range p {
		out[i] = ind.Fitness
	}
	return out
}
