package evolution

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// ErrPopulationTooSmall is returned for populations that cannot supply
// three donors distinct from the target slot.
var ErrPopulationTooSmall = errors.New("population too small")

const (
	// MinPopulationSize is the smallest population donor sampling can serve.
	MinPopulationSize = 4
	// BestBias is the probability that the base donor is replaced by the
	// current best individual.
	BestBias = 0.2
	// KeepFraction of the population survives a diversity injection.
	KeepFraction = 0.2
)

// Multiplier ranges applied to the seed at initialization.
var initRanges = [fuelmodel.NumFields]fuelmodel.Range{
	fuelmodel.PowerA:  {Min: 0.3, Max: 1.7},
	fuelmodel.PowerN:  {Min: 0.8, Max: 1.2},
	fuelmodel.PowerM:  {Min: 0.8, Max: 1.2},
	fuelmodel.LinearC: {Min: 0.3, Max: 1.7},
	fuelmodel.LinearM: {Min: 0.7, Max: 1.3},
}

// Multiplier ranges applied to the best individual on injection.
var injectRanges = [fuelmodel.NumFields]fuelmodel.Range{
	fuelmodel.PowerA:  {Min: 0.1, Max: 1.9},
	fuelmodel.PowerN:  {Min: 0.7, Max: 1.3},
	fuelmodel.PowerM:  {Min: 0.7, Max: 1.3},
	fuelmodel.LinearC: {Min: 0.3, Max: 1.7},
	fuelmodel.LinearM: {Min: 0.5, Max: 1.5},
}

// Objective scores a candidate. Lower is better.
type Objective func(fuelmodel.FitParams) float64

// Config holds the run-level tunables.
type Config struct {
	// Size is the number of slots, at least MinPopulationSize.
	Size int `json:"size"`
	// F is the differential weight.
	F float64 `json:"f"`
	// CR is the per-field crossover probability.
	CR float64 `json:"cr"`
}

// Validate checks Size, F and CR.
func (c Config) Validate() error {
	if c.Size < MinPopulationSize {
		return fmt.Errorf("size %d, need at least %d: %w", c.Size, MinPopulationSize, ErrPopulationTooSmall)
	}
	if math.IsNaN(c.F) || c.F < 0 || c.F > 2 {
		return fmt.Errorf("differential weight F=%v must be in [0, 2]", c.F)
	}
	if math.IsNaN(c.CR) || c.CR < 0 || c.CR > 1 {
		return fmt.Errorf("crossover rate CR=%v must be in [0, 1]", c.CR)
	}
	return nil
}

// Engine advances populations one generation at a time. It is not safe
// for concurrent use because it shares a single Source.
type Engine struct {
	cfg       Config
	objective Objective
	src       Source
}

// NewEngine validates cfg and returns an engine scoring with objective.
func NewEngine(cfg Config, objective Objective, src Source) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if objective == nil {
		return nil, errors.New("nil objective")
	}
	if src == nil {
		return nil, errors.New("nil random source")
	}
	return &Engine{cfg: cfg, objective: objective, src: src}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// score evaluates p; NaN is reported as +Inf so it never wins a comparison
// or confuses sorting.
func (e *Engine) score(p fuelmodel.FitParams) float64 {
	s := e.objective(p)
	if math.IsNaN(s) {
		return math.Inf(1)
	}
	return s
}

// Initialize builds the first generation. Slot 0 holds seed verbatim; the
// other slots are the seed scaled per field by random multipliers.
func (e *Engine) Initialize(seed fuelmodel.FitParams) Population {
	pop := make(Population, e.cfg.Size)
	pop[0] = Individual{Params: seed, Fitness: e.score(seed)}
	for i := 1; i < len(pop); i++ {
		p := scale(e.src, seed, &initRanges)
		pop[i] = Individual{Params: p, Fitness: e.score(p)}
	}
	return pop
}

// donors picks three indices, pairwise distinct and distinct from i.
func (e *Engine) donors(i, n int) (a, b, c int) {
	for a = e.src.IntN(n); a == i; a = e.src.IntN(n) {
	}
	for b = e.src.IntN(n); b == i || b == a; b = e.src.IntN(n) {
	}
	for c = e.src.IntN(n); c == i || c == a || c == b; c = e.src.IntN(n) {
	}
	return a, b, c
}

// Step runs one generation over prev and returns the next generation.
// Donors are always read from prev, which is left untouched. A slot is
// replaced only by a strictly better trial, so no slot's fitness ever
// increases.
func (e *Engine) Step(prev Population) Population {
	n := len(prev)
	next := prev.Clone()
	best := prev.Best()

	for i := range prev {
		a, b, c := e.donors(i, n)
		if e.src.Float64() < BestBias {
			a = best
		}

		trial := prev[i].Params
		for _, f := range fuelmodel.Fields {
			if e.src.Float64() < e.cfg.CR {
				v := prev[a].Params.Get(f) + e.cfg.F*(prev[b].Params.Get(f)-prev[c].Params.Get(f))
				trial.Set(f, fuelmodel.Bounds[f].Clamp(v))
			}
		}

		if fit := e.score(trial); fit < prev[i].Fitness {
			next[i] = Individual{Params: trial, Fitness: fit}
		}
	}
	return next
}

// KeepCount is the number of slots that survive an injection unchanged.
func KeepCount(n int) int {
	return max(1, int(float64(n)*KeepFraction))
}

// InjectDiversity keeps the KeepCount best slots and regenerates the rest
// around the current best. Slots keep their positions; the ranking only
// decides which are regenerated. The best individual is always retained,
// so the best fitness never changes.
func (e *Engine) InjectDiversity(pop Population) Population {
	out := pop.Clone()
	if len(out) == 0 {
		return out
	}

	order := make([]int, len(pop))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return pop[order[x]].Fitness < pop[order[y]].Fitness
	})

	best := pop[pop.Best()].Params
	for _, idx := range order[KeepCount(len(pop)):] {
		p := scale(e.src, best, &injectRanges)
		out[idx] = Individual{Params: p, Fitness: e.score(p)}
	}
	return out
}
