package optimizer

import (
	"fmt"

	"github.com/banshee-data/mde-formula-finder/internal/evolution"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// EventKind classifies a milestone.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventInitial  EventKind = "initial"
	EventImproved EventKind = "improved"
	EventStagnant EventKind = "stagnant"
	EventBoost    EventKind = "boost"
	EventMaxGens  EventKind = "max_generations"
)

// Event is a milestone produced while a run advances.
type Event struct {
	Kind       EventKind
	Generation int
	Fitness    float64
	Message    string
}

// Snapshot is the complete evolving state of a run between generations.
// Step never modifies the snapshot it is given.
type Snapshot struct {
	Generation int
	Population evolution.Population
	Stagnation evolution.Stagnation
	BestParams fuelmodel.FitParams
	// Boost requests a diversity injection after the next generation
	// regardless of the stagnation counter.
	Boost bool
}

// BestFitness is the best score seen so far in the run.
func (s Snapshot) BestFitness() float64 {
	return s.Stagnation.Best
}

// NewSnapshot scores the first generation for seed.
func NewSnapshot(e *evolution.Engine, seed fuelmodel.FitParams) Snapshot {
	pop := e.Initialize(seed)
	best := pop.BestIndividual()
	return Snapshot{
		Population: pop,
		Stagnation: evolution.NewStagnation(best.Fitness),
		BestParams: best.Params,
	}
}

// Step advances s by one generation. A new best resets the stagnation
// counter; every evolution.StagnationWindow stagnant generations, or when
// a boost was requested, the population is re-diversified around the
// best. Neither kind of injection resets the counter, and a boost that
// coincides with an automatic injection is satisfied by it. Improvements
// are reported against the generation number before the increment.
func Step(e *evolution.Engine, s Snapshot) (Snapshot, []Event) {
	next := s
	next.Population = e.Step(s.Population)
	next.Boost = false

	var events []Event
	best := next.Population.BestIndividual()
	improved, inject := next.Stagnation.Observe(best.Fitness)
	if improved {
		next.BestParams = best.Params
		events = append(events, Event{
			Kind:       EventImproved,
			Generation: s.Generation,
			Fitness:    best.Fitness,
			Message:    fmt.Sprintf("Gen %d: %.3f%%", s.Generation, best.Fitness),
		})
	}

	switch {
	case inject:
		events = append(events, Event{
			Kind:       EventStagnant,
			Generation: s.Generation,
			Fitness:    next.Stagnation.Best,
			Message:    fmt.Sprintf("Stuck for %d gens, injecting diversity...", next.Stagnation.Count),
		})
		next.Population = e.InjectDiversity(next.Population)
	case s.Boost:
		events = append(events, Event{
			Kind:       EventBoost,
			Generation: s.Generation,
			Fitness:    next.Stagnation.Best,
			Message:    "Diversity injected manually",
		})
		next.Population = e.InjectDiversity(next.Population)
	}

	next.Generation = s.Generation + 1
	return next, events
}
