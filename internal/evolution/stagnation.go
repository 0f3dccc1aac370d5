package evolution

import "math"

// StagnationWindow is the number of non-improving generations between
// diversity injections.
const StagnationWindow = 500

// Stagnation counts consecutive generations without a new global best.
type Stagnation struct {
	Best  float64
	Count int
}

// NewStagnation starts tracking from the given best fitness.
func NewStagnation(best float64) Stagnation {
	if math.IsNaN(best) {
		best = math.Inf(1)
	}
	return Stagnation{Best: best}
}

// Observe records the best fitness of a finished generation. improved is
// set when it beats the recorded best, which also resets the counter.
// inject is set on every StagnationWindow-th consecutive stagnant
// generation. Injection itself does not reset the counter.
func (s *Stagnation) Observe(best float64) (improved, inject bool) {
	if best < s.Best {
		s.Best = best
		s.Count = 0
		return true, false
	}
	s.Count++
	return false, s.Count%StagnationWindow == 0
}
