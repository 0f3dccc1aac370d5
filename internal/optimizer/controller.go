// Package optimizer drives differential-evolution runs in the background
// and publishes their progress.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/evolution"
	"github.com/banshee-data/mde-formula-finder/internal/fitness"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
	"github.com/banshee-data/mde-formula-finder/internal/monitoring"
	"github.com/banshee-data/mde-formula-finder/internal/timeutil"
)

var (
	// ErrNoData is returned by Start when no dataset is loaded.
	ErrNoData = errors.New("no data loaded")
	// ErrAlreadyRunning is returned by Start while a run is active.
	ErrAlreadyRunning = errors.New("optimization already running")
	// ErrNotRunning is returned by operations that need an active run.
	ErrNotRunning = errors.New("optimization not running")
)

var fitLogf = monitoring.Prefixed("fit")

// Request configures a run.
type Request struct {
	// Seed is the starting parameter vector. Nil uses the controller's
	// current parameters.
	Seed           *fuelmodel.FitParams `json:"seed,omitempty"`
	PopulationSize int                  `json:"population_size"`
	F              float64              `json:"f"`
	CR             float64              `json:"cr"`
	// MaxGenerations stops the run automatically; 0 runs until Stop.
	MaxGenerations int `json:"max_generations"`
	// RandomSeed makes a run reproducible; 0 seeds from entropy.
	RandomSeed uint64 `json:"random_seed,omitempty"`
	// StepInterval is a duration string paced between generations.
	// Empty runs generations back to back.
	StepInterval string `json:"step_interval,omitempty"`
}

func (r Request) engineConfig() evolution.Config {
	return evolution.Config{Size: r.PopulationSize, F: r.F, CR: r.CR}
}

// Controller owns the current run and the parameters it refines. It is
// safe for concurrent use.
type Controller struct {
	clock    timeutil.Clock
	model    fuelmodel.CylinderModelParams
	recorder Recorder
	onStatus func(Status)

	mu     sync.RWMutex
	data   []dataset.DataPoint
	params fuelmodel.FitParams
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	boost  bool
	// statusSeq numbers Idle/Running transitions so notify can drop
	// deliveries that lost a race with a newer transition.
	statusSeq uint64

	notifyMu sync.Mutex
	notified uint64
}

// NewController returns an idle controller seeded with the default
// parameters. A nil clock uses the real clock.
func NewController(model fuelmodel.CylinderModelParams, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	done := make(chan struct{})
	close(done)
	return &Controller{
		clock:    clock,
		model:    model,
		recorder: nopRecorder{},
		params:   fuelmodel.DefaultFitParams(),
		state:    State{Status: StatusIdle, BestParams: fuelmodel.DefaultFitParams()},
		done:     done,
	}
}

// SetRecorder archives subsequent runs to r. Nil disables archiving.
func (c *Controller) SetRecorder(r Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r == nil {
		r = nopRecorder{}
	}
	c.recorder = r
}

// OnStatusChange registers f to be called after each Idle/Running
// transition. It must not call back into the controller synchronously.
func (c *Controller) OnStatusChange(f func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = f
}

// Model returns the fixed cylinder constants.
func (c *Controller) Model() fuelmodel.CylinderModelParams {
	return c.model
}

// SetData replaces the dataset used by subsequent runs.
func (c *Controller) SetData(points []dataset.DataPoint) error {
	if err := dataset.Validate(points); err != nil {
		return err
	}
	cp := append([]dataset.DataPoint(nil), points...)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = cp
	return nil
}

// Data returns a copy of the loaded dataset.
func (c *Controller) Data() []dataset.DataPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]dataset.DataPoint(nil), c.data...)
}

// Params returns the current parameters: the seed for the next run, or
// the best found so far.
func (c *Controller) Params() fuelmodel.FitParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// SetParams replaces the current parameters. It fails while running.
func (c *Controller) SetParams(p fuelmodel.FitParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status == StatusRunning {
		return ErrAlreadyRunning
	}
	c.params = p
	return nil
}

// Randomize replaces the current parameters with a random starting point.
func (c *Controller) Randomize(src evolution.Source) (fuelmodel.FitParams, error) {
	if src == nil {
		src = evolution.NewSource(0)
	}
	p := evolution.RandomFitParams(src)
	if err := c.SetParams(p); err != nil {
		return fuelmodel.FitParams{}, err
	}
	return p, nil
}

// Status returns a copy of the current run state.
func (c *Controller) Status() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Done is closed when the goroutine of the most recent run has exited.
func (c *Controller) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Start validates req and begins a run in the background. ctx bounds the
// whole run.
func (c *Controller) Start(ctx context.Context, req Request) error {
	c.mu.RLock()
	data := c.data
	seed := c.params
	c.mu.RUnlock()

	if len(data) == 0 {
		c.logf(0, "ERROR: No data loaded")
		return ErrNoData
	}
	if req.Seed != nil {
		seed = *req.Seed
	}
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}
	var interval time.Duration
	if req.StepInterval != "" {
		d, err := time.ParseDuration(req.StepInterval)
		if err != nil {
			return fmt.Errorf("invalid step_interval %q: %w", req.StepInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("step_interval must not be negative, got %s", d)
		}
		interval = d
	}
	if req.MaxGenerations < 0 {
		return fmt.Errorf("max_generations must not be negative, got %d", req.MaxGenerations)
	}

	ev := fitness.NewEvaluator(c.model, data)
	engine, err := evolution.NewEngine(req.engineConfig(), ev.Score, evolution.NewSource(req.RandomSeed))
	if err != nil {
		return err
	}

	c.mu.RLock()
	running := c.state.Status == StatusRunning
	c.mu.RUnlock()
	if running {
		return ErrAlreadyRunning
	}
	snap := NewSnapshot(engine, seed)

	c.mu.Lock()
	if c.state.Status == StatusRunning {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	now := c.clock.Now()
	runID := uuid.New().String()
	reqCopy := req
	reqCopy.Seed = &seed
	c.state = State{
		RunID:          runID,
		Status:         StatusRunning,
		InitialFitness: snap.Population[0].Fitness,
		BestFitness:    snap.BestFitness(),
		BestParams:     snap.BestParams,
		StartedAt:      &now,
		Request:        &reqCopy,
	}
	c.params = snap.BestParams
	c.boost = false

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	recorder := c.recorder

	start := Event{
		Kind:    EventStart,
		Message: fmt.Sprintf("START: %d individuals, F=%.2f, CR=%.2f", req.PopulationSize, req.F, req.CR),
	}
	initial := Event{
		Kind:    EventInitial,
		Fitness: c.state.InitialFitness,
		Message: fmt.Sprintf("Initial fitness: %.3f%%", c.state.InitialFitness),
	}
	c.publishEventsLocked(now, start, initial)
	c.state.appendTrace(TracePoint{Generation: 0, Fitness: snap.BestFitness()})
	seq := c.nextStatusSeqLocked()
	c.mu.Unlock()

	c.notify(seq, StatusRunning)

	if err := recorder.RunStarted(context.Background(), RunInfo{
		ID:             runID,
		StartedAt:      now,
		Request:        reqCopy,
		Seed:           seed,
		DataRows:       len(data),
		InitialFitness: initial.Fitness,
	}); err != nil {
		fitLogf("WARNING: failed to record run start: %v", err)
	}
	for _, ev := range []Event{start, initial} {
		c.record(recorder, runID, now, ev)
	}

	go c.run(runCtx, runID, engine, snap, req.MaxGenerations, interval, done)
	return nil
}

// Stop ends the active run. The generation in flight still completes and
// is published. Stop is a no-op when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state.Status != StatusRunning {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	now := c.clock.Now()
	c.state.Status = StatusIdle
	c.state.FinishedAt = &now
	c.state.StopReason = ReasonStopped
	seq := c.nextStatusSeqLocked()
	c.mu.Unlock()

	c.notify(seq, StatusIdle)
}

// Boost requests a diversity injection after the next generation.
func (c *Controller) Boost() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status != StatusRunning {
		return ErrNotRunning
	}
	c.boost = true
	return nil
}

func (c *Controller) run(ctx context.Context, runID string, engine *evolution.Engine, snap Snapshot, maxGens int, interval time.Duration, done chan struct{}) {
	defer close(done)

	reason := ReasonCancelled
	defer func() {
		c.finish(runID, snap, reason)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		if c.state.RunID == runID && c.boost {
			snap.Boost = true
			c.boost = false
		}
		c.mu.Unlock()

		var events []Event
		snap, events = Step(engine, snap)
		if !c.publish(runID, snap, events) {
			return
		}

		if maxGens > 0 && snap.Generation >= maxGens {
			reason = ReasonMaxGenerations
			return
		}

		if interval > 0 {
			t := c.clock.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C():
			}
		}
	}
}

// publish copies snap into the visible state. It reports false when the
// run has been superseded by a newer Start.
func (c *Controller) publish(runID string, snap Snapshot, events []Event) bool {
	now := c.clock.Now()

	c.mu.Lock()
	if c.state.RunID != runID {
		c.mu.Unlock()
		return false
	}
	c.state.Generation = snap.Generation
	c.state.BestFitness = snap.BestFitness()
	c.state.BestParams = snap.BestParams
	c.state.StagnationCount = snap.Stagnation.Count
	c.params = snap.BestParams
	for _, ev := range events {
		if ev.Kind == EventImproved {
			c.state.appendTrace(TracePoint{Generation: ev.Generation, Fitness: ev.Fitness})
		}
	}
	c.publishEventsLocked(now, events...)
	recorder := c.recorder
	c.mu.Unlock()

	for _, ev := range events {
		c.record(recorder, runID, now, ev)
	}
	return true
}

func (c *Controller) finish(runID string, snap Snapshot, reason string) {
	now := c.clock.Now()

	c.mu.Lock()
	recorder := c.recorder
	if c.state.RunID != runID {
		// Superseded by a newer Start after Stop.
		c.mu.Unlock()
		c.recordFinish(recorder, runID, now, snap, ReasonStopped)
		return
	}
	wasRunning := c.state.Status == StatusRunning
	var seq uint64
	var events []Event
	if reason == ReasonMaxGenerations {
		events = append(events, Event{
			Kind:       EventMaxGens,
			Generation: snap.Generation,
			Fitness:    snap.BestFitness(),
			Message:    fmt.Sprintf("Reached %d generations", snap.Generation),
		})
	}
	if wasRunning {
		c.state.Status = StatusIdle
		c.state.FinishedAt = &now
		c.state.StopReason = reason
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		seq = c.nextStatusSeqLocked()
	} else {
		reason = c.state.StopReason
	}
	c.publishEventsLocked(now, events...)
	c.mu.Unlock()

	if wasRunning {
		c.notify(seq, StatusIdle)
	}
	for _, ev := range events {
		c.record(recorder, runID, now, ev)
	}
	c.recordFinish(recorder, runID, now, snap, reason)
}

func (c *Controller) recordFinish(recorder Recorder, runID string, now time.Time, snap Snapshot, reason string) {
	fitLogf("Run %s finished (%s) at generation %d, best %.3f%%",
		runID, reason, snap.Generation, snap.BestFitness())
	if err := recorder.RunFinished(context.Background(), runID, RunResult{
		FinishedAt:  now,
		Generation:  snap.Generation,
		BestFitness: snap.BestFitness(),
		BestParams:  snap.BestParams,
		Reason:      reason,
	}); err != nil {
		fitLogf("WARNING: failed to record run finish: %v", err)
	}
}

// publishEventsLocked appends events to the trailing log. c.mu must be
// held.
func (c *Controller) publishEventsLocked(now time.Time, events ...Event) {
	for _, ev := range events {
		c.state.appendLog(LogEntry{Time: now, Generation: ev.Generation, Message: ev.Message})
		fitLogf("%s", ev.Message)
	}
}

// logf appends a message to the trailing log outside of any run.
func (c *Controller) logf(generation int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	now := c.clock.Now()
	c.mu.Lock()
	c.state.appendLog(LogEntry{Time: now, Generation: generation, Message: msg})
	c.mu.Unlock()
	fitLogf("%s", msg)
}

func (c *Controller) record(r Recorder, runID string, at time.Time, ev Event) {
	if err := r.Milestone(context.Background(), runID, at, ev); err != nil {
		fitLogf("WARNING: failed to record %s milestone: %v", ev.Kind, err)
	}
}

// nextStatusSeqLocked numbers a transition. c.mu must be held.
func (c *Controller) nextStatusSeqLocked() uint64 {
	c.statusSeq++
	return c.statusSeq
}

// notify delivers transition seq to the status hook. Deliveries are
// serialized, and one older than the last delivered is dropped, so the
// hook always ends on the newest status.
func (c *Controller) notify(seq uint64, s Status) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.notified {
		return
	}
	c.notified = seq

	c.mu.RLock()
	f := c.onStatus
	c.mu.RUnlock()
	if f != nil {
		f(s)
	}
}
