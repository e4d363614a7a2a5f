package tracker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/catch"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/geo"
	"github.com/travigo/catchtrain/pkg/journey"
)

var ErrAlreadyStarted = errors.New("tracker has already been started")

type Source string

const (
	SourceTick     Source = "tick"
	SourceLocation Source = "location"
	SourceRefresh  Source = "refresh"
)

// Progress is emitted on every tick and every accepted location sample
type Progress struct {
	Fraction    float64       `json:"fraction" groups:"basic"`
	CanCatch    bool          `json:"cancatch" groups:"basic"`
	Delta       time.Duration `json:"delta" groups:"basic"`
	Uncertainty time.Duration `json:"uncertainty" groups:"basic"`
	Phase       journey.Phase `json:"phase" groups:"basic"`
	Status      catch.Status  `json:"status" groups:"basic"`
	Elapsed     time.Duration `json:"elapsed" groups:"basic"`
	Source      Source        `json:"source" groups:"basic"`
	Time        time.Time     `json:"time" groups:"basic"`
}

// Observer receives progress updates in the order they were produced.
// Callbacks run on the tracker's goroutines and must not call Stop on the same tracker.
type Observer interface {
	OnProgress(Progress)
}

type ObserverFunc func(Progress)

func (f ObserverFunc) OnProgress(p Progress) { f(p) }

type Config struct {
	TickInterval    time.Duration
	Uncertainty     time.Duration
	ProximityMeters float64
}

func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Second / 60,
		Uncertainty:     30 * time.Second,
		ProximityMeters: 30,
	}
}

// Tracker follows a single Plan through its phases. It is started once and never restarted;
// tracking a different plan needs a new Tracker.
type Tracker struct {
	plan     *journey.Plan
	clock    clock.Clock
	config   Config
	observer Observer

	emitMu sync.Mutex

	mu        sync.Mutex
	started   bool
	running   bool
	startTime time.Time
	phase     journey.Phase
	fraction  float64
	missed    bool
	task      *clock.PeriodicTask
}

func New(plan *journey.Plan, observer Observer, c clock.Clock, config Config) *Tracker {
	if c == nil {
		c = clock.RealClock{}
	}
	if observer == nil {
		observer = ObserverFunc(func(Progress) {})
	}

	return &Tracker{
		plan:     plan,
		clock:    c,
		config:   config,
		observer: observer,
		phase:    journey.WalkToStation,
	}
}

func (t *Tracker) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.running = true
	t.startTime = t.clock.Now()
	plan := t.plan
	t.mu.Unlock()

	log.Debug().
		Dur("total", plan.Total()).
		Int("transfers", plan.TransferCount()).
		Time("target", plan.TargetArrival()).
		Msg("Starting progress tracker")

	task := clock.Every(t.clock, t.config.TickInterval, t.tick)

	t.mu.Lock()
	t.task = task
	stopped := !t.running
	t.mu.Unlock()

	// Stop or the first tick got in before the task was recorded
	if stopped {
		task.Stop()
	}

	return nil
}

// Stop freezes the tracker. No progress is delivered after it returns and it can not be started again.
// Calling it again is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.started = true
	t.running = false
	task := t.task
	t.mu.Unlock()

	if task != nil {
		task.Stop()
	}

	// Wait for any location update that is mid-delivery
	t.emitMu.Lock()
	t.emitMu.Unlock()
}

func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Tracker) Plan() *journey.Plan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.plan
}

// Retarget aims the plan at a new train arrival time and reports progress against it straight away.
// A train that has already been missed stays missed.
func (t *Tracker) Retarget(targetArrival time.Time) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.plan.TargetArrival().Equal(targetArrival) {
		t.mu.Unlock()
		return
	}

	t.plan = t.plan.WithTargetArrival(targetArrival)

	if !t.running || t.startTime.IsZero() {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	progress := t.evaluate(now, nonNegative(now.Sub(t.startTime)), SourceRefresh)
	t.mu.Unlock()

	log.Debug().Time("target", targetArrival).Str("status", progress.Status.String()).Msg("Progress tracker retargeted")

	t.observer.OnProgress(progress)
}

type State struct {
	StartTime time.Time     `json:"starttime" groups:"basic"`
	Elapsed   time.Duration `json:"elapsed" groups:"basic"`
	Phase     journey.Phase `json:"phase" groups:"basic"`
	Fraction  float64       `json:"fraction" groups:"basic"`
	Running   bool          `json:"running" groups:"basic"`
	Missed    bool          `json:"missed" groups:"basic"`
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := State{
		StartTime: t.startTime,
		Phase:     t.phase,
		Fraction:  t.fraction,
		Running:   t.running,
		Missed:    t.missed,
	}
	if t.started {
		state.Elapsed = nonNegative(t.clock.Now().Sub(t.startTime))
	}

	return state
}

func (t *Tracker) tick(now time.Time) bool {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return false
	}

	elapsed := nonNegative(now.Sub(t.startTime))
	phase, fraction := phaseAt(t.plan, elapsed)

	// Location updates may already have moved us further along
	if phase.Less(t.phase) {
		phase = t.phase
		fraction = fractionWithin(t.plan, phase, elapsed)
	}

	t.phase = phase
	t.fraction = fraction

	progress := t.evaluate(now, elapsed, SourceTick)

	finished := phase == journey.Finished
	if finished {
		t.running = false
	}
	t.mu.Unlock()

	t.observer.OnProgress(progress)

	if finished {
		log.Debug().Dur("elapsed", elapsed).Str("status", progress.Status.String()).Msg("Progress tracker finished")
	}

	return !finished
}

// UpdateLocation feeds a position sample. Only the walk to the station is driven by location.
func (t *Tracker) UpdateLocation(position geo.Location) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if !t.running || !t.plan.HasLocations() {
		t.mu.Unlock()
		return
	}

	origin, _ := t.plan.Origin()
	station, _ := t.plan.Station()

	distanceToStation := position.Distance(station)
	totalDistance := origin.Distance(station)

	fraction := 1.0
	if totalDistance > 0 {
		fraction = clamp(1-distanceToStation/totalDistance, 0, 1)
	}

	if distanceToStation <= t.config.ProximityMeters {
		t.phase = t.phase.Max(journey.StationToPlatform)
	}

	if t.phase == journey.WalkToStation {
		t.fraction = fraction
	}

	now := t.clock.Now()
	progress := t.evaluate(now, nonNegative(now.Sub(t.startTime)), SourceLocation)
	t.mu.Unlock()

	t.observer.OnProgress(progress)
}

// evaluate must be called with mu held
func (t *Tracker) evaluate(now time.Time, elapsed time.Duration, source Source) Progress {
	delta := catch.Margin(t.plan.TargetArrival(), now, t.plan.Total(), elapsed)

	status := catch.Classify(delta, t.config.Uncertainty)
	if t.missed {
		status = catch.StatusMissed
	} else if status == catch.StatusMissed {
		t.missed = true
	}

	return Progress{
		Fraction:    t.fraction,
		CanCatch:    status.Catchable(),
		Delta:       delta,
		Uncertainty: t.config.Uncertainty,
		Phase:       t.phase,
		Status:      status,
		Elapsed:     elapsed,
		Source:      source,
		Time:        now,
	}
}

// phaseAt walks the leg boundaries. Zero length legs never match so they complete instantly.
func phaseAt(plan *journey.Plan, elapsed time.Duration) (journey.Phase, float64) {
	if elapsed >= plan.Total() {
		return journey.Finished, 1
	}

	for _, leg := range plan.Legs() {
		if elapsed < leg.End {
			return leg.Phase, float64(elapsed-leg.Start) / float64(leg.End-leg.Start)
		}
	}

	return journey.Finished, 1
}

func fractionWithin(plan *journey.Plan, phase journey.Phase, elapsed time.Duration) float64 {
	if phase == journey.Finished {
		return 1
	}

	for _, leg := range plan.Legs() {
		if leg.Phase != phase {
			continue
		}
		if leg.End <= leg.Start {
			return 1
		}
		return clamp(float64(elapsed-leg.Start)/float64(leg.End-leg.Start), 0, 1)
	}

	return 0
}

func clamp(value, lower, upper float64) float64 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
