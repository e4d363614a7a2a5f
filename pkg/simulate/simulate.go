package simulate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/journey"
	"github.com/travigo/catchtrain/pkg/pacing"
	"github.com/travigo/catchtrain/pkg/tracker"
)

// Result is the state of the journey when the simulation stopped
type Result struct {
	Final   tracker.Progress
	Updates int
	Cues    map[pacing.Direction]int
}

type Simulator struct {
	clock    clock.Clock
	scenario *Scenario
	pacing   pacing.Config
	observer tracker.Observer
}

type Option func(*Simulator)

func WithClock(c clock.Clock) Option {
	return func(s *Simulator) {
		s.clock = c
	}
}

// WithObserver receives every progress update in addition to the log output
func WithObserver(observer tracker.Observer) Option {
	return func(s *Simulator) {
		s.observer = observer
	}
}

func New(scenario *Scenario, opts ...Option) *Simulator {
	simulator := &Simulator{
		clock:    clock.RealClock{},
		scenario: scenario,
		pacing:   pacing.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(simulator)
	}

	return simulator
}

// Run tracks the scenario until the journey finishes or ctx is cancelled
func (s *Simulator) Run(ctx context.Context) (Result, error) {
	start := s.clock.Now()
	plan := s.scenario.Plan(start)
	targetArrival := plan.TargetArrival()

	recorder := &recorder{
		done: make(chan struct{}),
		cues: map[pacing.Direction]int{},
		next: s.observer,
	}

	trackerConfig := tracker.DefaultConfig()
	trackerConfig.TickInterval = s.scenario.TickInterval
	trackerConfig.Uncertainty = s.scenario.Uncertainty

	progressTracker := tracker.New(plan, recorder, s.clock, trackerConfig)
	pacer := pacing.New(recorder, s.clock, s.pacing)
	defer pacer.Stop()

	if err := progressTracker.Start(); err != nil {
		return Result{}, err
	}
	defer progressTracker.Stop()

	walk := append([]Waypoint(nil), s.scenario.Walk...)
	station, hasStation := plan.Station()

	walker := clock.Every(s.clock, s.scenario.TickInterval, func(now time.Time) bool {
		elapsed := now.Sub(start)

		for len(walk) > 0 && walk[0].After <= elapsed {
			waypoint := walk[0]
			walk = walk[1:]

			progressTracker.UpdateLocation(waypoint.Location)

			if !hasStation || progressTracker.State().Phase != journey.WalkToStation {
				continue
			}

			position := waypoint.Location
			pacer.Ingest(pacing.Sample{
				Position:          &position,
				ObservedSpeed:     waypoint.Speed,
				DistanceRemaining: position.Distance(station),
				TimeRemaining:     targetArrival.Sub(now) - plan.AfterStation(),
			})
		}

		return len(walk) > 0
	})
	defer walker.Stop()

	select {
	case <-recorder.done:
	case <-ctx.Done():
		return recorder.result(), ctx.Err()
	}

	return recorder.result(), nil
}

type recorder struct {
	next tracker.Observer

	mu       sync.Mutex
	final    tracker.Progress
	updates  int
	cues     map[pacing.Direction]int
	finished bool
	done     chan struct{}
}

func (r *recorder) OnProgress(progress tracker.Progress) {
	log.Info().
		Str("phase", progress.Phase.String()).
		Float64("fraction", progress.Fraction).
		Dur("delta", progress.Delta).
		Str("status", progress.Status.String()).
		Bool("cancatch", progress.CanCatch).
		Str("source", string(progress.Source)).
		Msg("Progress")

	r.mu.Lock()
	r.final = progress
	r.updates++
	finished := progress.Phase == journey.Finished && !r.finished
	if finished {
		r.finished = true
	}
	r.mu.Unlock()

	if r.next != nil {
		r.next.OnProgress(progress)
	}

	if finished {
		close(r.done)
	}
}

func (r *recorder) OnPacing(observedSpeed, targetSpeed float64) {
	log.Debug().Float64("observed", observedSpeed).Float64("target", targetSpeed).Msg("Pacing")
}

func (r *recorder) OnProjectedArrival(remaining time.Duration) {
	log.Debug().Dur("remaining", remaining).Msg("Projected arrival at station")
}

func (r *recorder) OnCue(direction pacing.Direction) {
	log.Info().Str("direction", direction.String()).Msg("Pacing cue")

	r.mu.Lock()
	r.cues[direction]++
	r.mu.Unlock()
}

func (r *recorder) result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	cues := make(map[pacing.Direction]int, len(r.cues))
	for direction, count := range r.cues {
		cues[direction] = count
	}

	return Result{Final: r.final, Updates: r.updates, Cues: cues}
}
