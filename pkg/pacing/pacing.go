package pacing

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/geo"
)

type Direction int

const (
	DirectionNone Direction = iota
	// DirectionHurry means the traveller is slower than required
	DirectionHurry
	// DirectionEase means the traveller is faster than required
	DirectionEase
)

func (d Direction) String() string {
	switch d {
	case DirectionHurry:
		return "hurry"
	case DirectionEase:
		return "ease"
	default:
		return "none"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Sample struct {
	Position          *geo.Location
	ObservedSpeed     float64
	DistanceRemaining float64
	TimeRemaining     time.Duration
}

// Observer receives pacing feedback. Callbacks must not call Stop or Ingest on the same controller.
type Observer interface {
	OnPacing(observedSpeed, targetSpeed float64)
	OnProjectedArrival(remaining time.Duration)
	OnCue(direction Direction)
}

type Config struct {
	MinSpeed          float64
	Threshold         float64
	MinDistanceMeters float64

	HurryInterval time.Duration
	EaseInterval  time.Duration
	MinInterval   time.Duration
	MaxInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinSpeed:          0.1,
		Threshold:         0.1,
		MinDistanceMeters: 10,

		HurryInterval: 400 * time.Millisecond,
		EaseInterval:  1200 * time.Millisecond,
		MinInterval:   250 * time.Millisecond,
		MaxInterval:   2 * time.Second,
	}
}

type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeJitter   Outcome = "jitter"
	OutcomeNoTime   Outcome = "no_time"
	OutcomeArrived  Outcome = "arrived"
	OutcomeStopped  Outcome = "stopped"
)

// Evaluation describes what the controller did with a sample
type Evaluation struct {
	Outcome     Outcome
	TargetSpeed float64
	Ratio       float64
	Active      bool
	Direction   Direction
	Changed     bool
}

// Controller compares observed speed to the speed needed to make a train and drives a repeating cue
// while the deviation stays outside the threshold band
type Controller struct {
	clock    clock.Clock
	config   Config
	observer Observer

	emitMu sync.Mutex

	mu           sync.Mutex
	lastPosition *geo.Location
	active       bool
	direction    Direction
	cue          *clock.PeriodicTask
	stopped      bool
}

func New(observer Observer, c clock.Clock, config Config) *Controller {
	if c == nil {
		c = clock.RealClock{}
	}

	return &Controller{
		clock:    c,
		config:   config,
		observer: observer,
	}
}

func (c *Controller) Ingest(sample Sample) Evaluation {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()
		return Evaluation{Outcome: OutcomeStopped}
	}

	if sample.Position != nil && c.lastPosition != nil && sample.Position.Distance(*c.lastPosition) < c.config.MinDistanceMeters {
		evaluation := Evaluation{Outcome: OutcomeJitter, Active: c.active, Direction: c.direction}
		c.mu.Unlock()
		return evaluation
	}

	observedSpeed := math.Max(sample.ObservedSpeed, c.config.MinSpeed)

	if sample.TimeRemaining <= 0 {
		evaluation := Evaluation{Outcome: OutcomeNoTime, Active: c.active, Direction: c.direction}
		c.mu.Unlock()
		return evaluation
	}
	if sample.DistanceRemaining <= 0 {
		evaluation := Evaluation{Outcome: OutcomeArrived, Active: c.active, Direction: c.direction}
		c.mu.Unlock()
		return evaluation
	}

	if sample.Position != nil {
		position := *sample.Position
		c.lastPosition = &position
	}

	targetSpeed := sample.DistanceRemaining / sample.TimeRemaining.Seconds()
	ratio := observedSpeed / targetSpeed
	deviation := math.Abs(1 - ratio)

	direction := DirectionHurry
	if ratio > 1 {
		direction = DirectionEase
	}

	changed := false
	switch {
	case deviation >= c.config.Threshold && !c.active:
		c.startCue(direction)
		changed = true
	case deviation >= c.config.Threshold && c.active && direction != c.direction:
		c.startCue(direction)
		changed = true
	case deviation < c.config.Threshold && c.active:
		c.stopCue()
		changed = true
	}

	evaluation := Evaluation{
		Outcome:     OutcomeAccepted,
		TargetSpeed: targetSpeed,
		Ratio:       ratio,
		Active:      c.active,
		Direction:   c.direction,
		Changed:     changed,
	}
	c.mu.Unlock()

	if changed {
		log.Debug().
			Bool("active", evaluation.Active).
			Str("direction", evaluation.Direction.String()).
			Float64("ratio", ratio).
			Msg("Pacing state changed")
	}

	if c.observer != nil {
		c.observer.OnPacing(observedSpeed, targetSpeed)
		c.observer.OnProjectedArrival(time.Duration(sample.DistanceRemaining / observedSpeed * float64(time.Second)))
	}

	return evaluation
}

// startCue must be called with mu held
func (c *Controller) startCue(direction Direction) {
	if c.cue != nil {
		c.cue.Stop()
	}

	c.active = true
	c.direction = direction
	c.cue = clock.Every(c.clock, c.Interval(direction), func(time.Time) bool {
		if c.observer != nil {
			c.observer.OnCue(direction)
		}
		return true
	})
}

// stopCue must be called with mu held
func (c *Controller) stopCue() {
	if c.cue != nil {
		c.cue.Stop()
		c.cue = nil
	}

	c.active = false
	c.direction = DirectionNone
}

// Interval is the cue period for a direction, bounded by the configured tick rates
func (c *Controller) Interval(direction Direction) time.Duration {
	interval := c.config.HurryInterval
	if direction == DirectionEase {
		interval = c.config.EaseInterval
	}

	if c.config.MinInterval > 0 && interval < c.config.MinInterval {
		interval = c.config.MinInterval
	}
	if c.config.MaxInterval > 0 && interval > c.config.MaxInterval {
		interval = c.config.MaxInterval
	}

	return interval
}

func (c *Controller) Active() (bool, Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.direction
}

// Stop cancels the cue. No callbacks are delivered after it returns and later samples are ignored.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.stopCue()
	c.mu.Unlock()

	c.emitMu.Lock()
	c.emitMu.Unlock()
}
