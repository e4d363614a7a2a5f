package pacing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/geo"
)

type recorder struct {
	mu        sync.Mutex
	pacing    [][2]float64
	projected []time.Duration
	cues      []Direction
}

func (r *recorder) OnPacing(observed, target float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pacing = append(r.pacing, [2]float64{observed, target})
}

func (r *recorder) OnProjectedArrival(remaining time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projected = append(r.projected, remaining)
}

func (r *recorder) OnCue(direction Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, direction)
}

func (r *recorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pacing), len(r.projected), len(r.cues)
}

func (r *recorder) lastCue() Direction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cues[len(r.cues)-1]
}

var now = time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

func newController(t *testing.T) (*Controller, *recorder, *clock.MockClock) {
	t.Helper()

	rec := &recorder{}
	mockClock := clock.NewMockClock(now)
	controller := New(rec, mockClock, DefaultConfig())
	t.Cleanup(controller.Stop)

	return controller, rec, mockClock
}

func TestTooSlowActivatesHurryAndRecovers(t *testing.T) {
	controller, rec, _ := newController(t)

	evaluation := controller.Ingest(Sample{ObservedSpeed: 2.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second})

	assert.Equal(t, OutcomeAccepted, evaluation.Outcome)
	assert.InDelta(t, 4.0, evaluation.TargetSpeed, 1e-9)
	assert.InDelta(t, 0.5, evaluation.Ratio, 1e-9)
	assert.True(t, evaluation.Active)
	assert.True(t, evaluation.Changed)
	assert.Equal(t, DirectionHurry, evaluation.Direction)
	assert.Equal(t, 400*time.Millisecond, controller.Interval(evaluation.Direction))

	evaluation = controller.Ingest(Sample{ObservedSpeed: 4.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second})

	assert.Equal(t, OutcomeAccepted, evaluation.Outcome)
	assert.False(t, evaluation.Active)
	assert.True(t, evaluation.Changed)

	active, direction := controller.Active()
	assert.False(t, active)
	assert.Equal(t, DirectionNone, direction)

	pacing, projected, _ := rec.counts()
	assert.Equal(t, 2, pacing)
	assert.Equal(t, 2, projected)
	assert.Equal(t, [2]float64{2.0, 4.0}, rec.pacing[0])
	assert.Equal(t, 100*time.Second, rec.projected[0])
	assert.Equal(t, 50*time.Second, rec.projected[1])
}

func TestTooFastUsesEaseCue(t *testing.T) {
	controller, _, _ := newController(t)

	evaluation := controller.Ingest(Sample{ObservedSpeed: 3.0, DistanceRemaining: 100, TimeRemaining: 100 * time.Second})

	assert.True(t, evaluation.Active)
	assert.Equal(t, DirectionEase, evaluation.Direction)
	assert.Equal(t, 1200*time.Millisecond, controller.Interval(DirectionEase))
}

func TestWithinThresholdStaysInactive(t *testing.T) {
	controller, rec, _ := newController(t)

	// 5% too slow
	evaluation := controller.Ingest(Sample{ObservedSpeed: 1.9, DistanceRemaining: 200, TimeRemaining: 100 * time.Second})

	assert.False(t, evaluation.Active)
	assert.False(t, evaluation.Changed)

	pacing, _, cues := rec.counts()
	assert.Equal(t, 1, pacing)
	assert.Zero(t, cues)
}

func TestSmallMovementsAreDiscarded(t *testing.T) {
	controller, rec, _ := newController(t)

	first := geo.Location{Latitude: 51.5, Longitude: -0.12}
	// Roughly 5.5 meters north
	second := geo.Location{Latitude: 51.50005, Longitude: -0.12}
	// Roughly 22 meters north of the first sample
	third := geo.Location{Latitude: 51.5002, Longitude: -0.12}

	assert.Equal(t, OutcomeAccepted, controller.Ingest(Sample{Position: &first, ObservedSpeed: 2.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second}).Outcome)

	evaluation := controller.Ingest(Sample{Position: &second, ObservedSpeed: 4.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second})
	assert.Equal(t, OutcomeJitter, evaluation.Outcome)
	assert.True(t, evaluation.Active, "jitter must not toggle pacing")

	pacing, _, _ := rec.counts()
	assert.Equal(t, 1, pacing)

	assert.Equal(t, OutcomeAccepted, controller.Ingest(Sample{Position: &third, ObservedSpeed: 4.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second}).Outcome)
	pacing, _, _ = rec.counts()
	assert.Equal(t, 2, pacing)
}

func TestGuardsSkipSamples(t *testing.T) {
	controller, rec, _ := newController(t)

	assert.Equal(t, OutcomeNoTime, controller.Ingest(Sample{ObservedSpeed: 2, DistanceRemaining: 100, TimeRemaining: 0}).Outcome)
	assert.Equal(t, OutcomeNoTime, controller.Ingest(Sample{ObservedSpeed: 2, DistanceRemaining: 100, TimeRemaining: -time.Second}).Outcome)
	assert.Equal(t, OutcomeArrived, controller.Ingest(Sample{ObservedSpeed: 2, DistanceRemaining: 0, TimeRemaining: time.Minute}).Outcome)

	pacing, projected, _ := rec.counts()
	assert.Zero(t, pacing)
	assert.Zero(t, projected)
}

func TestZeroSpeedIsFloored(t *testing.T) {
	controller, rec, _ := newController(t)

	evaluation := controller.Ingest(Sample{ObservedSpeed: -3, DistanceRemaining: 100, TimeRemaining: 100 * time.Second})

	assert.Equal(t, OutcomeAccepted, evaluation.Outcome)
	assert.InDelta(t, 0.1, evaluation.Ratio, 1e-9)
	assert.Equal(t, DirectionHurry, evaluation.Direction)
	assert.Equal(t, 0.1, rec.pacing[0][0])
	assert.InDelta(t, 1000, rec.projected[0].Seconds(), 1e-6)
}

func TestCueFiresAtInterval(t *testing.T) {
	controller, rec, mockClock := newController(t)

	controller.Ingest(Sample{ObservedSpeed: 2.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second})

	for i := 1; i <= 3; i++ {
		mockClock.Advance(400 * time.Millisecond)
		expected := i
		require.Eventually(t, func() bool { _, _, cues := rec.counts(); return cues == expected }, time.Second, time.Millisecond)
	}
	assert.Equal(t, DirectionHurry, rec.lastCue())
}

func TestDirectionFlipRetunesCue(t *testing.T) {
	controller, rec, mockClock := newController(t)

	controller.Ingest(Sample{ObservedSpeed: 2.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second})
	evaluation := controller.Ingest(Sample{ObservedSpeed: 6.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second})

	assert.True(t, evaluation.Changed)
	assert.Equal(t, DirectionEase, evaluation.Direction)

	// The hurry interval has passed but the ease cue has not yet come round
	mockClock.Advance(400 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	_, _, cues := rec.counts()
	assert.Zero(t, cues)

	mockClock.Advance(800 * time.Millisecond)
	require.Eventually(t, func() bool { _, _, cues := rec.counts(); return cues == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, DirectionEase, rec.lastCue())
}

func TestStopCancelsCueAndIgnoresSamples(t *testing.T) {
	controller, rec, mockClock := newController(t)

	controller.Ingest(Sample{ObservedSpeed: 2.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second})
	controller.Stop()

	mockClock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)

	_, _, cues := rec.counts()
	assert.Zero(t, cues)
	assert.Equal(t, OutcomeStopped, controller.Ingest(Sample{ObservedSpeed: 2.0, DistanceRemaining: 200, TimeRemaining: 50 * time.Second}).Outcome)

	controller.Stop()
}

func TestIntervalBounds(t *testing.T) {
	config := DefaultConfig()
	config.HurryInterval = 10 * time.Millisecond
	config.EaseInterval = time.Minute
	controller := New(nil, clock.NewMockClock(now), config)

	assert.Equal(t, config.MinInterval, controller.Interval(DirectionHurry))
	assert.Equal(t, config.MaxInterval, controller.Interval(DirectionEase))
}
