package journey

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/travigo/catchtrain/pkg/geo"
)

func TestPlanTotal(t *testing.T) {
	arrival := time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)
	plan := NewPlan(60*time.Second, 30*time.Second, []time.Duration{45 * time.Second, 15 * time.Second}, arrival)

	assert.Equal(t, 150*time.Second, plan.Total())
	assert.Equal(t, 90*time.Second, plan.AfterStation())
	assert.Equal(t, 2, plan.TransferCount())
	assert.Equal(t, arrival, plan.TargetArrival())
}

func TestPlanClampsNegativeLegs(t *testing.T) {
	plan := NewPlan(-10*time.Second, 20*time.Second, []time.Duration{-5 * time.Second}, time.Time{})

	assert.Zero(t, plan.WalkToStation())
	assert.Equal(t, []time.Duration{0}, plan.Transfers())
	assert.Equal(t, 20*time.Second, plan.Total())
}

func TestPlanIsImmutable(t *testing.T) {
	transfers := []time.Duration{30 * time.Second}
	plan := NewPlan(time.Minute, time.Minute, transfers, time.Time{})

	transfers[0] = time.Hour
	returned := plan.Transfers()
	returned[0] = time.Hour

	assert.Equal(t, 150*time.Second, plan.Total())
}

func TestPlanLegs(t *testing.T) {
	plan := NewPlan(60*time.Second, 0, []time.Duration{20 * time.Second}, time.Time{})

	assert.Equal(t, []Leg{
		{Phase: WalkToStation, Start: 0, End: 60 * time.Second},
		{Phase: StationToPlatform, Start: 60 * time.Second, End: 60 * time.Second},
		{Phase: TransferWalk(0), Start: 60 * time.Second, End: 80 * time.Second},
	}, plan.Legs())
}

func TestWithTargetArrivalDeepCopies(t *testing.T) {
	origin := geo.Location{Latitude: 51.5, Longitude: -0.12}
	station := geo.Location{Latitude: 51.51, Longitude: -0.13}
	first := time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)
	second := first.Add(4 * time.Minute)

	base := NewPlan(time.Minute, 2*time.Minute, []time.Duration{time.Minute}, first, WithLocations(origin, station))
	candidate := base.WithTargetArrival(second)

	assert.Equal(t, second, candidate.TargetArrival())
	assert.Equal(t, first, base.TargetArrival())
	assert.Equal(t, base.Total(), candidate.Total())
	assert.Equal(t, base.Transfers(), candidate.Transfers())

	copiedStation, ok := candidate.Station()
	assert.True(t, ok)
	assert.Equal(t, station, copiedStation)
	assert.True(t, candidate.HasLocations())
}

func TestWithTargetArrivalWithoutLocations(t *testing.T) {
	base := NewPlan(time.Minute, time.Minute, nil, time.Time{})
	candidate := base.WithTargetArrival(time.Now())

	assert.False(t, candidate.HasLocations())
	assert.Equal(t, 2*time.Minute, candidate.Total())
}

func TestWithTargetArrivalFallsBackWhenCopyFails(t *testing.T) {
	original := deepCopy
	t.Cleanup(func() { deepCopy = original })
	deepCopy = func(*planSnapshot, planSnapshot) error { return errors.New("copy failed") }

	origin := geo.Location{Latitude: 51.5, Longitude: -0.12}
	station := geo.Location{Latitude: 51.51, Longitude: -0.13}
	first := time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)

	base := NewPlan(time.Minute, 2*time.Minute, []time.Duration{time.Minute, 30 * time.Second}, first, WithLocations(origin, station))
	candidate := base.WithTargetArrival(first.Add(time.Minute))

	assert.Equal(t, base.Total(), candidate.Total())
	assert.Equal(t, base.Transfers(), candidate.Transfers())
	assert.True(t, candidate.HasLocations())

	// Nothing is shared with the base plan
	candidate.transfers[0] = time.Hour
	candidate.station.Latitude = 0
	assert.Equal(t, time.Minute, base.Transfers()[0])
	baseStation, _ := base.Station()
	assert.Equal(t, station, baseStation)
}
