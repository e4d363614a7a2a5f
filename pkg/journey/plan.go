package journey

import (
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/geo"
)

// Plan is an immutable description of a multi-leg journey towards a target train
type Plan struct {
	walkToStation     time.Duration
	stationToPlatform time.Duration
	transfers         []time.Duration
	targetArrival     time.Time

	origin  *geo.Location
	station *geo.Location
}

type PlanOption func(*Plan)

// WithLocations enables distance based progress between origin and station
func WithLocations(origin, station geo.Location) PlanOption {
	return func(p *Plan) {
		p.origin = &origin
		p.station = &station
	}
}

// NewPlan builds a plan. Negative leg durations are treated as zero length legs.
func NewPlan(walkToStation, stationToPlatform time.Duration, transfers []time.Duration, targetArrival time.Time, opts ...PlanOption) *Plan {
	plan := &Plan{
		walkToStation:     nonNegative(walkToStation),
		stationToPlatform: nonNegative(stationToPlatform),
		transfers:         make([]time.Duration, 0, len(transfers)),
		targetArrival:     targetArrival,
	}

	for _, transfer := range transfers {
		plan.transfers = append(plan.transfers, nonNegative(transfer))
	}

	for _, opt := range opts {
		opt(plan)
	}

	return plan
}

func (p *Plan) WalkToStation() time.Duration     { return p.walkToStation }
func (p *Plan) StationToPlatform() time.Duration { return p.stationToPlatform }
func (p *Plan) TargetArrival() time.Time         { return p.targetArrival }

func (p *Plan) Transfers() []time.Duration {
	return append([]time.Duration(nil), p.transfers...)
}

func (p *Plan) TransferCount() int {
	return len(p.transfers)
}

// Total is always derived from the legs
func (p *Plan) Total() time.Duration {
	total := p.walkToStation + p.stationToPlatform
	for _, transfer := range p.transfers {
		total += transfer
	}
	return total
}

// AfterStation is the time needed once the station has been reached (platform walk and transfers)
func (p *Plan) AfterStation() time.Duration {
	return p.Total() - p.walkToStation
}

func (p *Plan) Origin() (geo.Location, bool) {
	if p.origin == nil {
		return geo.Location{}, false
	}
	return *p.origin, true
}

func (p *Plan) Station() (geo.Location, bool) {
	if p.station == nil {
		return geo.Location{}, false
	}
	return *p.station, true
}

// HasLocations reports whether location driven progress is possible
func (p *Plan) HasLocations() bool {
	return p.origin != nil && p.station != nil
}

// WithTargetArrival returns a deep copy of the plan aimed at a different train
func (p *Plan) WithTargetArrival(targetArrival time.Time) *Plan {
	snapshot := planSnapshot{
		WalkToStation:     p.walkToStation,
		StationToPlatform: p.stationToPlatform,
		Transfers:         p.transfers,
		Origin:            p.origin,
		Station:           p.station,
	}

	var copied planSnapshot
	if err := deepCopy(&copied, snapshot); err != nil {
		log.Warn().Err(err).Msg("Falling back to a manual plan copy")
		copied = snapshot.clone()
	}

	return &Plan{
		walkToStation:     copied.WalkToStation,
		stationToPlatform: copied.StationToPlatform,
		transfers:         copied.Transfers,
		targetArrival:     targetArrival,
		origin:            copied.Origin,
		station:           copied.Station,
	}
}

// Leg boundaries are cumulative offsets from the start of the journey
type Leg struct {
	Phase Phase
	Start time.Duration
	End   time.Duration
}

// Legs lists every leg in traversal order, including zero length ones
func (p *Plan) Legs() []Leg {
	legs := []Leg{
		{Phase: WalkToStation, Start: 0, End: p.walkToStation},
		{Phase: StationToPlatform, Start: p.walkToStation, End: p.walkToStation + p.stationToPlatform},
	}

	cursor := p.walkToStation + p.stationToPlatform
	for i, transfer := range p.transfers {
		legs = append(legs, Leg{Phase: TransferWalk(i), Start: cursor, End: cursor + transfer})
		cursor += transfer
	}

	return legs
}

type planSnapshot struct {
	WalkToStation     time.Duration
	StationToPlatform time.Duration
	Transfers         []time.Duration
	Origin            *geo.Location
	Station           *geo.Location
}

var deepCopy = func(to *planSnapshot, from planSnapshot) error {
	return copier.CopyWithOption(to, from, copier.Option{DeepCopy: true})
}

func (s planSnapshot) clone() planSnapshot {
	cloned := planSnapshot{
		WalkToStation:     s.WalkToStation,
		StationToPlatform: s.StationToPlatform,
		Transfers:         append([]time.Duration(nil), s.Transfers...),
	}
	if s.Origin != nil {
		origin := *s.Origin
		cloned.Origin = &origin
	}
	if s.Station != nil {
		station := *s.Station
		cloned.Station = &station
	}
	return cloned
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
