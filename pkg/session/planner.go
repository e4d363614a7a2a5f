// Package session plans candidate trains for a journey and runs the live
// tracking and pacing of the one a traveller is heading for.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/arrivals"
	"github.com/travigo/catchtrain/pkg/catch"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/geo"
	"github.com/travigo/catchtrain/pkg/journey"
	"github.com/travigo/catchtrain/pkg/stations"
	"github.com/travigo/catchtrain/pkg/transfertimes"
)

var ErrStationRequired = errors.New("station is required")

type StationResolver interface {
	Resolve(ctx context.Context, name string) (stations.Station, error)
}

type ArrivalSource interface {
	FetchArrivals(ctx context.Context, stopID string, lineFilter []string) []arrivals.Arrival
	FetchArrivalsAsync(ctx context.Context, stopID string, lineFilter []string, callback func([]arrivals.Arrival))
}

// Request describes the journey a traveller wants to make. StationToPlatform
// is looked up from historical transfer times when nil.
type Request struct {
	Station           string
	Lines             []string
	WalkToStation     time.Duration
	StationToPlatform *time.Duration
	Transfers         []time.Duration
	Origin            *geo.Location
}

type Candidate struct {
	Arrival arrivals.Arrival `json:"arrival" groups:"basic"`
	Info    catch.Info       `json:"catch" groups:"basic"`

	plan *journey.Plan
}

func (c Candidate) Plan() *journey.Plan {
	return c.plan
}

type Candidates struct {
	Station    stations.Station `json:"station" groups:"basic"`
	Lines      []string         `json:"lines" groups:"basic"`
	Generated  time.Time        `json:"generated" groups:"basic"`
	Base       *journey.Plan    `json:"-"`
	Candidates []Candidate      `json:"candidates" groups:"basic"`
}

type Planner struct {
	resolver    StationResolver
	arrivals    ArrivalSource
	transfers   transfertimes.Store
	clock       clock.Clock
	uncertainty time.Duration
}

func NewPlanner(resolver StationResolver, arrivalSource ArrivalSource, transfers transfertimes.Store, c clock.Clock, uncertainty time.Duration) *Planner {
	if c == nil {
		c = clock.RealClock{}
	}
	if transfers == nil {
		transfers = transfertimes.NewMemoryStore()
	}

	return &Planner{
		resolver:    resolver,
		arrivals:    arrivalSource,
		transfers:   transfers,
		clock:       c,
		uncertainty: uncertainty,
	}
}

func (p *Planner) Uncertainty() time.Duration {
	return p.uncertainty
}

// Candidates resolves the station, fetches its arrivals and derives one plan
// per train, soonest first.
func (p *Planner) Candidates(ctx context.Context, request Request) (*Candidates, error) {
	if request.Station == "" {
		return nil, ErrStationRequired
	}

	station, err := p.resolver.Resolve(ctx, request.Station)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", request.Station, err)
	}

	base := p.basePlan(ctx, request, station)

	lineArrivals := p.arrivals.FetchArrivals(ctx, station.StopID, request.Lines)
	arrivals.SortByExpected(lineArrivals)

	now := p.clock.Now()
	candidates := &Candidates{
		Station:    station,
		Lines:      request.Lines,
		Generated:  now,
		Base:       base,
		Candidates: p.evaluate(base, lineArrivals, now, 0),
	}

	log.Debug().
		Str("station", station.StopID).
		Int("candidates", len(candidates.Candidates)).
		Dur("total", base.Total()).
		Msg("Planned candidate trains")

	return candidates, nil
}

func (p *Planner) basePlan(ctx context.Context, request Request, station stations.Station) *journey.Plan {
	var stationToPlatform time.Duration
	if request.StationToPlatform != nil {
		stationToPlatform = *request.StationToPlatform
	} else {
		stationToPlatform = p.transfers.Get(ctx, station.Name)
	}

	var opts []journey.PlanOption
	if request.Origin != nil && !station.Location.IsZero() {
		opts = append(opts, journey.WithLocations(*request.Origin, station.Location))
	}

	return journey.NewPlan(request.WalkToStation, stationToPlatform, request.Transfers, time.Time{}, opts...)
}

func (p *Planner) evaluate(base *journey.Plan, lineArrivals []arrivals.Arrival, now time.Time, elapsed time.Duration) []Candidate {
	candidates := make([]Candidate, 0, len(lineArrivals))

	for _, arrival := range lineArrivals {
		plan := base.WithTargetArrival(arrival.ExpectedArrival)

		candidates = append(candidates, Candidate{
			Arrival: arrival,
			Info:    catch.Evaluate(arrival.Train(), plan, now, elapsed, p.uncertainty),
			plan:    plan,
		})
	}

	return candidates
}

// Best is the earliest candidate that can still be caught.
func (c *Candidates) Best() (Candidate, bool) {
	for _, candidate := range c.Candidates {
		if candidate.Info.Status.Catchable() {
			return candidate, true
		}
	}

	return Candidate{}, false
}

// Find returns the candidate for an arrival prediction id.
func (c *Candidates) Find(arrivalID string) (Candidate, bool) {
	for _, candidate := range c.Candidates {
		if candidate.Arrival.ID == arrivalID {
			return candidate, true
		}
	}

	return Candidate{}, false
}
