package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/arrivals"
	"github.com/travigo/catchtrain/pkg/catch"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/geo"
	"github.com/travigo/catchtrain/pkg/journey"
	"github.com/travigo/catchtrain/pkg/metrics"
	"github.com/travigo/catchtrain/pkg/pacing"
	"github.com/travigo/catchtrain/pkg/stations"
	"github.com/travigo/catchtrain/pkg/tracker"
	"github.com/travigo/catchtrain/pkg/transfertimes"
	"github.com/travigo/catchtrain/pkg/util"
)

var (
	ErrSessionEnded     = errors.New("session has ended")
	ErrNotAtStation     = errors.New("station has not been reached")
	ErrPlatformRecorded = errors.New("platform arrival already recorded")
)

const (
	OutcomeStale             pacing.Outcome = "stale"
	OutcomeNoStationLocation pacing.Outcome = "no_station_location"
)

// LocationSample is a position and speed report for a session, as received
// over HTTP or from the location queue.
type LocationSample struct {
	Session   string  `json:"session"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Timestamp string  `json:"timestamp,omitempty"`
}

func (l LocationSample) Location() geo.Location {
	return geo.Location{Latitude: l.Latitude, Longitude: l.Longitude}
}

type PacingState struct {
	ObservedSpeed    float64          `json:"observedspeed" groups:"basic"`
	TargetSpeed      float64          `json:"targetspeed" groups:"basic"`
	ProjectedArrival time.Duration    `json:"projectedarrival" groups:"basic"`
	Active           bool             `json:"active" groups:"basic"`
	Direction        pacing.Direction `json:"direction" groups:"basic"`
	Cues             int              `json:"cues" groups:"detailed"`
	LastCue          time.Time        `json:"lastcue" groups:"detailed"`
}

type Snapshot struct {
	ID           string           `json:"id" groups:"basic"`
	CreatedAt    time.Time        `json:"createdat" groups:"basic"`
	Station      stations.Station `json:"station" groups:"basic"`
	Train        catch.Info       `json:"train" groups:"basic"`
	Plan         *journey.Plan    `json:"-"`
	Tracker      tracker.State    `json:"tracker" groups:"basic"`
	Progress     tracker.Progress `json:"progress" groups:"basic"`
	Pacing       PacingState      `json:"pacing" groups:"basic"`
	Alternatives []Candidate      `json:"alternatives" groups:"detailed"`
	Ended        bool             `json:"ended" groups:"basic"`
}

type Session struct {
	id        string
	createdAt time.Time
	station   stations.Station
	lines     []string
	base      *journey.Plan
	plan      *journey.Plan
	arrivalID string
	vehicleID string

	planner   *Planner
	clock     clock.Clock
	metrics   *metrics.Collector
	transfers transfertimes.Store

	tracker   *tracker.Tracker
	pacer     *pacing.Controller
	proximity float64

	// applyMu keeps arrival refreshes and tracker retargets in the same order
	applyMu sync.Mutex

	mu               sync.Mutex
	refresher        *clock.PeriodicTask
	train            catch.Info
	progress         tracker.Progress
	pacing           PacingState
	alternatives     []Candidate
	generation       uint64
	stationReachedAt time.Time
	platformReached  bool
	lastSampleTime   time.Time
	atStation        bool
	finished         bool
	finishedAt       time.Time
	ended            bool
}

func newSession(id string, candidates *Candidates, selected Candidate, planner *Planner, config Config, collector *metrics.Collector) *Session {
	s := &Session{
		id:           id,
		createdAt:    planner.clock.Now(),
		station:      candidates.Station,
		lines:        candidates.Lines,
		base:         candidates.Base,
		plan:         selected.plan,
		arrivalID:    selected.Arrival.ID,
		vehicleID:    selected.Arrival.VehicleID,
		planner:      planner,
		clock:        planner.clock,
		metrics:      collector,
		transfers:    planner.transfers,
		train:        selected.Info,
		alternatives: candidates.Candidates,
	}

	trackerConfig := config.Tracker
	trackerConfig.Uncertainty = planner.uncertainty

	s.proximity = trackerConfig.ProximityMeters
	s.tracker = tracker.New(s.plan, progressObserver{s}, s.clock, trackerConfig)
	s.pacer = pacing.New(pacingObserver{s}, s.clock, config.Pacing)

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) start(refreshInterval time.Duration) error {
	if err := s.tracker.Start(); err != nil {
		return err
	}

	if refreshInterval > 0 {
		refresher := clock.Every(s.clock, refreshInterval, func(time.Time) bool {
			if s.done() {
				return false
			}
			s.Refresh(context.Background())
			return true
		})

		s.mu.Lock()
		s.refresher = refresher
		done := s.finished || s.ended
		s.mu.Unlock()

		// The journey finished before the refresher was recorded
		if done {
			refresher.Stop()
		}
	}

	return nil
}

func (s *Session) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished || s.ended
}

// FinishedAt is when the tracker completed the journey
func (s *Session) FinishedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt, s.finished
}

// Refresh refetches arrivals in the background. Results of a refresh that
// has been superseded by a later one are discarded. Finished sessions are
// not refreshed.
func (s *Session) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.ended || s.finished {
		s.mu.Unlock()
		return
	}
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	s.planner.arrivals.FetchArrivalsAsync(ctx, s.station.StopID, s.lines, func(lineArrivals []arrivals.Arrival) {
		s.applyRefresh(generation, lineArrivals)
	})
}

func (s *Session) applyRefresh(generation uint64, lineArrivals []arrivals.Arrival) bool {
	arrivals.SortByExpected(lineArrivals)

	elapsed := s.tracker.State().Elapsed
	alternatives := s.planner.evaluate(s.base, lineArrivals, s.clock.Now(), elapsed)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if generation != s.generation || s.ended {
		s.mu.Unlock()
		log.Debug().Str("session", s.id).Uint64("generation", generation).Msg("Ignoring superseded arrivals refresh")
		return false
	}

	s.alternatives = alternatives

	retarget := false
	for _, candidate := range alternatives {
		if s.isSelected(candidate.Arrival) {
			retarget = !candidate.Info.ExpectedArrival.Equal(s.train.ExpectedArrival)
			s.train = candidate.Info
			if retarget {
				s.plan = s.plan.WithTargetArrival(candidate.Info.ExpectedArrival)
			}
			break
		}
	}
	target := s.train.ExpectedArrival
	s.mu.Unlock()

	if retarget {
		log.Debug().Str("session", s.id).Time("expected", target).Msg("Selected train moved")
		s.tracker.Retarget(target)
	}

	return true
}

// isSelected must be called with mu held
func (s *Session) isSelected(arrival arrivals.Arrival) bool {
	if s.arrivalID != "" && arrival.ID == s.arrivalID {
		return true
	}

	return s.vehicleID != "" && arrival.VehicleID == s.vehicleID && arrival.LineID == s.train.LineID
}

// UpdateLocation feeds a sample to the tracker and, while walking to the
// station, to the pacing controller.
func (s *Session) UpdateLocation(sample LocationSample) (pacing.Evaluation, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return pacing.Evaluation{Outcome: pacing.OutcomeStopped}, ErrSessionEnded
	}

	if sample.Timestamp != "" {
		if timestamp, err := util.ParseTimestamp(sample.Timestamp); err == nil {
			if timestamp.Before(s.lastSampleTime) {
				s.mu.Unlock()
				s.metrics.LocationSample(string(OutcomeStale))
				return pacing.Evaluation{Outcome: OutcomeStale}, nil
			}
			s.lastSampleTime = timestamp
		}
	}

	train := s.train
	afterStation := s.plan.AfterStation()
	s.mu.Unlock()

	position := sample.Location()
	s.tracker.UpdateLocation(position)

	if s.station.Location.IsZero() {
		s.metrics.LocationSample(string(OutcomeNoStationLocation))
		return pacing.Evaluation{Outcome: OutcomeNoStationLocation}, nil
	}

	// Pacing follows where the traveller is, not where the timetable says they should be
	distance := position.Distance(s.station.Location)

	s.mu.Lock()
	if distance <= s.proximity {
		s.atStation = true
		if s.stationReachedAt.IsZero() {
			s.stationReachedAt = s.clock.Now()
		}
	}
	atStation := s.atStation
	s.mu.Unlock()

	if atStation {
		s.stopPacing()
		s.metrics.LocationSample(string(pacing.OutcomeArrived))
		return pacing.Evaluation{Outcome: pacing.OutcomeArrived}, nil
	}

	evaluation := s.pacer.Ingest(pacing.Sample{
		Position:          &position,
		ObservedSpeed:     sample.Speed,
		DistanceRemaining: distance,
		TimeRemaining:     train.ExpectedArrival.Sub(s.clock.Now()) - afterStation,
	})

	s.metrics.LocationSample(string(evaluation.Outcome))
	if evaluation.Changed {
		s.metrics.PacingChanged(evaluation.Direction.String())
	}

	if evaluation.Outcome == pacing.OutcomeAccepted {
		s.mu.Lock()
		s.pacing.Active = evaluation.Active
		s.pacing.Direction = evaluation.Direction
		s.mu.Unlock()
	}

	return evaluation, nil
}

// ReachedPlatform records how long the traveller took from the station to
// the platform.
func (s *Session) ReachedPlatform() (time.Duration, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return 0, ErrSessionEnded
	}
	if s.platformReached {
		s.mu.Unlock()
		return 0, ErrPlatformRecorded
	}
	if s.stationReachedAt.IsZero() {
		s.mu.Unlock()
		return 0, ErrNotAtStation
	}

	duration := s.clock.Now().Sub(s.stationReachedAt)
	s.platformReached = true
	s.mu.Unlock()

	s.transfers.Record(s.station.Name, duration)

	log.Info().Str("session", s.id).Str("station", s.station.Name).Dur("duration", duration).Msg("Recorded platform walk")

	return duration, nil
}

func (s *Session) Snapshot() Snapshot {
	state := s.tracker.State()

	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		Station:      s.station,
		Train:        s.train,
		Plan:         s.plan,
		Tracker:      state,
		Progress:     s.progress,
		Pacing:       s.pacing,
		Alternatives: append([]Candidate(nil), s.alternatives...),
		Ended:        s.ended,
	}
}

// End stops tracking, pacing and refreshing. It is safe to call more than once.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.generation++
	refresher := s.refresher
	s.mu.Unlock()

	if refresher != nil {
		refresher.Stop()
	}
	s.tracker.Stop()
	s.pacer.Stop()

	s.mu.Lock()
	s.pacing.Active = false
	s.pacing.Direction = pacing.DirectionNone
	s.mu.Unlock()
}

func (s *Session) Summary() Summary {
	snapshot := s.Snapshot()

	return Summary{
		ID:               snapshot.ID,
		StopID:           snapshot.Station.StopID,
		StationName:      snapshot.Station.Name,
		LineID:           snapshot.Train.LineID,
		Destination:      snapshot.Train.Destination,
		ExpectedArrival:  snapshot.Train.ExpectedArrival,
		FinalStatus:      snapshot.Progress.Status.String(),
		FinalPhase:       snapshot.Tracker.Phase.String(),
		Fraction:         snapshot.Tracker.Fraction,
		CreationDateTime: snapshot.CreatedAt,
		FinishedDateTime: s.clock.Now(),
	}
}

func (s *Session) stopRefresh() {
	s.mu.Lock()
	refresher := s.refresher
	s.mu.Unlock()

	if refresher != nil {
		refresher.Stop()
	}
}

func (s *Session) stopPacing() {
	s.pacer.Stop()

	s.mu.Lock()
	s.pacing.Active = false
	s.pacing.Direction = pacing.DirectionNone
	s.mu.Unlock()
}

type progressObserver struct {
	s *Session
}

func (o progressObserver) OnProgress(progress tracker.Progress) {
	s := o.s

	s.mu.Lock()
	if s.stationReachedAt.IsZero() && !progress.Phase.Less(journey.StationToPlatform) {
		s.stationReachedAt = progress.Time
	}
	s.progress = progress

	finished := progress.Phase == journey.Finished && !s.finished
	if finished {
		s.finished = true
		s.finishedAt = progress.Time
	}
	s.mu.Unlock()

	if finished {
		s.metrics.TrackerFinished(progress.Status.String())
		log.Info().Str("session", s.id).Str("status", progress.Status.String()).Msg("Session journey finished")

		// Stop waits on in-flight callbacks so it can not run on the tracker's goroutine
		go func() {
			s.stopPacing()
			s.stopRefresh()
		}()
	}
}

type pacingObserver struct {
	s *Session
}

func (o pacingObserver) OnPacing(observedSpeed, targetSpeed float64) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	o.s.pacing.ObservedSpeed = observedSpeed
	o.s.pacing.TargetSpeed = targetSpeed
}

func (o pacingObserver) OnProjectedArrival(remaining time.Duration) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	o.s.pacing.ProjectedArrival = remaining
}

func (o pacingObserver) OnCue(direction pacing.Direction) {
	o.s.mu.Lock()
	o.s.pacing.Cues++
	o.s.pacing.LastCue = o.s.clock.Now()
	o.s.mu.Unlock()

	log.Debug().Str("session", o.s.id).Str("direction", direction.String()).Msg("Pacing cue")
}
