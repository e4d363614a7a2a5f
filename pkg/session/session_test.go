package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/catchtrain/pkg/arrivals"
	"github.com/travigo/catchtrain/pkg/catch"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/geo"
	"github.com/travigo/catchtrain/pkg/journey"
	"github.com/travigo/catchtrain/pkg/pacing"
	"github.com/travigo/catchtrain/pkg/stations"
	"github.com/travigo/catchtrain/pkg/tracker"
	"github.com/travigo/catchtrain/pkg/transfertimes"
)

var (
	t0            = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stationLoc    = geo.Location{Latitude: 51.5, Longitude: -0.14}
	originLoc     = geo.Location{Latitude: 51.509, Longitude: -0.14}
	oxfordCircus  = stations.Station{StopID: "940GZZLUOXC", Name: "Oxford Circus Underground Station", Location: stationLoc}
	thirtySeconds = 30 * time.Second
)

type fakeResolver struct {
	station stations.Station
	err     error
}

func (f fakeResolver) Resolve(ctx context.Context, name string) (stations.Station, error) {
	return f.station, f.err
}

type fakeArrivals struct {
	mu      sync.Mutex
	list    []arrivals.Arrival
	capture bool
	pending []func([]arrivals.Arrival)
	fetches int
}

func (f *fakeArrivals) FetchArrivals(ctx context.Context, stopID string, lineFilter []string) []arrivals.Arrival {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]arrivals.Arrival(nil), f.list...)
}

func (f *fakeArrivals) FetchArrivalsAsync(ctx context.Context, stopID string, lineFilter []string, callback func([]arrivals.Arrival)) {
	f.mu.Lock()
	f.fetches++
	if f.capture {
		f.pending = append(f.pending, callback)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	go callback(f.FetchArrivals(ctx, stopID, lineFilter))
}

func (f *fakeArrivals) callbacks() []func([]arrivals.Arrival) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append(([]func([]arrivals.Arrival))(nil), f.pending...)
}

func (f *fakeArrivals) setList(list ...arrivals.Arrival) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.list = list
}

func (f *fakeArrivals) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fetches
}

type fakeHistory struct {
	mu        sync.Mutex
	summaries []Summary
}

func (f *fakeHistory) Record(summary Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.summaries = append(f.summaries, summary)
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.summaries)
}

func arrival(id string, vehicle string, in time.Duration) arrivals.Arrival {
	return arrivals.Arrival{
		ID:              id,
		StopID:          "940GZZLUOXC",
		LineID:          "victoria",
		LineName:        "Victoria",
		Destination:     "Brixton",
		Platform:        "2 - Southbound",
		VehicleID:       vehicle,
		TimeToStation:   int(in.Seconds()),
		ExpectedArrival: t0.Add(in),
	}
}

func testConfig() Config {
	config := DefaultConfig()
	config.RefreshInterval = 0
	config.FinishedRetention = 0
	config.Tracker.TickInterval = time.Second
	return config
}

func newTestPlanner(c clock.Clock, source *fakeArrivals, store transfertimes.Store, uncertainty time.Duration) *Planner {
	return NewPlanner(fakeResolver{station: oxfordCircus}, source, store, c, uncertainty)
}

func TestPlannerCandidates(t *testing.T) {
	source := &fakeArrivals{list: []arrivals.Arrival{
		arrival("c", "3", 300*time.Second),
		arrival("a", "1", 50*time.Second),
		arrival("b", "2", 100*time.Second),
	}}
	planner := newTestPlanner(clock.NewMockClock(t0), source, nil, 20*time.Second)

	candidates, err := planner.Candidates(context.Background(), Request{
		Station:           "oxford circus",
		WalkToStation:     60 * time.Second,
		StationToPlatform: &thirtySeconds,
	})
	require.NoError(t, err)
	require.Len(t, candidates.Candidates, 3)

	assert.Equal(t, oxfordCircus, candidates.Station)
	assert.Equal(t, 90*time.Second, candidates.Base.Total())

	first := candidates.Candidates[0]
	assert.Equal(t, "a", first.Arrival.ID)
	assert.Equal(t, -40*time.Second, first.Info.TimeLeft)
	assert.Equal(t, catch.StatusMissed, first.Info.Status)
	assert.True(t, first.Plan().TargetArrival().Equal(t0.Add(50*time.Second)))

	second := candidates.Candidates[1]
	assert.Equal(t, 10*time.Second, second.Info.TimeLeft)
	assert.Equal(t, catch.StatusTight, second.Info.Status)

	third := candidates.Candidates[2]
	assert.Equal(t, 210*time.Second, third.Info.TimeLeft)
	assert.Equal(t, catch.StatusSafe, third.Info.Status)

	best, ok := candidates.Best()
	require.True(t, ok)
	assert.Equal(t, "b", best.Arrival.ID)

	_, ok = candidates.Find("missing")
	assert.False(t, ok)
}

func TestPlannerUsesHistoricalPlatformTime(t *testing.T) {
	store := transfertimes.NewMemoryStore()
	planner := newTestPlanner(clock.NewMockClock(t0), &fakeArrivals{}, store, 30*time.Second)

	candidates, err := planner.Candidates(context.Background(), Request{Station: "oxford circus", WalkToStation: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, transfertimes.DefaultPlatformTime, candidates.Base.StationToPlatform())

	store.Record("Oxford Circus", 80*time.Second)
	candidates, err = planner.Candidates(context.Background(), Request{Station: "oxford circus", WalkToStation: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 80*time.Second, candidates.Base.StationToPlatform())
	assert.Empty(t, candidates.Candidates)
}

func TestPlannerReportsUnresolvedStation(t *testing.T) {
	planner := NewPlanner(fakeResolver{err: stations.ErrNotFound}, &fakeArrivals{}, nil, clock.NewMockClock(t0), time.Second)

	_, err := planner.Candidates(context.Background(), Request{Station: "atlantis"})
	assert.ErrorIs(t, err, stations.ErrNotFound)

	_, err = planner.Candidates(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrStationRequired)
}

func TestPlannerAddsLocationsWhenOriginKnown(t *testing.T) {
	planner := newTestPlanner(clock.NewMockClock(t0), &fakeArrivals{}, nil, time.Second)

	origin := originLoc
	candidates, err := planner.Candidates(context.Background(), Request{Station: "oxford circus", Origin: &origin})
	require.NoError(t, err)
	assert.True(t, candidates.Base.HasLocations())
}

func TestManagerStartSelection(t *testing.T) {
	source := &fakeArrivals{list: []arrivals.Arrival{
		arrival("a", "1", 50*time.Second),
		arrival("b", "2", 100*time.Second),
	}}
	mockClock := clock.NewMockClock(t0)
	manager := NewManager(newTestPlanner(mockClock, source, nil, 20*time.Second), testConfig())
	t.Cleanup(manager.Shutdown)

	request := Request{Station: "oxford circus", WalkToStation: time.Minute, StationToPlatform: &thirtySeconds}

	session, err := manager.Start(context.Background(), StartRequest{Request: request})
	require.NoError(t, err)
	assert.Equal(t, "b", session.arrivalID)
	assert.Equal(t, catch.StatusTight, session.Snapshot().Train.Status)

	session, err = manager.Start(context.Background(), StartRequest{Request: request, ArrivalID: "a"})
	require.NoError(t, err)
	assert.Equal(t, catch.StatusMissed, session.Snapshot().Train.Status)

	_, err = manager.Start(context.Background(), StartRequest{Request: request, ArrivalID: "zzz"})
	assert.ErrorIs(t, err, ErrArrivalNotFound)

	assert.Equal(t, 2, manager.Len())
}

func TestManagerNoCatchableTrain(t *testing.T) {
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("a", "1", 10*time.Second)}}
	manager := NewManager(newTestPlanner(clock.NewMockClock(t0), source, nil, 20*time.Second), testConfig())

	_, err := manager.Start(context.Background(), StartRequest{Request: Request{Station: "oxford circus", WalkToStation: time.Minute}})
	assert.ErrorIs(t, err, ErrNoCatchableTrain)
	assert.Equal(t, 0, manager.Len())
}

func TestRefreshIgnoresSupersededResults(t *testing.T) {
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 300*time.Second)}}
	manager := NewManager(newTestPlanner(clock.NewMockClock(t0), source, nil, 20*time.Second), testConfig())
	t.Cleanup(manager.Shutdown)

	session, err := manager.Start(context.Background(), StartRequest{Request: Request{Station: "oxford circus", WalkToStation: time.Minute}})
	require.NoError(t, err)

	source.mu.Lock()
	source.capture = true
	source.mu.Unlock()

	session.Refresh(context.Background())
	session.Refresh(context.Background())

	callbacks := source.callbacks()
	require.Len(t, callbacks, 2)

	// The newer refresh lands first, then the stale one
	callbacks[1]([]arrivals.Arrival{arrival("b2", "2", 400*time.Second)})
	callbacks[0]([]arrivals.Arrival{arrival("b", "2", 200*time.Second)})

	snapshot := session.Snapshot()
	assert.True(t, snapshot.Train.ExpectedArrival.Equal(t0.Add(400*time.Second)))
	require.Len(t, snapshot.Alternatives, 1)
	assert.Equal(t, "b2", snapshot.Alternatives[0].Arrival.ID)
}

func TestRefreshAfterEndIsIgnored(t *testing.T) {
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 300*time.Second)}}
	manager := NewManager(newTestPlanner(clock.NewMockClock(t0), source, nil, 20*time.Second), testConfig())

	session, err := manager.Start(context.Background(), StartRequest{Request: Request{Station: "oxford circus", WalkToStation: time.Minute}})
	require.NoError(t, err)

	session.mu.Lock()
	generation := session.generation + 1
	session.generation = generation
	session.mu.Unlock()

	_, err = manager.End(session.ID())
	require.NoError(t, err)

	assert.False(t, session.applyRefresh(generation, []arrivals.Arrival{arrival("x", "9", time.Hour)}))
}

func TestLocationDrivesPacingAndPlatformRecording(t *testing.T) {
	mockClock := clock.NewMockClock(t0)
	store := transfertimes.NewMemoryStore()
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 530*time.Second)}}
	manager := NewManager(newTestPlanner(mockClock, source, store, 20*time.Second), testConfig())
	t.Cleanup(manager.Shutdown)

	origin := originLoc
	session, err := manager.Start(context.Background(), StartRequest{ArrivalID: "b", Request: Request{
		Station:           "oxford circus",
		WalkToStation:     10 * time.Minute,
		StationToPlatform: &thirtySeconds,
		Origin:            &origin,
	}})
	require.NoError(t, err)

	_, err = session.ReachedPlatform()
	assert.ErrorIs(t, err, ErrNotAtStation)

	// About 1000m out with 500s to spare: 1 m/s is too slow
	evaluation, err := manager.UpdateLocation(LocationSample{Session: session.ID(), Latitude: 51.509, Longitude: -0.14, Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, pacing.OutcomeAccepted, evaluation.Outcome)
	assert.True(t, evaluation.Active)
	assert.Equal(t, pacing.DirectionHurry, evaluation.Direction)
	assert.InDelta(t, 2.0, evaluation.TargetSpeed, 0.05)

	snapshot := session.Snapshot()
	assert.True(t, snapshot.Pacing.Active)
	assert.InDelta(t, 1.0, snapshot.Pacing.ObservedSpeed, 1e-9)

	// Closer and at the required speed
	evaluation, err = session.UpdateLocation(LocationSample{Latitude: 51.5088, Longitude: -0.14, Speed: 2})
	require.NoError(t, err)
	assert.Equal(t, pacing.OutcomeAccepted, evaluation.Outcome)
	assert.False(t, evaluation.Active)

	// Arrived at the station
	evaluation, err = session.UpdateLocation(LocationSample{Latitude: 51.5, Longitude: -0.14, Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, pacing.OutcomeArrived, evaluation.Outcome)
	assert.Equal(t, journey.StationToPlatform, session.Snapshot().Tracker.Phase)

	mockClock.Advance(45 * time.Second)

	duration, err := session.ReachedPlatform()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, duration)
	assert.Equal(t, 45*time.Second, store.Get(context.Background(), "Oxford Circus"))

	_, err = session.ReachedPlatform()
	assert.ErrorIs(t, err, ErrPlatformRecorded)
}

func TestSlowWalkerKeepsPacingAfterPlannedWalk(t *testing.T) {
	mockClock := clock.NewMockClock(t0)
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 600*time.Second)}}
	config := testConfig()
	config.Tracker.TickInterval = 130 * time.Second
	manager := NewManager(newTestPlanner(mockClock, source, nil, 20*time.Second), config)
	t.Cleanup(manager.Shutdown)

	origin := originLoc
	session, err := manager.Start(context.Background(), StartRequest{ArrivalID: "b", Request: Request{
		Station:           "oxford circus",
		WalkToStation:     2 * time.Minute,
		StationToPlatform: &thirtySeconds,
		Origin:            &origin,
	}})
	require.NoError(t, err)

	// The planned walk is over but the traveller is still far away
	mockClock.Advance(130 * time.Second)
	assert.Eventually(t, func() bool {
		return session.Snapshot().Progress.Phase == journey.StationToPlatform
	}, 2*time.Second, 5*time.Millisecond)

	evaluation, err := session.UpdateLocation(LocationSample{Latitude: 51.509, Longitude: -0.14, Speed: 0.5})
	require.NoError(t, err)
	assert.Equal(t, pacing.OutcomeAccepted, evaluation.Outcome)
	assert.True(t, evaluation.Active)
	assert.Equal(t, pacing.DirectionHurry, evaluation.Direction)

	evaluation, err = session.UpdateLocation(LocationSample{Latitude: 51.5081, Longitude: -0.14, Speed: 0.5})
	require.NoError(t, err)
	assert.Equal(t, pacing.OutcomeAccepted, evaluation.Outcome)
	assert.True(t, evaluation.Active)
	assert.Equal(t, pacing.DirectionHurry, evaluation.Direction)

	snapshot := session.Snapshot()
	assert.True(t, snapshot.Pacing.Active)
	assert.Equal(t, pacing.DirectionHurry, snapshot.Pacing.Direction)

	// Reaching the station is what turns pacing off
	evaluation, err = session.UpdateLocation(LocationSample{Latitude: 51.5, Longitude: -0.14, Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, pacing.OutcomeArrived, evaluation.Outcome)
	assert.False(t, session.Snapshot().Pacing.Active)

	evaluation, err = session.UpdateLocation(LocationSample{Latitude: 51.5005, Longitude: -0.14, Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, pacing.OutcomeArrived, evaluation.Outcome)
}

func TestRefreshRetargetsTracker(t *testing.T) {
	mockClock := clock.NewMockClock(t0)
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 300*time.Second)}}
	manager := NewManager(newTestPlanner(mockClock, source, nil, 20*time.Second), testConfig())
	t.Cleanup(manager.Shutdown)

	session, err := manager.Start(context.Background(), StartRequest{ArrivalID: "b", Request: Request{
		Station:           "oxford circus",
		WalkToStation:     time.Minute,
		StationToPlatform: &thirtySeconds,
	}})
	require.NoError(t, err)
	assert.Equal(t, catch.StatusSafe, session.Snapshot().Train.Status)

	source.setList(arrival("b", "2", 50*time.Second))
	session.Refresh(context.Background())

	assert.Eventually(t, func() bool {
		return session.Snapshot().Progress.Status == catch.StatusMissed
	}, 2*time.Second, 5*time.Millisecond)

	snapshot := session.Snapshot()
	assert.Equal(t, catch.StatusMissed, snapshot.Train.Status)
	assert.True(t, snapshot.Plan.TargetArrival().Equal(t0.Add(50*time.Second)))
	assert.Equal(t, tracker.SourceRefresh, snapshot.Progress.Source)
	assert.False(t, snapshot.Progress.CanCatch)

	mockClock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return session.Snapshot().Progress.Source == tracker.SourceTick
	}, 2*time.Second, 5*time.Millisecond)

	progress := session.Snapshot().Progress
	assert.Equal(t, catch.StatusMissed, progress.Status)
	assert.False(t, progress.CanCatch)
	assert.Equal(t, -40*time.Second, progress.Delta)
}

func TestFinishedSessionStopsRefreshing(t *testing.T) {
	mockClock := clock.NewMockClock(t0)
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 900*time.Second)}}
	config := testConfig()
	config.RefreshInterval = 100 * time.Second
	config.Tracker.TickInterval = 100 * time.Second
	manager := NewManager(newTestPlanner(mockClock, source, nil, 20*time.Second), config)
	t.Cleanup(manager.Shutdown)

	session, err := manager.Start(context.Background(), StartRequest{Request: Request{
		Station:           "oxford circus",
		WalkToStation:     time.Minute,
		StationToPlatform: &thirtySeconds,
	}})
	require.NoError(t, err)

	mockClock.Advance(100 * time.Second)
	assert.Eventually(t, func() bool {
		return session.Snapshot().Progress.Phase == journey.Finished
	}, 2*time.Second, 5*time.Millisecond)

	session.mu.Lock()
	refresher := session.refresher
	session.mu.Unlock()
	require.NotNil(t, refresher)

	assert.Eventually(t, func() bool {
		select {
		case <-refresher.Done():
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	fetches := source.fetchCount()
	for i := 0; i < 4; i++ {
		mockClock.Advance(100 * time.Second)
	}
	session.Refresh(context.Background())

	assert.Equal(t, fetches, source.fetchCount())
	assert.Equal(t, 1, manager.Len())
}

func TestManagerExpiresFinishedSessions(t *testing.T) {
	mockClock := clock.NewMockClock(t0)
	history := &fakeHistory{}
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 900*time.Second)}}
	config := testConfig()
	config.FinishedRetention = time.Minute
	config.Tracker.TickInterval = 100 * time.Second
	manager := NewManager(newTestPlanner(mockClock, source, nil, 20*time.Second), config, WithHistory(history))
	t.Cleanup(manager.Shutdown)

	session, err := manager.Start(context.Background(), StartRequest{Request: Request{
		Station:           "oxford circus",
		WalkToStation:     time.Minute,
		StationToPlatform: &thirtySeconds,
	}})
	require.NoError(t, err)

	mockClock.Advance(100 * time.Second)
	assert.Eventually(t, func() bool {
		_, finished := session.FinishedAt()
		return finished
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, manager.Len())

	assert.Eventually(t, func() bool {
		mockClock.Advance(time.Minute)
		return manager.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return history.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, session.Snapshot().Ended)
	assert.Equal(t, journey.Finished.String(), history.summaries[0].FinalPhase)
}

func TestStaleSamplesAreDropped(t *testing.T) {
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 530*time.Second)}}
	manager := NewManager(newTestPlanner(clock.NewMockClock(t0), source, nil, 20*time.Second), testConfig())
	t.Cleanup(manager.Shutdown)

	origin := originLoc
	session, err := manager.Start(context.Background(), StartRequest{ArrivalID: "b", Request: Request{Station: "oxford circus", WalkToStation: 10 * time.Minute, Origin: &origin}})
	require.NoError(t, err)

	evaluation, err := session.UpdateLocation(LocationSample{Latitude: 51.509, Longitude: -0.14, Speed: 1, Timestamp: "2024-03-01T10:00:10Z"})
	require.NoError(t, err)
	assert.Equal(t, pacing.OutcomeAccepted, evaluation.Outcome)

	evaluation, err = session.UpdateLocation(LocationSample{Latitude: 51.508, Longitude: -0.14, Speed: 1, Timestamp: "2024-03-01T10:00:05Z"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, evaluation.Outcome)
}

func TestSessionFinishes(t *testing.T) {
	mockClock := clock.NewMockClock(t0)
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 900*time.Second)}}
	config := testConfig()
	config.Tracker.TickInterval = 700 * time.Second
	manager := NewManager(newTestPlanner(mockClock, source, nil, 20*time.Second), config)
	t.Cleanup(manager.Shutdown)

	session, err := manager.Start(context.Background(), StartRequest{Request: Request{
		Station:           "oxford circus",
		WalkToStation:     10 * time.Minute,
		StationToPlatform: &thirtySeconds,
	}})
	require.NoError(t, err)

	mockClock.Advance(700 * time.Second)

	assert.Eventually(t, func() bool {
		return session.Snapshot().Progress.Phase == journey.Finished
	}, 2*time.Second, 5*time.Millisecond)

	snapshot := session.Snapshot()
	assert.Equal(t, 1.0, snapshot.Progress.Fraction)
	assert.False(t, snapshot.Tracker.Running)
}

func TestManagerEnd(t *testing.T) {
	history := &fakeHistory{}
	source := &fakeArrivals{list: []arrivals.Arrival{arrival("b", "2", 300*time.Second)}}
	manager := NewManager(newTestPlanner(clock.NewMockClock(t0), source, nil, 20*time.Second), testConfig(), WithHistory(history))

	session, err := manager.Start(context.Background(), StartRequest{Request: Request{Station: "oxford circus", WalkToStation: time.Minute}})
	require.NoError(t, err)

	summary, err := manager.End(session.ID())
	require.NoError(t, err)
	assert.Equal(t, session.ID(), summary.ID)
	assert.Equal(t, "940GZZLUOXC", summary.StopID)
	assert.Equal(t, "victoria", summary.LineID)

	assert.True(t, session.Snapshot().Ended)
	_, err = session.UpdateLocation(LocationSample{Latitude: 51.5, Longitude: -0.14})
	assert.ErrorIs(t, err, ErrSessionEnded)

	_, err = manager.End(session.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = manager.UpdateLocation(LocationSample{Session: session.ID()})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.Len(t, history.summaries, 1)
	assert.Equal(t, session.ID(), history.summaries[0].ID)
}
