package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/metrics"
	"github.com/travigo/catchtrain/pkg/pacing"
	"github.com/travigo/catchtrain/pkg/tracker"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrArrivalNotFound  = errors.New("arrival not found at station")
	ErrNoCatchableTrain = errors.New("no catchable train")
)

type Config struct {
	Tracker         tracker.Config
	Pacing          pacing.Config
	RefreshInterval time.Duration

	// FinishedRetention is how long a finished session stays readable before it is ended.
	// Zero keeps finished sessions until they are ended explicitly.
	FinishedRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tracker:           tracker.DefaultConfig(),
		Pacing:            pacing.DefaultConfig(),
		RefreshInterval:   30 * time.Second,
		FinishedRetention: 5 * time.Minute,
	}
}

// StartRequest picks the train with ArrivalID, or the earliest catchable one
// when it is empty.
type StartRequest struct {
	Request
	ArrivalID string
}

type Manager struct {
	planner *Planner
	config  Config
	metrics *metrics.Collector
	history HistoryRecorder

	mu       sync.RWMutex
	sessions map[string]*Session

	sweeper *clock.PeriodicTask
}

type ManagerOption func(*Manager)

func WithMetrics(collector *metrics.Collector) ManagerOption {
	return func(m *Manager) {
		m.metrics = collector
	}
}

func WithHistory(history HistoryRecorder) ManagerOption {
	return func(m *Manager) {
		m.history = history
	}
}

func NewManager(planner *Planner, config Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		planner:  planner,
		config:   config,
		sessions: map[string]*Session{},
	}

	for _, opt := range opts {
		opt(m)
	}

	if config.FinishedRetention > 0 {
		m.sweeper = clock.Every(planner.clock, config.FinishedRetention, m.sweep)
	}

	return m
}

// sweep ends sessions that finished at least FinishedRetention ago
func (m *Manager) sweep(now time.Time) bool {
	m.mu.RLock()
	var expired []string
	for id, session := range m.sessions {
		if finishedAt, ok := session.FinishedAt(); ok && now.Sub(finishedAt) >= m.config.FinishedRetention {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		log.Debug().Str("session", id).Msg("Expiring finished session")
		m.End(id)
	}

	return true
}

func (m *Manager) Planner() *Planner {
	return m.planner
}

func (m *Manager) Start(ctx context.Context, request StartRequest) (*Session, error) {
	candidates, err := m.planner.Candidates(ctx, request.Request)
	if err != nil {
		return nil, err
	}

	var selected Candidate
	var ok bool
	if request.ArrivalID != "" {
		selected, ok = candidates.Find(request.ArrivalID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrArrivalNotFound, request.ArrivalID)
		}
	} else {
		selected, ok = candidates.Best()
		if !ok {
			return nil, ErrNoCatchableTrain
		}
	}

	session := newSession(uuid.NewString(), candidates, selected, m.planner, m.config, m.metrics)
	if err := session.start(m.config.RefreshInterval); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.id] = session
	m.mu.Unlock()

	m.metrics.SessionStarted()

	log.Info().
		Str("session", session.id).
		Str("station", candidates.Station.StopID).
		Str("line", selected.Arrival.LineID).
		Time("expected", selected.Arrival.ExpectedArrival).
		Str("status", selected.Info.Status.String()).
		Msg("Started session")

	return session, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

func (m *Manager) UpdateLocation(sample LocationSample) (pacing.Evaluation, error) {
	session, err := m.Get(sample.Session)
	if err != nil {
		m.metrics.LocationSample("unknown_session")
		return pacing.Evaluation{}, err
	}

	return session.UpdateLocation(sample)
}

func (m *Manager) End(id string) (Summary, error) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return Summary{}, ErrSessionNotFound
	}

	session.End()
	m.metrics.SessionEnded()

	summary := session.Summary()
	if m.history != nil {
		m.history.Record(summary)
	}

	log.Info().Str("session", id).Str("status", summary.FinalStatus).Str("phase", summary.FinalPhase).Msg("Ended session")

	return summary, nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Shutdown ends every session.
func (m *Manager) Shutdown() {
	if m.sweeper != nil {
		m.sweeper.Stop()
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.End(id)
	}
}
