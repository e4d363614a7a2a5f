// Package transfertimes remembers how long travellers take to get from a
// station entrance to the platform.
package transfertimes

import (
	"context"
	"sync"
	"time"

	"github.com/travigo/catchtrain/pkg/stations"
)

const DefaultPlatformTime = 120 * time.Second

type Store interface {
	// Get returns the typical platform walk for a station, or
	// DefaultPlatformTime when nothing usable is known.
	Get(ctx context.Context, station string) time.Duration

	// Record stores an observed duration without blocking the caller.
	Record(station string, duration time.Duration)
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]record
}

type record struct {
	total   time.Duration
	samples int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]record{},
	}
}

func (m *MemoryStore) Get(ctx context.Context, station string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[stations.Normalize(station)]
	if !ok || r.samples == 0 {
		return DefaultPlatformTime
	}

	return r.total / time.Duration(r.samples)
}

func (m *MemoryStore) Record(station string, duration time.Duration) {
	key := stations.Normalize(station)
	if key == "" || duration <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.records[key]
	r.total += duration
	r.samples++
	m.records[key] = r
}
