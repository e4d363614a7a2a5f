// Package stations resolves free text station names to TfL stop identifiers.
package stations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/geo"
	"github.com/travigo/catchtrain/pkg/metrics"
	"github.com/travigo/catchtrain/pkg/tfl"
)

var ErrNotFound = errors.New("station not found")

var DefaultModes = []string{"tube", "dlr", "overground", "elizabeth-line"}

const (
	redisKeyPrefix = "catchtrain:station:"
	redisNotFound  = "N/A"
)

type Station struct {
	StopID   string       `json:"stop_id" groups:"basic"`
	Name     string       `json:"name" groups:"basic"`
	Location geo.Location `json:"location" groups:"basic"`
}

// Source is the station directory feed backing the resolver.
type Source interface {
	SearchStopPoints(ctx context.Context, query string, modes []string) ([]tfl.SearchMatch, error)
	StopPointsByMode(ctx context.Context, modes []string) ([]tfl.StopPoint, error)
}

type Resolver struct {
	source  Source
	modes   []string
	metrics *metrics.Collector

	shared *cache.Cache[string]

	mu    sync.RWMutex
	index map[string]Station
}

type Option func(*Resolver)

func WithModes(modes ...string) Option {
	return func(r *Resolver) {
		r.modes = modes
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(r *Resolver) {
		r.metrics = collector
	}
}

// WithRedisCache adds a shared tier so resolved names survive restarts and
// are visible to every instance.
func WithRedisCache(client *redis.Client, expiration time.Duration) Option {
	return func(r *Resolver) {
		redisStore := redisstore.NewRedis(client, store.WithExpiration(expiration))
		r.shared = cache.New[string](redisStore)
	}
}

func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		modes:  DefaultModes,
		index:  map[string]Station{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Resolver) Resolve(ctx context.Context, name string) (Station, error) {
	key := Normalize(name)
	if key == "" {
		r.metrics.StationResolved("not_found")
		return Station{}, ErrNotFound
	}

	if station, ok := r.lookup(key); ok {
		r.metrics.StationResolved("memory")
		return station, nil
	}

	if station, ok := r.scan(key); ok {
		r.metrics.StationResolved("contains")
		return station, nil
	}

	station, cached, err := r.sharedLookup(ctx, key)
	if cached {
		if err != nil {
			r.metrics.StationResolved("not_found")
			return Station{}, err
		}

		r.store(key, station)
		r.metrics.StationResolved("redis")
		return station, nil
	}

	return r.search(ctx, key)
}

// ResolveAsync resolves on a new goroutine and calls callback exactly once.
func (r *Resolver) ResolveAsync(ctx context.Context, name string, callback func(Station, error)) {
	go func() {
		callback(r.Resolve(ctx, name))
	}()
}

// Preload fills the index from the station directory feed. It returns the
// number of stations indexed.
func (r *Resolver) Preload(ctx context.Context) (int, error) {
	stopPoints, err := r.source.StopPointsByMode(ctx, r.modes)
	if err != nil {
		return 0, fmt.Errorf("preload stations: %w", err)
	}

	count := 0
	for _, stopPoint := range stopPoints {
		key := Normalize(stopPoint.CommonName)
		if key == "" || stopPoint.Identifier() == "" {
			continue
		}

		r.store(key, Station{
			StopID:   stopPoint.Identifier(),
			Name:     stopPoint.CommonName,
			Location: stopPoint.Location(),
		})
		count++
	}

	log.Info().Int("stations", count).Strs("modes", r.modes).Msg("Preloaded station index")

	return count, nil
}

// Len is the number of index entries.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.index)
}

func (r *Resolver) lookup(key string) (Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	station, ok := r.index[key]
	return station, ok
}

// scan matches either direction of containment. Map iteration order decides
// between several matches.
func (r *Resolver) scan(key string) (Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for indexKey, station := range r.index {
		if strings.Contains(indexKey, key) || strings.Contains(key, indexKey) {
			return station, true
		}
	}

	return Station{}, false
}

func (r *Resolver) store(key string, station Station) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.index[key] = station
}

// sharedLookup reports cached=true when the Redis tier had an answer, which
// may be a remembered miss.
func (r *Resolver) sharedLookup(ctx context.Context, key string) (Station, bool, error) {
	if r.shared == nil {
		return Station{}, false, nil
	}

	value, err := r.shared.Get(ctx, redisKeyPrefix+key)
	if err != nil {
		return Station{}, false, nil
	}

	if value == redisNotFound {
		return Station{}, true, ErrNotFound
	}

	var station Station
	if err := json.Unmarshal([]byte(value), &station); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Ignoring malformed cached station")
		return Station{}, false, nil
	}

	return station, true, nil
}

func (r *Resolver) sharedStore(ctx context.Context, key string, value string) {
	if r.shared == nil {
		return
	}

	if err := r.shared.Set(ctx, redisKeyPrefix+key, value); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to write station to shared cache")
	}
}

func (r *Resolver) search(ctx context.Context, key string) (Station, error) {
	matches, err := r.source.SearchStopPoints(ctx, key, r.modes)
	if err != nil {
		r.metrics.StationResolved("not_found")
		return Station{}, fmt.Errorf("search %q: %w", key, errors.Join(ErrNotFound, err))
	}

	if len(matches) == 0 {
		r.sharedStore(ctx, key, redisNotFound)
		r.metrics.StationResolved("not_found")
		return Station{}, ErrNotFound
	}

	match := matches[0]
	station := Station{
		StopID:   match.ID,
		Name:     match.Name,
		Location: match.Location(),
	}

	r.store(key, station)
	if matchKey := Normalize(match.Name); matchKey != "" && matchKey != key {
		r.store(matchKey, station)
	}

	if stationJSON, err := json.Marshal(station); err == nil {
		r.sharedStore(ctx, key, string(stationJSON))
	}

	r.metrics.StationResolved("network")
	log.Debug().Str("query", key).Str("stop", station.StopID).Msg("Resolved station from TfL search")

	return station, nil
}
