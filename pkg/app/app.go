// Package app assembles the planner, session manager and their backing stores
// from the environment.
package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/arrivals"
	"github.com/travigo/catchtrain/pkg/clock"
	"github.com/travigo/catchtrain/pkg/database"
	"github.com/travigo/catchtrain/pkg/metrics"
	"github.com/travigo/catchtrain/pkg/redis_client"
	"github.com/travigo/catchtrain/pkg/session"
	"github.com/travigo/catchtrain/pkg/stations"
	"github.com/travigo/catchtrain/pkg/tfl"
	"github.com/travigo/catchtrain/pkg/transfertimes"
	"github.com/travigo/catchtrain/pkg/util"
)

const defaultStationCacheExpiration = 24 * time.Hour

type Config struct {
	TfLAppKey    string
	TfLBaseURL   string
	TfLRateLimit float64

	Modes           []string
	PreloadStations bool
	StationCacheTTL time.Duration

	ArrivalFilter   string
	MaxFetches      int
	Uncertainty     time.Duration
	RefreshInterval time.Duration
	TickInterval    time.Duration

	// FinishedRetention keeps finished sessions readable for a while before they are ended
	FinishedRetention time.Duration

	UseMongo bool
	UseRedis bool
}

// ConfigFromEnvironment reads CATCHTRAIN_* variables, falling back to defaults for anything unset
func ConfigFromEnvironment(env map[string]string) Config {
	config := Config{
		TfLAppKey:         env["CATCHTRAIN_TFL_API_KEY"],
		TfLBaseURL:        tfl.DefaultBaseURL,
		TfLRateLimit:      8,
		Modes:             stations.DefaultModes,
		PreloadStations:   env["CATCHTRAIN_PRELOAD_STATIONS"] == "YES",
		StationCacheTTL:   util.GetEnvironmentDuration(env, "CATCHTRAIN_STATION_CACHE_TTL", defaultStationCacheExpiration),
		ArrivalFilter:     env["CATCHTRAIN_ARRIVAL_FILTER"],
		MaxFetches:        arrivals.DefaultMaxConcurrentFetches,
		Uncertainty:       util.GetEnvironmentDuration(env, "CATCHTRAIN_UNCERTAINTY", 30*time.Second),
		RefreshInterval:   util.GetEnvironmentDuration(env, "CATCHTRAIN_REFRESH_INTERVAL", session.DefaultConfig().RefreshInterval),
		TickInterval:      util.GetEnvironmentDuration(env, "CATCHTRAIN_TICK_INTERVAL", session.DefaultConfig().Tracker.TickInterval),
		FinishedRetention: util.GetEnvironmentDuration(env, "CATCHTRAIN_FINISHED_RETENTION", session.DefaultConfig().FinishedRetention),
		UseMongo:          env["CATCHTRAIN_MONGODB_CONNECTION"] != "",
		UseRedis:          env["CATCHTRAIN_REDIS_ADDRESS"] != "",
	}

	if env["CATCHTRAIN_TFL_BASE_URL"] != "" {
		config.TfLBaseURL = env["CATCHTRAIN_TFL_BASE_URL"]
	}

	if value := env["CATCHTRAIN_TFL_RATE_LIMIT"]; value != "" {
		if rateLimit, err := strconv.ParseFloat(value, 64); err == nil {
			config.TfLRateLimit = rateLimit
		}
	}

	if value := env["CATCHTRAIN_MODES"]; value != "" {
		var modes []string
		for _, mode := range strings.Split(value, ",") {
			if mode = strings.TrimSpace(mode); mode != "" {
				modes = append(modes, mode)
			}
		}
		if len(modes) > 0 {
			config.Modes = modes
		}
	}

	if value := env["CATCHTRAIN_MAX_CONCURRENT_FETCHES"]; value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			config.MaxFetches = n
		}
	}

	return config
}

// Services is everything the API and CLI commands need
type Services struct {
	Config    Config
	Metrics   *metrics.Collector
	TfL       *tfl.Client
	Resolver  *stations.Resolver
	Catalog   *arrivals.Catalog
	Transfers transfertimes.Store
	Planner   *session.Planner
	Manager   *session.Manager
}

// Build connects to the configured stores and wires the services together.
// Mongo and Redis are optional; without them in-memory stores are used.
func Build(ctx context.Context, config Config) (*Services, error) {
	collector := metrics.NewCollector()

	client := tfl.NewClient(config.TfLAppKey,
		tfl.WithBaseURL(config.TfLBaseURL),
		tfl.WithRateLimit(config.TfLRateLimit, max(1, int(config.TfLRateLimit))),
		tfl.WithMetrics(collector),
	)

	resolverOptions := []stations.Option{
		stations.WithModes(config.Modes...),
		stations.WithMetrics(collector),
	}

	if config.UseRedis {
		if err := redis_client.Connect(); err != nil {
			return nil, err
		}
		resolverOptions = append(resolverOptions, stations.WithRedisCache(redis_client.Client, config.StationCacheTTL))
	}

	resolver := stations.NewResolver(client, resolverOptions...)
	if config.PreloadStations {
		count, err := resolver.Preload(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to preload station directory")
		} else {
			log.Info().Int("stations", count).Msg("Preloaded station directory")
		}
	}

	catalogOptions := []arrivals.Option{
		arrivals.WithMaxConcurrentFetches(config.MaxFetches),
		arrivals.WithMetrics(collector),
	}
	if config.ArrivalFilter != "" {
		program, err := arrivals.CompileFilter(config.ArrivalFilter)
		if err != nil {
			return nil, err
		}
		catalogOptions = append(catalogOptions, arrivals.WithFilter(program))
	}
	catalog := arrivals.NewCatalog(client, catalogOptions...)

	var transfers transfertimes.Store = transfertimes.NewMemoryStore()
	var managerOptions = []session.ManagerOption{session.WithMetrics(collector)}

	if config.UseMongo {
		if err := database.Connect(); err != nil {
			return nil, err
		}
		transfers = transfertimes.NewMongoStore(database.GetCollection(database.TransferTimesCollection))
		managerOptions = append(managerOptions, session.WithHistory(session.NewMongoHistory(database.GetCollection(database.SessionsCollection))))
	}

	planner := session.NewPlanner(resolver, catalog, transfers, clock.RealClock{}, config.Uncertainty)

	managerConfig := session.DefaultConfig()
	managerConfig.RefreshInterval = config.RefreshInterval
	managerConfig.Tracker.TickInterval = config.TickInterval
	managerConfig.FinishedRetention = config.FinishedRetention

	return &Services{
		Config:    config,
		Metrics:   collector,
		TfL:       client,
		Resolver:  resolver,
		Catalog:   catalog,
		Transfers: transfers,
		Planner:   planner,
		Manager:   session.NewManager(planner, managerConfig, managerOptions...),
	}, nil
}

// Close ends every live session and waits for background writes to finish
func (s *Services) Close(ctx context.Context) {
	s.Manager.Shutdown()

	if waiter, ok := s.Transfers.(interface{ Wait() }); ok {
		waiter.Wait()
	}

	if err := database.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to disconnect from database")
	}
}
