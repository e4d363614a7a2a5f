// Package metrics exposes Prometheus metrics for catch prediction and pacing.
// All methods are safe to call on a nil *Collector so metrics stay optional for library users.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	TfLRequests        *prometheus.CounterVec // endpoint, status
	TfLRequestDuration *prometheus.HistogramVec

	LineFetchFailures *prometheus.CounterVec // line
	ArrivalsFetched   prometheus.Counter
	ArrivalsDropped   *prometheus.CounterVec // reason: timestamp|filter

	ResolverLookups *prometheus.CounterVec // tier: memory|contains|redis|network|not_found

	PacingChanges   *prometheus.CounterVec // direction: hurry|ease|none
	LocationSamples *prometheus.CounterVec // outcome

	SessionsActive   prometheus.Gauge
	TrackersFinished *prometheus.CounterVec // status
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TfLRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchtrain_tfl_requests_total",
			Help: "Requests made to the TfL Unified API.",
		}, []string{"endpoint", "status"}),
		TfLRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catchtrain_tfl_request_duration_seconds",
			Help:    "Latency of TfL Unified API requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"endpoint"}),
		LineFetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchtrain_line_fetch_failures_total",
			Help: "Per-line arrival fetches that failed and contributed no predictions.",
		}, []string{"line"}),
		ArrivalsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catchtrain_arrivals_fetched_total",
			Help: "Arrival predictions returned by the catalog.",
		}),
		ArrivalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchtrain_arrivals_dropped_total",
			Help: "Arrival predictions dropped from catalog results.",
		}, []string{"reason"}),
		ResolverLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchtrain_station_resolutions_total",
			Help: "Station name resolutions by the tier that answered.",
		}, []string{"tier"}),
		PacingChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchtrain_pacing_changes_total",
			Help: "Pacing state transitions by resulting direction.",
		}, []string{"direction"}),
		LocationSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchtrain_location_samples_total",
			Help: "Location samples received by outcome.",
		}, []string{"outcome"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchtrain_sessions_active",
			Help: "Number of sessions currently tracking a train.",
		}),
		TrackersFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchtrain_trackers_finished_total",
			Help: "Progress trackers that reached the Finished phase by final catch status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.TfLRequests, c.TfLRequestDuration,
		c.LineFetchFailures, c.ArrivalsFetched, c.ArrivalsDropped,
		c.ResolverLookups,
		c.PacingChanges, c.LocationSamples,
		c.SessionsActive, c.TrackersFinished,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveTfLRequest(endpoint string, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.TfLRequests.WithLabelValues(endpoint, status).Inc()
	c.TfLRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (c *Collector) LineFetchFailed(line string) {
	if c == nil {
		return
	}
	c.LineFetchFailures.WithLabelValues(line).Inc()
}

func (c *Collector) ArrivalsReturned(count int) {
	if c == nil {
		return
	}
	c.ArrivalsFetched.Add(float64(count))
}

func (c *Collector) ArrivalDropped(reason string) {
	if c == nil {
		return
	}
	c.ArrivalsDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) StationResolved(tier string) {
	if c == nil {
		return
	}
	c.ResolverLookups.WithLabelValues(tier).Inc()
}

func (c *Collector) PacingChanged(direction string) {
	if c == nil {
		return
	}
	c.PacingChanges.WithLabelValues(direction).Inc()
}

func (c *Collector) LocationSample(outcome string) {
	if c == nil {
		return
	}
	c.LocationSamples.WithLabelValues(outcome).Inc()
}

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.SessionsActive.Inc()
}

func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.SessionsActive.Dec()
}

func (c *Collector) TrackerFinished(status string) {
	if c == nil {
		return
	}
	c.TrackersFinished.WithLabelValues(status).Inc()
}
