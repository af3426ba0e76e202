package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks capability cache behavior. A nil *Metrics is valid and
// records nothing, so components can run without observability wired up.
type Metrics struct {
	Lookups             *prometheus.CounterVec
	Misses              prometheus.Counter
	Fetches             prometheus.Counter
	FetchFailures       prometheus.Counter
	HashMismatches      prometheus.Counter
	WritebackFailures   prometheus.Counter
	InflightResolutions prometheus.Gauge
}

// New creates and registers the capability cache metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	return &Metrics{
		Lookups: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "capcache_lookups_total",
			Help: "Capability lookups served, by dataset tier",
		}, []string{"tier"}),
		Misses: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "capcache_misses_total",
			Help: "Capability lookups that missed every tier",
		}),
		Fetches: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "capcache_network_fetches_total",
			Help: "Capability descriptions fetched from remote peers",
		}),
		FetchFailures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "capcache_network_fetch_failures_total",
			Help: "Remote capability fetches that failed",
		}),
		HashMismatches: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "capcache_hash_mismatches_total",
			Help: "Fetched capability sets whose fingerprint did not verify",
		}),
		WritebackFailures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "capcache_writeback_failures_total",
			Help: "Background dataset persistence failures",
		}),
		InflightResolutions: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "capcache_inflight_resolutions",
			Help: "Resolutions currently in flight",
		}),
	}
}

// ObserveLookup records a lookup served from the given tier.
func (m *Metrics) ObserveLookup(tier string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(tier).Inc()
}

// ObserveMiss records a lookup that missed every tier.
func (m *Metrics) ObserveMiss() {
	if m == nil {
		return
	}
	m.Misses.Inc()
}

// ObserveFetch records a remote fetch attempt.
func (m *Metrics) ObserveFetch() {
	if m == nil {
		return
	}
	m.Fetches.Inc()
}

// ObserveFetchFailure records a failed remote fetch.
func (m *Metrics) ObserveFetchFailure() {
	if m == nil {
		return
	}
	m.FetchFailures.Inc()
}

// ObserveHashMismatch records a fetched set that failed verification.
func (m *Metrics) ObserveHashMismatch() {
	if m == nil {
		return
	}
	m.HashMismatches.Inc()
}

// ObserveWritebackFailure records a failed background persistence.
func (m *Metrics) ObserveWritebackFailure() {
	if m == nil {
		return
	}
	m.WritebackFailures.Inc()
}

// ResolutionStarted marks a resolution as in flight.
func (m *Metrics) ResolutionStarted() {
	if m == nil {
		return
	}
	m.InflightResolutions.Inc()
}

// ResolutionFinished marks an in-flight resolution as done.
func (m *Metrics) ResolutionFinished() {
	if m == nil {
		return
	}
	m.InflightResolutions.Dec()
}

// Handler returns the HTTP handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
