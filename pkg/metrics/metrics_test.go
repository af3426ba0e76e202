package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservations(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLookup("overlay")
	m.ObserveLookup("overlay")
	m.ObserveLookup("system")
	m.ObserveMiss()
	m.ObserveFetch()
	m.ObserveHashMismatch()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Lookups.WithLabelValues("overlay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("system")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FetchFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HashMismatches))
}

func TestInflightGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ResolutionStarted()
	m.ResolutionStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InflightResolutions))

	m.ResolutionFinished()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InflightResolutions))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	m.ObserveLookup("overlay")
	m.ObserveMiss()
	m.ObserveFetch()
	m.ObserveFetchFailure()
	m.ObserveHashMismatch()
	m.ObserveWritebackFailure()
	m.ResolutionStarted()
	m.ResolutionFinished()
}
