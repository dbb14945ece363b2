package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()

	m.CacheLookups.WithLabelValues(CacheMiss).Inc()
	m.AdapterAttempts.WithLabelValues("planet", OutcomeUnavailable).Inc()
	m.AdapterAttempts.WithLabelValues("planet", OutcomeUnavailable).Inc()
	m.CacheWriteFailures.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(CacheMiss)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AdapterAttempts.WithLabelValues("planet", OutcomeUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheWriteFailures))
}

func TestMetricsRegister(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()

	require.NoError(t, reg.Register(m.CacheLookups))
	require.NoError(t, reg.Register(m.AdapterDuration))

	m.AdapterDuration.WithLabelValues("copernicus").Observe(1.2)
	count, err := testutil.GatherAndCount(reg, "fieldsat_adapter_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
