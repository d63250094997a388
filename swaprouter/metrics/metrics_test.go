package metrics_test

import (
	"testing"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zeebo/assert"
)

func TestMetricsRecord(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	assert.NoError(t, err)

	m.IntentExecuted()
	m.IntentRejected("EconomicLimit", "DailyVolumeExceeded")
	m.Alert("CIRCUIT_BREAKER_TRIGGERED", true)
	m.SetActivePools(3)
	m.SettlementInitiated("mainnet")

	assert.Equal(t, testutil.ToFloat64(m.IntentsTotal.WithLabelValues("executed")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.IntentsTotal.WithLabelValues("rejected")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.IntentRejections.WithLabelValues("EconomicLimit", "DailyVolumeExceeded")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.CircuitBreakerTrips), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.PoolsActive), 3.0)
	assert.Equal(t, testutil.ToFloat64(m.SettlementsTotal.WithLabelValues("mainnet")), 1.0)
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	assert.NoError(t, err)

	_, err = metrics.New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.IntentExecuted()
	m.IntentRejected("a", "b")
	m.ObserveQuote(0.1)
	m.Alert("x", true)
	m.SetActivePools(1)
	m.SettlementInitiated("orbit")
}
