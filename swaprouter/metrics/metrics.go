// Package metrics defines the Prometheus collectors of the swap router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swaprouter"

// Metrics groups every collector the router updates. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	IntentsTotal        *prometheus.CounterVec
	IntentRejections    *prometheus.CounterVec
	QuoteDuration       prometheus.Histogram
	CircuitBreakerTrips prometheus.Counter
	PoolsActive         prometheus.Gauge
	SettlementsTotal    *prometheus.CounterVec
	SecurityAlerts      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		IntentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Intents processed, by result.",
		}, []string{"result"}),
		IntentRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_rejections_total",
			Help:      "Rejected intents, by error category and kind.",
		}, []string{"category", "kind"}),
		QuoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_duration_seconds",
			Help:      "Time spent discovering a route.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		CircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Times the circuit breaker paused the router.",
		}),
		PoolsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pools_active",
			Help:      "Pools currently open for routing.",
		}),
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Cross-chain settlements initiated, by mode.",
		}, []string{"mode"}),
		SecurityAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_alerts_total",
			Help:      "Security alerts raised, by type.",
		}, []string{"type"}),
	}

	collectors := []prometheus.Collector{
		m.IntentsTotal,
		m.IntentRejections,
		m.QuoteDuration,
		m.CircuitBreakerTrips,
		m.PoolsActive,
		m.SettlementsTotal,
		m.SecurityAlerts,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// IntentExecuted counts a successful intent.
func (m *Metrics) IntentExecuted() {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues("executed").Inc()
}

// IntentRejected counts a failed intent.
func (m *Metrics) IntentRejected(category, kind string) {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues("rejected").Inc()
	m.IntentRejections.WithLabelValues(category, kind).Inc()
}

func (m *Metrics) ObserveQuote(seconds float64) {
	if m == nil {
		return
	}
	m.QuoteDuration.Observe(seconds)
}

// Alert counts a security alert. Circuit breaker alerts also count a trip.
func (m *Metrics) Alert(alertType string, breaker bool) {
	if m == nil {
		return
	}
	m.SecurityAlerts.WithLabelValues(alertType).Inc()
	if breaker {
		m.CircuitBreakerTrips.Inc()
	}
}

func (m *Metrics) SetActivePools(n int) {
	if m == nil {
		return
	}
	m.PoolsActive.Set(float64(n))
}

func (m *Metrics) SettlementInitiated(mode string) {
	if m == nil {
		return
	}
	m.SettlementsTotal.WithLabelValues(mode).Inc()
}
