package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/tiercache/metric"
)

// monitorMetrics mirrors monitor counters as Prometheus metrics.
type monitorMetrics struct {
	accesses  *prometheus.CounterVec
	network   prometheus.Counter
	durations *prometheus.HistogramVec
}

func newMonitorMetrics(registry *metric.Registry, component string) (*monitorMetrics, error) {
	m := &monitorMetrics{
		accesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tiercache",
			Subsystem:   "monitor",
			Name:        "tier_accesses_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Cache accesses by tier and outcome",
		}, []string{"tier", "outcome"}),
		network: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tiercache",
			Subsystem:   "monitor",
			Name:        "network_requests_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Total number of fetches that reached the network",
		}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "tiercache",
			Subsystem:   "monitor",
			Name:        "operation_duration_seconds",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Operation latency by operation name",
			Buckets:     prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	if err := registry.RegisterCounterVec(component, "tier_accesses", m.accesses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "network_requests", m.network); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(component, "operation_duration", m.durations); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *monitorMetrics) recordAccess(tier Tier, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.accesses.WithLabelValues(string(tier), outcome).Inc()
}

func (m *monitorMetrics) recordNetworkRequest() {
	m.network.Inc()
}

func (m *monitorMetrics) observeDuration(operation string, d time.Duration) {
	m.durations.WithLabelValues(operation).Observe(d.Seconds())
}
