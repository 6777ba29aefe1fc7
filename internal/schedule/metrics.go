package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scheduler's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	fires          *prometheus.CounterVec
	pending        prometheus.Gauge
	invokeDuration prometheus.Histogram
	restoreDropped prometheus.Counter
}

// NewMetrics creates the scheduler collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smarthome",
			Subsystem: "schedule",
			Name:      "fires_total",
			Help:      "Scheduled operation fires by operation and outcome.",
		}, []string{"operation", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smarthome",
			Subsystem: "schedule",
			Name:      "pending",
			Help:      "Descriptors currently held by the scheduler.",
		}),
		invokeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smarthome",
			Subsystem: "schedule",
			Name:      "invoke_duration_seconds",
			Help:      "Time spent invoking the device when a descriptor fires.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		restoreDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smarthome",
			Subsystem: "schedule",
			Name:      "restore_dropped_total",
			Help:      "Descriptors dropped while restoring a snapshot.",
		}),
	}

	for _, c := range []prometheus.Collector{m.fires, m.pending, m.invokeDuration, m.restoreDropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeFire(ev Event) {
	if m == nil {
		return
	}
	m.fires.WithLabelValues(ev.Operation, string(ev.Outcome)).Inc()
	m.invokeDuration.Observe(ev.Duration.Seconds())
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) observeDropped() {
	if m == nil {
		return
	}
	m.restoreDropped.Inc()
}
