package fleet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes scan engine counters to Prometheus.
type Metrics struct {
	CycleDuration prometheus.Histogram
	CyclesTotal   prometheus.Counter
	TicksSkipped  prometheus.Counter
	DevicesTotal  prometheus.Gauge
	DevicesUp     prometheus.Gauge
	ProbeFailures *prometheus.CounterVec
}

// NewMetrics registers the scan metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lanwarden",
			Subsystem: "scan",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of complete scan cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lanwarden",
			Subsystem: "scan",
			Name:      "cycles_total",
			Help:      "Number of completed scan cycles.",
		}),
		TicksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lanwarden",
			Subsystem: "scan",
			Name:      "ticks_skipped_total",
			Help:      "Scheduled ticks skipped because a cycle was still running.",
		}),
		DevicesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lanwarden",
			Subsystem: "fleet",
			Name:      "devices_total",
			Help:      "Number of configured devices.",
		}),
		DevicesUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lanwarden",
			Subsystem: "fleet",
			Name:      "devices_up",
			Help:      "Devices reachable in the most recent scan cycle.",
		}),
		ProbeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lanwarden",
			Subsystem: "probe",
			Name:      "failures_total",
			Help:      "Probe failures by protocol and failure kind.",
		}, []string{"protocol", "kind"}),
	}
}

// ObserveProbeFailure counts one probe failure.
func (m *Metrics) ObserveProbeFailure(protocol, kind string) {
	m.ProbeFailures.WithLabelValues(protocol, kind).Inc()
}

// ObserveCycle records the outcome of one completed cycle.
func (m *Metrics) ObserveCycle(elapsed time.Duration, total, up int) {
	m.CycleDuration.Observe(elapsed.Seconds())
	m.CyclesTotal.Inc()
	m.DevicesTotal.Set(float64(total))
	m.DevicesUp.Set(float64(up))
}
