// Package metrics exposes the prometheus gauges and counters the HTTP
// admin surface serves at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the scheduler's observable counters.
type Metrics struct {
	SourcesRegistered  prometheus.Gauge
	LastCheckTimestamp *prometheus.GaugeVec
	ReleasesSaved      prometheus.Counter
	NotificationsSent  prometheus.Counter
	NotificationsFailed prometheus.Counter
}

// New registers and returns a fresh Metrics bundle against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SourcesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relwatch",
			Name:      "sources_registered",
			Help:      "Number of sources currently scheduled.",
		}),
		LastCheckTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relwatch",
			Name:      "source_last_check_timestamp_seconds",
			Help:      "Unix timestamp of the last check per source.",
		}, []string{"source"}),
		ReleasesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relwatch",
			Name:      "releases_saved_total",
			Help:      "Total releases persisted (new, republish, and metadata updates).",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relwatch",
			Name:      "notifications_dispatched_total",
			Help:      "Total notification dispatch attempts.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relwatch",
			Name:      "notifications_failed_total",
			Help:      "Total notification dispatch attempts that ultimately failed.",
		}),
	}
	reg.MustRegister(m.SourcesRegistered, m.LastCheckTimestamp, m.ReleasesSaved, m.NotificationsSent, m.NotificationsFailed)
	return m
}
