// Package observability holds the Prometheus metrics of the sync client.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for dyosync.
type Metrics struct {
	Registry *prometheus.Registry

	SnapshotLoads     *prometheus.CounterVec
	SnapshotLatency   prometheus.Histogram
	StaleDropped      prometheus.Counter
	Mutations         *prometheus.CounterVec
	LoginRedirects    prometheus.Counter
	ActivePollers     prometheus.Gauge
	SnapshotAvailable *prometheus.GaugeVec
}

// NewMetrics registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SnapshotLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dyosync_snapshot_loads_total",
			Help: "Snapshot loads by outcome (applied, failed, skipped, stale).",
		}, []string{"outcome"}),
		SnapshotLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dyosync_snapshot_fetch_seconds",
			Help:    "Latency of balance detail requests.",
			Buckets: prometheus.DefBuckets,
		}),
		StaleDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "dyosync_stale_responses_dropped_total",
			Help: "Responses discarded because a newer load was already applied or the account changed.",
		}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dyosync_mutations_total",
			Help: "Stake/unstake/claim attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		LoginRedirects: f.NewCounter(prometheus.CounterOpts{
			Name: "dyosync_login_redirects_total",
			Help: "Redirects to the login view after the session expired.",
		}),
		ActivePollers: f.NewGauge(prometheus.GaugeOpts{
			Name: "dyosync_active_pollers",
			Help: "Number of running poll timers.",
		}),
		SnapshotAvailable: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dyosync_snapshot_available",
			Help: "Last applied available amount per account.",
		}, []string{"account"}),
	}
}

// ObserveLoad records a snapshot load outcome.
func (m *Metrics) ObserveLoad(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotLoads.WithLabelValues(outcome).Inc()
	if took > 0 {
		m.SnapshotLatency.Observe(took.Seconds())
	}
}

// ObserveMutation records a mutation attempt.
func (m *Metrics) ObserveMutation(kind, outcome string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(kind, outcome).Inc()
}

// ObserveStale records a discarded response.
func (m *Metrics) ObserveStale() {
	if m == nil {
		return
	}
	m.StaleDropped.Inc()
}

// ObserveRedirect records a login redirect.
func (m *Metrics) ObserveRedirect() {
	if m == nil {
		return
	}
	m.LoginRedirects.Inc()
}

// PollerStarted / PollerStopped track running poll timers.
func (m *Metrics) PollerStarted() {
	if m == nil {
		return
	}
	m.ActivePollers.Inc()
}

func (m *Metrics) PollerStopped() {
	if m == nil {
		return
	}
	m.ActivePollers.Dec()
}

// SetAvailable exports the available amount of an account.
func (m *Metrics) SetAvailable(account string, value float64) {
	if m == nil {
		return
	}
	m.SnapshotAvailable.WithLabelValues(account).Set(value)
}
