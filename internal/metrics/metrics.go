// Package metrics wires the relay core's golden signals into Prometheus:
// terminal-outcome counters, an active-session gauge, and a
// time-to-first-byte histogram, generalized from this codebase's
// session manager metrics (promauto counter/histogram vectors keyed by
// outcome reason).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns one registerer's worth of relay metrics. Unlike a single
// package-level global, each SessionManager constructs its own Recorder
// against its own prometheus.Registerer so that multiple managers (as in
// tests, which create one manager per test case) never collide on
// duplicate metric registration.
type Recorder struct {
	terminalTotal    *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	ttfb             prometheus.Histogram
	capacityRejected prometheus.Counter
}

// NewRecorder registers the relay metrics against reg. Pass
// prometheus.NewRegistry() in tests, or a service's shared registerer in
// production.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		terminalTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_session_terminal_total",
				Help: "Total sessions reaching a terminal state, by reason.",
			},
			[]string{"reason"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_sessions_active",
				Help: "Number of sessions currently active (non-terminal).",
			},
		),
		ttfb: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_time_to_first_byte_seconds",
				Help:    "Time from STREAMING entry to the first byte accepted by the destination.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		capacityRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_capacity_rejections_total",
				Help: "Total CreateSession calls rejected because MaxActiveSessions was reached.",
			},
		),
	}
}

// RecordTerminal increments the terminal-outcome counter for reason.
func (r *Recorder) RecordTerminal(reason string) {
	if r == nil {
		return
	}
	r.terminalTotal.WithLabelValues(reason).Inc()
}

// SetActiveSessions sets the active-session gauge to n.
func (r *Recorder) SetActiveSessions(n int) {
	if r == nil {
		return
	}
	r.activeSessions.Set(float64(n))
}

// IncActiveSessions adjusts the active-session gauge by delta.
func (r *Recorder) IncActiveSessions(delta float64) {
	if r == nil {
		return
	}
	r.activeSessions.Add(delta)
}

// ObserveTTFB records the duration from STREAMING entry to first byte.
func (r *Recorder) ObserveTTFB(d time.Duration) {
	if r == nil {
		return
	}
	r.ttfb.Observe(d.Seconds())
}

// IncCapacityRejections increments the capacity-rejection counter.
func (r *Recorder) IncCapacityRejections() {
	if r == nil {
		return
	}
	r.capacityRejected.Inc()
}
