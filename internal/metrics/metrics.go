// Package metrics exposes prometheus instrumentation for the entitlement
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

// Module provides the registry and recorder.
var Module = fx.Module("metrics",
	fx.Provide(NewRegistry),
	fx.Provide(NewRecorder),
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

// Recorder counts gate activity. All methods are nil-safe so callers can
// treat the recorder as optional.
type Recorder struct {
	decisions        *prometheus.CounterVec
	overageCents     *prometheus.CounterVec
	trackingFailures prometheus.Counter
	checkDuration    prometheus.Histogram
}

func NewRecorder(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_gate_decisions_total",
			Help: "Feature gate verdicts by feature and outcome.",
		}, []string{"feature", "outcome"}),
		overageCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_overage_billed_cents_total",
			Help: "Billed overage in minor currency units by feature.",
		}, []string{"feature"}),
		trackingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeboard_usage_tracking_failures_total",
			Help: "Usage tracking writes that failed and were logged only.",
		}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeboard_gate_check_duration_seconds",
			Help:    "Latency of gate decisions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.decisions, r.overageCents, r.trackingFailures, r.checkDuration)
	return r
}

func (r *Recorder) RecordDecision(feature, outcome string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(feature, outcome).Inc()
}

func (r *Recorder) RecordOverageBilled(feature string, cents int64) {
	if r == nil || cents <= 0 {
		return
	}
	r.overageCents.WithLabelValues(feature).Add(float64(cents))
}

func (r *Recorder) RecordTrackingFailure() {
	if r == nil {
		return
	}
	r.trackingFailures.Inc()
}

func (r *Recorder) ObserveCheckDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.checkDuration.Observe(d.Seconds())
}
