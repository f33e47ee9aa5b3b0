// Package metrics holds the Prometheus collectors shared across the
// dispatcher and accountant, registered once at process start and
// served by internal/diagnostics' /metrics handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector SNRR records against.
type Metrics struct {
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	AccountantFailures *prometheus.CounterVec
	AccountantDrops    *prometheus.CounterVec
}

// Default is the process-wide collector set. Every component records
// against it rather than threading a *Metrics through every
// constructor, matching how this codebase treats metrics as ambient
// infrastructure rather than an injected dependency.
var Default = New()

// New builds and registers a fresh Metrics set.
func New() *Metrics {
	return &Metrics{
		DispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snrr_dispatch_total",
				Help: "Total number of per-layer sub-requests the dispatcher issued",
			},
			[]string{"layer", "outcome"}, // outcome: success, error, timeout, incomplete
		),
		DispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snrr_dispatch_duration_seconds",
				Help:    "Duration of a single per-layer sub-request",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"layer"},
		),
		AccountantFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snrr_accountant_failures_total",
				Help: "Total consecutive-failure increments recorded against a snode",
			},
			[]string{"snode"},
		),
		AccountantDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snrr_accountant_drops_total",
				Help: "Total snode drops and swarm invalidations the accountant decided",
			},
			[]string{"reason"}, // reason: pool_threshold, 421_invalidate, 421_replace, 406_nonretryable
		),
	}
}

// RecordDispatch records one sub-request's outcome and wall-clock cost.
func (m *Metrics) RecordDispatch(layer, outcome string, seconds float64) {
	m.DispatchTotal.WithLabelValues(layer, outcome).Inc()
	m.DispatchDuration.WithLabelValues(layer).Observe(seconds)
}

// RecordFailure records one consecutive-failure increment against snode.
func (m *Metrics) RecordFailure(snode string) {
	m.AccountantFailures.WithLabelValues(snode).Inc()
}

// RecordDrop records a drop/invalidate decision for reason.
func (m *Metrics) RecordDrop(reason string) {
	m.AccountantDrops.WithLabelValues(reason).Inc()
}
