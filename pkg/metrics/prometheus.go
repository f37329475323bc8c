package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	webhooks    *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	finished    *prometheus.CounterVec
	drops       *prometheus.CounterVec
	queueDepth  prometheus.Gauge
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered with reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		webhooks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhook_webhooks_total",
				Help: "Inbound webhook deliveries by gateway outcome",
			},
			[]string{"outcome"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhook_decisions_total",
				Help: "Consensus decisions by signal mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		finished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhook_events_finished_total",
				Help: "Ledger records reaching a terminal status",
			},
			[]string{"status", "test"},
		),
		drops: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhook_dispatch_dropped_total",
				Help: "Events dropped by per-bot queue backpressure",
			},
			[]string{"policy"},
		),
		queueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalhook_dispatch_queue_depth",
				Help: "Pending events across all bot queues",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhook_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalhook_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordWebhook counts a gateway outcome (accepted, duplicate, rejected, ...).
func (r *Recorder) RecordWebhook(outcome string) {
	r.webhooks.WithLabelValues(outcome).Inc()
}

// RecordDecision counts a consensus decision.
func (r *Recorder) RecordDecision(mode, outcome string) {
	r.decisions.WithLabelValues(mode, outcome).Inc()
}

// RecordEventFinished counts a terminal ledger transition.
func (r *Recorder) RecordEventFinished(status string, isTest bool) {
	r.finished.WithLabelValues(status, strconv.FormatBool(isTest)).Inc()
}

// RecordDrop counts a backpressure drop.
func (r *Recorder) RecordDrop(policy string) {
	r.drops.WithLabelValues(policy).Inc()
}

// RecordQueueDepth sets the number of events waiting in the dispatcher.
func (r *Recorder) RecordQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordWebhook(string)             {}
func (Nop) RecordDecision(string, string)    {}
func (Nop) RecordEventFinished(string, bool) {}
func (Nop) RecordDrop(string)                {}
func (Nop) RecordQueueDepth(int)             {}
func (Nop) RecordError(string)               {}
func (Nop) RecordLatency(string, float64)    {}
