// Package metrics wires the pool's lifecycle into Prometheus, grounded
// on ChuLiYu-raft-recovery's internal/metrics.Collector (a field-per-metric
// struct built from prometheus.New* constructors, registered once at
// construction). Unlike that teacher, registration targets a caller-owned
// prometheus.Registerer instead of the global default registry, so a
// process embedding more than one pool doesn't collide on metric names.
package metrics

import (
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks the pool's request traffic and worker readiness.
type Collector struct {
	requestsSent     *prometheus.CounterVec
	requestsTimedOut *prometheus.CounterVec
	workersReady     prometheus.Gauge
	requestLatency   *prometheus.HistogramVec
}

// NewCollector builds a Collector and registers its metrics against reg.
// A nil reg skips registration entirely, so tests and demos can build a
// Collector without a Prometheus registry present.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_pool_requests_sent_total",
			Help: "Total control requests sent to worker runtimes, by action.",
		}, []string{"action"}),
		requestsTimedOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_pool_requests_timed_out_total",
			Help: "Total control requests that timed out waiting for a response, by action.",
		}, []string{"action"}),
		workersReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "test_pool_workers_ready",
			Help: "Current number of workers that have completed their ready handshake.",
		}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "test_pool_request_latency_seconds",
			Help:    "Control request round-trip latency, by action.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
	}

	if reg != nil {
		reg.MustRegister(c.requestsSent, c.requestsTimedOut, c.workersReady, c.requestLatency)
	}

	return c
}

// RecordSent increments the sent counter for action.
func (c *Collector) RecordSent(action string) {
	c.requestsSent.WithLabelValues(action).Inc()
}

// RecordTimeout increments the timeout counter for action.
func (c *Collector) RecordTimeout(action string) {
	c.requestsTimedOut.WithLabelValues(action).Inc()
}

// RecordLatency observes the round-trip latency for action.
func (c *Collector) RecordLatency(action string, d time.Duration) {
	c.requestLatency.WithLabelValues(action).Observe(d.Seconds())
}

// WorkerReady adjusts the ready-worker gauge by delta. Callers increment
// by 1 on handshake completion and decrement by 1 on Stop, but only for a
// worker that actually reached the ready state first.
func (c *Collector) WorkerReady(delta float64) {
	c.workersReady.Add(delta)
}

// WorkersReadyValue reads the current value of the ready-worker gauge.
// Exposed for tests asserting the gauge never goes negative or out of
// sync with the number of workers actually in stateReady.
func (c *Collector) WorkersReadyValue() float64 {
	var m dto.Metric
	_ = c.workersReady.Write(&m)
	return m.GetGauge().GetValue()
}

// Noop returns a Collector that was never registered, for callers that
// don't want metrics wired in: its values still update but are exported
// nowhere.
func Noop() *Collector {
	return NewCollector(nil)
}
