// Package metrics exposes gateway, run, approval and batch counters in the
// Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelgate/internal/approval"
	"reelgate/internal/engine"
)

const namespace = "reelgate"

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsActive    prometheus.Gauge
	approvalsOpen *prometheus.CounterVec
	approvalsDone *prometheus.CounterVec
	approvalsSwept prometheus.Counter
	segments      *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "runs", Name: "started_total",
			Help: "Agent runs started, by specialist.",
		}, []string{"agent"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "runs", Name: "finished_total",
			Help: "Agent runs finished, by specialist and final state.",
		}, []string{"agent", "state"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "runs", Name: "duration_seconds",
			Help:    "Wall time of agent runs, including time spent awaiting approval.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
		}, []string{"agent"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "runs", Name: "active",
			Help: "Agent runs currently in progress.",
		}),
		approvalsOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "approvals", Name: "opened_total",
			Help: "Approval requests created, by tool.",
		}, []string{"tool"}),
		approvalsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "approvals", Name: "decided_total",
			Help: "Approval requests decided, by tool and status.",
		}, []string{"tool", "status"}),
		approvalsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "approvals", Name: "swept_total",
			Help: "Stale approval requests removed by cleanup.",
		}),
		segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "batch", Name: "segments_total",
			Help: "Batch segment tasks settled, by kind and status.",
		}, []string{"kind", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests served, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency. Streaming routes include the whole stream.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsStarted, m.runsFinished, m.runDuration, m.runsActive,
		m.approvalsOpen, m.approvalsDone, m.approvalsSwept,
		m.segments,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RunStarted implements engine.Recorder.
func (m *Metrics) RunStarted(agent string) {
	m.runsStarted.WithLabelValues(agent).Inc()
	m.runsActive.Inc()
}

// RunFinished implements engine.Recorder.
func (m *Metrics) RunFinished(agent string, state engine.State, elapsed time.Duration) {
	m.runsFinished.WithLabelValues(agent, string(state)).Inc()
	m.runDuration.WithLabelValues(agent).Observe(elapsed.Seconds())
	m.runsActive.Dec()
}

// ApprovalOpened implements approval.Recorder.
func (m *Metrics) ApprovalOpened(tool string) {
	m.approvalsOpen.WithLabelValues(tool).Inc()
}

// ApprovalDecided implements approval.Recorder.
func (m *Metrics) ApprovalDecided(tool string, status approval.Status) {
	m.approvalsDone.WithLabelValues(tool, string(status)).Inc()
}

// ApprovalsSwept implements approval.Recorder.
func (m *Metrics) ApprovalsSwept(n int) {
	m.approvalsSwept.Add(float64(n))
}

// SegmentFinished implements batch.Recorder.
func (m *Metrics) SegmentFinished(kind, status string) {
	m.segments.WithLabelValues(kind, status).Inc()
}

// ObserveHTTP records one served request. route is the matched route
// template, never the raw path.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
