// Package metrics holds the Prometheus collectors shared by ingestion, the
// scanner and the HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atomicnexus"

// Metrics is the set of collectors. A nil *Metrics is valid and records
// nothing, so components can run without a registry in tests.
type Metrics struct {
	ScanCycles   *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	Candidates   *prometheus.CounterVec
	Plans        prometheus.Counter
	PlanProfit   prometheus.Gauge
	EdgeBps      *prometheus.GaugeVec
	IngestEvents *prometheus.CounterVec
	IngestErrors *prometheus.CounterVec
	HeadBlock    prometheus.Gauge
	Reconnects   prometheus.Counter
	BreakerState *prometheus.GaugeVec
	ArchivedRows *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
	gatherer     prometheus.Gatherer
}

// New registers every collector with reg. A fresh registry is created when reg
// is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		ScanCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "cycles_total",
			Help: "Scan cycles by outcome.",
		}, []string{"outcome"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scan", Name: "cycle_seconds",
			Help:    "Duration of completed scan cycles.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		Candidates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "candidates_total",
			Help: "Detected candidates by direction.",
		}, []string{"direction"}),
		Plans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "plans_total",
			Help: "Plans built by the optimizer.",
		}),
		PlanProfit: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scan", Name: "last_plan_profit",
			Help: "Expected profit of the last plan in display units of the quote token.",
		}),
		EdgeBps: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scan", Name: "edge_bps",
			Help: "Latest fee-adjusted edge per direction.",
		}, []string{"direction"}),
		IngestEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "events_total",
			Help: "Applied pool logs by event type.",
		}, []string{"type"}),
		IngestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "errors_total",
			Help: "Ingestion failures by stage.",
		}, []string{"stage"}),
		HeadBlock: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "head_block",
			Help: "Last block number seen by ingestion.",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "reconnects_total",
			Help: "RPC subscription reconnects.",
		}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"breaker"}),
		ArchivedRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "archive", Name: "rows_total",
			Help: "Rows moved to object storage by kind.",
		}, []string{"kind"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_seconds",
			Help:    "HTTP request latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ScanOutcome counts one cycle.
func (m *Metrics) ScanOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ScanCycles.WithLabelValues(outcome).Inc()
}

// ObserveScan records the duration of a completed cycle.
func (m *Metrics) ObserveScan(seconds float64) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(seconds)
}

// CandidateDetected counts a candidate.
func (m *Metrics) CandidateDetected(direction string) {
	if m == nil {
		return
	}
	m.Candidates.WithLabelValues(direction).Inc()
}

// Edge records the latest edge of a direction.
func (m *Metrics) Edge(direction string, bps int64) {
	if m == nil {
		return
	}
	m.EdgeBps.WithLabelValues(direction).Set(float64(bps))
}

// PlanBuilt counts a plan and records its expected profit.
func (m *Metrics) PlanBuilt(profit float64) {
	if m == nil {
		return
	}
	m.Plans.Inc()
	m.PlanProfit.Set(profit)
}

// IngestEvent counts one applied log.
func (m *Metrics) IngestEvent(eventType string) {
	if m == nil {
		return
	}
	m.IngestEvents.WithLabelValues(eventType).Inc()
}

// IngestError counts a failure at stage.
func (m *Metrics) IngestError(stage string) {
	if m == nil {
		return
	}
	m.IngestErrors.WithLabelValues(stage).Inc()
}

// Head records the latest block.
func (m *Metrics) Head(block uint64) {
	if m == nil {
		return
	}
	m.HeadBlock.Set(float64(block))
}

// Reconnected counts a subscription reconnect.
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// Breaker records a circuit breaker transition.
func (m *Metrics) Breaker(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// Archived counts rows moved to cold storage.
func (m *Metrics) Archived(kind string, rows int64) {
	if m == nil {
		return
	}
	m.ArchivedRows.WithLabelValues(kind).Add(float64(rows))
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, status).Inc()
	m.HTTPLatency.WithLabelValues(method).Observe(seconds)
}
