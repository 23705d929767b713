package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "posclient"

// Metrics holds the collectors of one client process.
type Metrics struct {
	registry *prometheus.Registry

	erpRequests  *prometheus.CounterVec
	erpLatency   *prometheus.HistogramVec
	syncRuns     *prometheus.CounterVec
	sectionRows  *prometheus.GaugeVec
	outboxResult *prometheus.CounterVec
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		erpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "erp_requests_total",
			Help:      "Requests sent to the ERP backend.",
		}, []string{"method", "status"}),
		erpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "erp_request_duration_seconds",
			Help:      "ERP request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		syncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Snapshot sync runs by result.",
		}, []string{"result"}),
		sectionRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_section_rows",
			Help:      "Rows fetched and persisted per section in the last sync.",
		}, []string{"section", "stage"}),
		outboxResult: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_entries_total",
			Help:      "Outbox push outcomes.",
		}, []string{"outcome"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by result.",
		}, []string{"job", "result"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"job"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveERPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.erpRequests.WithLabelValues(method, statusLabel(status)).Inc()
	m.erpLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) SyncRun(ok bool) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) SectionFetched(section string, n int) {
	if m == nil {
		return
	}
	m.sectionRows.WithLabelValues(section, "fetched").Set(float64(n))
}

func (m *Metrics) SectionPersisted(section string, n int) {
	if m == nil {
		return
	}
	m.sectionRows.WithLabelValues(section, "persisted").Set(float64(n))
}

// OutboxOutcomes adds one push report.
func (m *Metrics) OutboxOutcomes(synced, failed, conflicts int) {
	if m == nil {
		return
	}
	m.outboxResult.WithLabelValues("synced").Add(float64(synced))
	m.outboxResult.WithLabelValues("failed").Add(float64(failed))
	m.outboxResult.WithLabelValues("conflict").Add(float64(conflicts))
}

func (m *Metrics) JobRun(job string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, resultLabel(ok)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
