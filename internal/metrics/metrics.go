// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cashly"

// Metrics groups every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	start    time.Time

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	receipts        *prometheus.CounterVec
	extraction      *prometheus.HistogramVec
	analyticsCache  *prometheus.CounterVec
	rateLimitHits   prometheus.Counter
	queuePublished  *prometheus.CounterVec
	exportedExpense *prometheus.CounterVec
	suspicious      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		start:    time.Now(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Receipts reaching a status.",
		}, []string{"status"}),
		extraction: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Latency of the receipt analysis call.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),
		analyticsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_cache_lookups_total",
			Help:      "Analytics snapshot cache lookups by result.",
		}, []string{"result"}),
		rateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		queuePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_total",
			Help:      "Receipt jobs published to or consumed from the queue.",
		}, []string{"direction", "outcome"}),
		exportedExpense: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_export_total",
			Help:      "Spreadsheet export attempts by outcome.",
		}, []string{"outcome"}),
		suspicious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_requests_total",
			Help:      "Requests matching a known probe or scanner pattern.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.receipts,
		m.extraction,
		m.analyticsCache,
		m.rateLimitHits,
		m.queuePublished,
		m.exportedExpense,
		m.suspicious,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started.",
		}, func() float64 { return time.Since(m.start).Seconds() }),
	)
	return m
}

// RegisterGauge exposes a value sampled at scrape time, such as a cache size.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ReceiptStatus(status string) {
	m.receipts.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveExtraction(outcome string, d time.Duration) {
	m.extraction.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) AnalyticsCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.analyticsCache.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited() {
	m.rateLimitHits.Inc()
}

func (m *Metrics) Queue(direction, outcome string) {
	m.queuePublished.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) SheetsExport(outcome string) {
	m.exportedExpense.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SuspiciousRequest() {
	m.suspicious.Inc()
}
