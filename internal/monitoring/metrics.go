package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PagesFetched   *prometheus.CounterVec
	FetchErrors    *prometheus.CounterVec
	DomainCrawls   *prometheus.CounterVec
	CrawlDuration  prometheus.Histogram
	KeywordMatches prometheus.Counter
	EmitterEvents  *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	StoredResults  *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// NewMetrics registers the application metrics with reg. A nil registerer
// uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		PagesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_fetched_total",
			Help: "Pages fetched, by outcome.",
		}, []string{"outcome"}), // counted, filtered, failed
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_errors_total",
			Help: "Page fetch failures, by reason.",
		}, []string{"reason"}),
		DomainCrawls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_domain_crawls_total",
			Help: "Finished domain crawls, by terminal status.",
		}, []string{"status"}),
		CrawlDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "Duration of whole crawl requests.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		}),
		KeywordMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "crawler_keyword_matches_total",
			Help: "Keyword matches reported.",
		}),
		EmitterEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_emitter_events_total",
			Help: "Result emitter events, by result.",
		}, []string{"result"}), // published, dropped, failed, rejected
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crawler_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"service"}),
		StoredResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_stored_results_total",
			Help: "Results written by the storage consumer, by status.",
		}, []string{"status"}), // stored, undecodable, failed
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncFetchError(reason string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncDomain(status string) {
	if m == nil {
		return
	}
	m.DomainCrawls.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCrawl(d time.Duration) {
	if m == nil {
		return
	}
	m.CrawlDuration.Observe(d.Seconds())
}

func (m *Metrics) AddMatches(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.KeywordMatches.Add(float64(n))
}

func (m *Metrics) IncEmitter(result string) {
	if m == nil {
		return
	}
	m.EmitterEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBreakerState(service string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(service).Set(state)
}

func (m *Metrics) IncStored(status string) {
	if m == nil {
		return
	}
	m.StoredResults.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
