package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsStarted     prometheus.Counter
	SessionsActive      prometheus.Gauge
	SchoolsScanned      *prometheus.CounterVec
	FetchesTotal        *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	TendersFound        *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "scanner_sessions_started_total",
			Help: "The total number of scan sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_sessions_active",
			Help: "Scan sessions currently running",
		}),
		SchoolsScanned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_schools_scanned_total",
			Help: "Schools processed, by outcome",
		}, []string{"status"}), // completed, error, skipped
		FetchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_fetches_total",
			Help: "Page fetches, by platform and outcome",
		}, []string{"platform", "outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanner_fetch_duration_seconds",
			Help:    "Duration of page fetches",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"platform"}),
		TendersFound: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_tenders_found_total",
			Help: "Tender candidates extracted, by platform and type",
		}, []string{"platform", "type"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanner_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionFinished() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) IncSchoolsScanned(status string) {
	if m == nil {
		return
	}
	m.SchoolsScanned.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveFetch(platform, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(platform, outcome).Inc()
	m.FetchDuration.WithLabelValues(platform).Observe(d.Seconds())
}

func (m *Metrics) IncTendersFound(platform, tenderType string) {
	if m == nil {
		return
	}
	m.TendersFound.WithLabelValues(platform, tenderType).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
