package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Identify outcomes.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeMerged           = "merged"
	OutcomeUnchanged        = "unchanged"
	OutcomeError            = "error"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	IdentifyTotal    *prometheus.CounterVec
	IdentifyDuration prometheus.Histogram
	ContactsRelinked prometheus.Counter
	LinkAnomalies    *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimited         prometheus.Counter
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IdentifyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_identify_total",
			Help: "Identify calls by outcome",
		}, []string{"outcome"}),
		IdentifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_identify_duration_seconds",
			Help:    "Time spent resolving one identify call, store I/O included",
			Buckets: prometheus.DefBuckets,
		}),
		ContactsRelinked: f.NewCounter(prometheus.CounterOpts{
			Name: "identity_contacts_relinked_total",
			Help: "Contacts rewritten onto a surviving primary during merges",
		}),
		LinkAnomalies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_link_anomalies_total",
			Help: "Corrupted link chains recovered while grouping contacts",
		}, []string{"kind"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identity_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "identity_http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
	}
}

// ObserveIdentify records one identify call.
func (m *Metrics) ObserveIdentify(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IdentifyTotal.WithLabelValues(outcome).Inc()
	m.IdentifyDuration.Observe(elapsed.Seconds())
}

// AddRelinked counts contacts moved onto a surviving primary.
func (m *Metrics) AddRelinked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ContactsRelinked.Add(float64(n))
}

// IncLinkAnomaly counts one recovered corrupted link ("cycle" or "dangling").
func (m *Metrics) IncLinkAnomaly(kind string) {
	if m == nil {
		return
	}
	m.LinkAnomalies.WithLabelValues(kind).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// IncRateLimited counts one throttled request.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
