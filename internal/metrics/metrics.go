package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// Workflow actions by action and outcome (success, validation,
	// invalid_transition, in_flight, backend_error).
	Transitions *prometheus.CounterVec
	// Read failures recovered with defaults, by source (service, details, customer).
	ReadFallbacks *prometheus.CounterVec
	InvoiceTotal  prometheus.Histogram

	BackendRequests *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec
	RateLimited     prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_workflow_transitions_total",
		Help: "Workflow transitions attempted, by action and outcome.",
	}, []string{"action", "outcome"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_read_fallbacks_total",
		Help: "Service loads that fell back to placeholders, by failed source.",
	}, []string{"source"})
	invoiceTotal := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "desk_invoice_grand_total",
		Help:    "Grand totals of generated invoices.",
		Buckets: prometheus.ExponentialBuckets(100, 2, 12),
	})
	backendReqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_backend_requests_total",
		Help: "Requests sent to the backend, by method, endpoint and status code.",
	}, []string{"method", "endpoint", "code"})
	backendLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "desk_backend_request_seconds",
		Help:    "Backend request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "desk_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})

	r.MustRegister(transitions, fallbacks, invoiceTotal, backendReqs, backendLatency, rateLimited)
	return &Registry{
		reg:             r,
		Transitions:     transitions,
		ReadFallbacks:   fallbacks,
		InvoiceTotal:    invoiceTotal,
		BackendRequests: backendReqs,
		BackendLatency:  backendLatency,
		RateLimited:     rateLimited,
	}
}

// ObserveBackend records one backend call. A zero status means the request
// never got a response.
func (r *Registry) ObserveBackend(method, endpoint string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	r.BackendRequests.WithLabelValues(method, endpoint, code).Inc()
	r.BackendLatency.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
