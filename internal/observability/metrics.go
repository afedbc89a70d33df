package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// breakerStateValues maps breaker state names to gauge values.
var breakerStateValues = map[string]float64{
	"CLOSED":    0,
	"OPEN":      1,
	"HALF_OPEN": 2,
}

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	dispatchTotal      *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payflow_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	dispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_dispatch_total",
		Help: "Provider dispatch outcomes by provider and operation.",
	}, []string{"provider", "operation", "outcome"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payflow_breaker_state",
		Help: "Circuit breaker state per downstream (0=closed, 1=open, 2=half-open).",
	}, []string{"downstream"})
	breakerTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_breaker_transitions_total",
		Help: "Circuit breaker transitions per downstream.",
	}, []string{"downstream", "from", "to"})
	registry.MustRegister(requests, duration, dispatch, breakerState, breakerTransitions)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		dispatchTotal:      dispatch,
		breakerState:       breakerState,
		breakerTransitions: breakerTransitions,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and duration for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDispatch counts one provider dispatch outcome.
func (m *Metrics) ObserveDispatch(provider, operation, outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(provider, operation, outcome).Inc()
}

// BreakerTransition records a breaker state change and updates the state
// gauge.
func (m *Metrics) BreakerTransition(downstream, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(downstream, from, to).Inc()
	if value, ok := breakerStateValues[to]; ok {
		m.breakerState.WithLabelValues(downstream).Set(value)
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
