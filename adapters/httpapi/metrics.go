package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"cellscope/domain/flags"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the API's prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	flags    *prometheus.CounterVec
}

// NewMetrics registers the request and anomaly collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellscope",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cellscope",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		flags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellscope",
			Name:      "anomaly_flags_total",
			Help:      "Anomaly flags returned by analysis endpoints, by severity.",
		}, []string{"severity"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.flags,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records one observation per request, labelled by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeFlags(fs []flags.Flag) {
	for _, f := range fs {
		m.flags.WithLabelValues(string(f.Severity)).Inc()
	}
}

func (m *Metrics) observeSummary(sum flags.Summary) {
	for sev, n := range map[flags.Severity]int{
		flags.SeverityCritical: sum.Critical,
		flags.SeverityWarning:  sum.Warning,
		flags.SeverityInfo:     sum.Info,
	} {
		if n > 0 {
			m.flags.WithLabelValues(string(sev)).Add(float64(n))
		}
	}
}
