// Package metricsserver exposes Prometheus metrics and a health endpoint
// over plain net/http, in the teacher's ServeMux style (internal/server).
// Grounded on EdgeComet-engine's PrometheusMetrics for the metric shapes —
// fasthttp is not adopted here since the teacher's transport is net/http
// and nothing in this system is on a request-latency hot path that would
// justify the swap.
package metricsserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide scan counters and gauges, registered
// against their own Registry rather than prometheus's global default so a
// process (or a test) can construct more than one without a
// duplicate-registration panic.
type Metrics struct {
	Registry *prometheus.Registry

	ScansTotal        *prometheus.CounterVec
	ScanDuration      prometheus.Histogram
	ActiveScans       prometheus.Gauge
	ContentDedupTotal *prometheus.CounterVec
}

// New builds and registers a Metrics instance bound to namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "project_fish"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scan",
				Name:      "total",
				Help:      "Total scans processed, by outcome.",
			},
			[]string{"outcome"},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scan",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of a scan, from dispatch to ack/reject.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ActiveScans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scan",
				Name:      "active",
				Help:      "Scans currently in flight.",
			},
		),
		ContentDedupTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "content",
				Name:      "dedup_total",
				Help:      "Body/certificate puts, by whether they deduplicated against an existing hash.",
			},
			[]string{"kind", "result"},
		),
	}

	registry.MustRegister(m.ScansTotal, m.ScanDuration, m.ActiveScans, m.ContentDedupTotal)
	return m
}

// HealthCheck reports process liveness for the /healthz endpoint.
type HealthCheck func() error

// Server serves /metrics and /healthz.
type Server struct {
	mux *http.ServeMux
}

// NewServer wires a Server around m's registry. health may be nil, in
// which case /healthz always reports ok.
func NewServer(m *Metrics, health HealthCheck) *Server {
	s := &Server{mux: http.NewServeMux()}
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /healthz", s.handleHealth(health))
	return s
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(health HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// Handler returns the server's http.Handler for use in tests or a custom
// listener setup.
func (s *Server) Handler() http.Handler {
	return s.mux
}
