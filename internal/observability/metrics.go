package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects run, transport, and dispatch metrics on a private registry.
// All methods are safe on a nil receiver so callers can leave metrics off.
type Metrics struct {
	registry *prometheus.Registry

	// RunsTotal counts finished runs.
	// Labels: reason (completed|budget_exhausted|transport_error|...)
	RunsTotal *prometheus.CounterVec

	// Iterations counts model round trips across all runs.
	Iterations prometheus.Counter

	// TransportRequests counts model requests.
	// Labels: provider, status (success|retryable|error)
	TransportRequests *prometheus.CounterVec

	// TransportRetries counts retry sleeps.
	// Labels: provider
	TransportRetries *prometheus.CounterVec

	// TransportDuration measures model request latency in seconds.
	// Labels: provider
	TransportDuration *prometheus.HistogramVec

	// ToolDispatches counts dispatched tool calls.
	// Labels: tool, outcome (executed|denied|failed|unknown|observed)
	ToolDispatches *prometheus.CounterVec

	// ToolDuration measures dispatch time including settle and capture.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// ObservationBytes tracks encoded frame sizes.
	ObservationBytes prometheus.Histogram
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_runs_total",
			Help: "Finished runs by termination reason",
		}, []string{"reason"}),
		Iterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "deskpilot_iterations_total",
			Help: "Model round trips",
		}),
		TransportRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_transport_requests_total",
			Help: "Model requests by provider and status",
		}, []string{"provider", "status"}),
		TransportRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_transport_retries_total",
			Help: "Model request retries",
		}, []string{"provider"}),
		TransportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deskpilot_transport_request_duration_seconds",
			Help:    "Model request latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		}, []string{"provider"}),
		ToolDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_tool_dispatches_total",
			Help: "Tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deskpilot_tool_dispatch_duration_seconds",
			Help:    "Tool dispatch latency including settle and capture",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"tool"}),
		ObservationBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "deskpilot_observation_bytes",
			Help:    "Encoded frame size",
			Buckets: prometheus.ExponentialBuckets(16<<10, 2, 8),
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(reason string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(reason).Inc()
}

// RecordIteration counts one model round trip.
func (m *Metrics) RecordIteration() {
	if m == nil {
		return
	}
	m.Iterations.Inc()
}

// RecordRequest counts one model request attempt.
func (m *Metrics) RecordRequest(provider, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TransportRequests.WithLabelValues(provider, status).Inc()
	m.TransportDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordRetry counts one retry sleep.
func (m *Metrics) RecordRetry(provider string) {
	if m == nil {
		return
	}
	m.TransportRetries.WithLabelValues(provider).Inc()
}

// RecordDispatch counts one tool call.
func (m *Metrics) RecordDispatch(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolDispatches.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordObservation tracks an encoded frame size.
func (m *Metrics) RecordObservation(bytes int) {
	if m == nil {
		return
	}
	m.ObservationBytes.Observe(float64(bytes))
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
