package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the sync client's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionPhase *prometheus.GaugeVec
	ReconnectsTotal prometheus.Counter
	ReconnectDelay  prometheus.Histogram

	// Event metrics
	EventsRouted  *prometheus.CounterVec
	EventsDropped *prometheus.CounterVec

	// Optimistic task actions
	TaskActions *prometheus.CounterVec
}

var phases = []string{"disconnected", "connecting", "connected"}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// 1 for the current phase, 0 for the others
		ConnectionPhase: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flora_sync_connection_phase",
			Help: "Realtime connection phase (1 = current)",
		}, []string{"phase"}),

		ReconnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "flora_sync_reconnects_scheduled_total",
			Help: "Total number of reconnects scheduled after a lost connection",
		}),

		ReconnectDelay: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flora_sync_reconnect_delay_seconds",
			Help:    "Backoff delay chosen for scheduled reconnects",
			Buckets: []float64{1, 2, 4, 8, 16, 30},
		}),

		EventsRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flora_sync_events_routed_total",
			Help: "Inbound events reconciled into the local caches, by kind",
		}, []string{"kind"}),

		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flora_sync_events_dropped_total",
			Help: "Inbound events dropped, by kind and reason",
		}, []string{"kind", "reason"}),

		TaskActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flora_sync_task_actions_total",
			Help: "Optimistic task actions by action and outcome",
		}, []string{"action", "outcome"}),
	}
}

// Registry exposes the registry, e.g. to add GaugeFuncs.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordConnectionPhase marks phase as current
func (m *Metrics) RecordConnectionPhase(phase string) {
	if m == nil {
		return
	}
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.ConnectionPhase.WithLabelValues(p).Set(v)
	}
}

// RecordReconnectScheduled records a backoff retry
func (m *Metrics) RecordReconnectScheduled(delay time.Duration) {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
	m.ReconnectDelay.Observe(delay.Seconds())
}

// RecordEventRouted records a reconciled event
func (m *Metrics) RecordEventRouted(kind string) {
	if m == nil {
		return
	}
	m.EventsRouted.WithLabelValues(kind).Inc()
}

// RecordEventDropped records a dropped event
func (m *Metrics) RecordEventDropped(kind, reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(kind, reason).Inc()
}

// RecordOptimisticOutcome records how a task action ended
func (m *Metrics) RecordOptimisticOutcome(action, outcome string) {
	if m == nil {
		return
	}
	m.TaskActions.WithLabelValues(action, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
