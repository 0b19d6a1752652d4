// Package telemetry exposes per-node Prometheus metrics for a running mesh.
package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
)

// Metrics holds all Prometheus collectors for one mesh. Each mesh owns its own registry,
// so several meshes can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	// Message metrics
	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	MessagesDelivered *prometheus.CounterVec
	MessagesForwarded *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec

	// Routing metrics
	Events        *prometheus.CounterVec
	RoutingTable  *prometheus.GaugeVec
	MergeDuration prometheus.Histogram

	// Node metrics
	InboxLength     *prometheus.GaugeVec
	DispatchLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with the given namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages originated by a node",
		}, []string{"node"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of envelopes accepted into a node's inbox",
		}, []string{"node"}),
		MessagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Total number of messages delivered to the local handler",
		}, []string{"node"}),
		MessagesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_forwarded_total",
			Help:      "Total number of messages forwarded towards their target",
		}, []string{"node"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped by reason",
		}, []string{"node", "reason"}),

		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total node events by type",
		}, []string{"node", "event"}),
		RoutingTable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routing_table_entries",
			Help:      "Current number of routing table entries",
		}, []string{"node"}),
		MergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Time spent merging neighbour advertisements",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),

		InboxLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbox_length",
			Help:      "Current number of envelopes waiting in a node's inbox",
		}, []string{"node"}),
		DispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Time spent running a dispatched function on a node's main loop",
			Buckets:   []float64{.00001, .0001, .001, .004, .01, .1},
		}, []string{"node"}),
	}
}

// RecordEvent counts a node event.
func (m *Metrics) RecordEvent(node, event string) {
	m.Events.WithLabelValues(node, event).Inc()
}

// RecordDrop counts a dropped message.
func (m *Metrics) RecordDrop(node, reason string) {
	m.MessagesDropped.WithLabelValues(node, reason).Inc()
}

// RecordMerge records one advertisement merge.
func (m *Metrics) RecordMerge(node string, routes int, duration time.Duration) {
	m.RoutingTable.WithLabelValues(node).Set(float64(routes))
	m.MergeDuration.Observe(duration.Seconds())
}

// RecordDispatch records a function run on a node's main loop.
func (m *Metrics) RecordDispatch(node string, duration time.Duration) {
	m.DispatchLatency.WithLabelValues(node).Observe(duration.Seconds())
}

// UpdateInbox updates the inbox gauge.
func (m *Metrics) UpdateInbox(node string, length int) {
	m.InboxLength.WithLabelValues(node).Set(float64(length))
}

// MetricsServer runs an HTTP server exposing the /metrics endpoint. Everything under /debug/ is
// served from http.DefaultServeMux, which carries expvar and the perf rate counters.
// MaxScrapeConns bounds the connections the metrics server handles at once
const MaxScrapeConns = 16

type MetricsServer struct {
	server *http.Server
	mux    *http.ServeMux
}

// NewMetricsServer creates a new metrics server on the given address.
func NewMetricsServer(addr string, m *Metrics) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))
	mux.Handle("/debug/", http.DefaultServeMux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		mux: mux,
	}
}

// Handle mounts an extra handler next to /metrics. It must be called before StartAsync.
func (s *MetricsServer) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// StartAsync starts the metrics server in a goroutine. Errors other than a normal shutdown are sent to errs.
func (s *MetricsServer) StartAsync(errs chan<- error) {
	go func() {
		err := s.serve()
		if err != nil && !errors.Is(err, http.ErrServerClosed) && errs != nil {
			errs <- err
		}
	}()
}

func (s *MetricsServer) serve() error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.server.Serve(netutil.LimitListener(l, MaxScrapeConns))
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
