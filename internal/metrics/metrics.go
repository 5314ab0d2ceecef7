// Package metrics holds the Prometheus instruments of the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "botrelay"

// Decode error reasons.
const (
	ReasonMalformed    = "malformed"
	ReasonMissingField = "missing_field"
)

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RelayMetrics holds the counters of the routing engine and the transport.
type RelayMetrics struct {
	ActiveConnections prometheus.Gauge
	BotsOnline        prometheus.Gauge
	FramesReceived    prometheus.Counter
	FramesRelayed     prometheus.Counter
	DeliveriesDropped prometheus.Counter
	DecodeErrors      *prometheus.CounterVec
	SinkFailures      prometheus.Counter
	DisconnectNotices prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open WebSocket connections.",
		}),
		BotsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bots_online",
			Help:      "Number of connections bound to a bot id.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Audio frames accepted from bots.",
		}),
		FramesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Audio frames queued to subscribers, one per recipient.",
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Sends skipped because the subscriber was closed or too slow.",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound messages dropped by the codec.",
		}, []string{"reason"}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed appends to the persistence sink.",
		}),
		DisconnectNotices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnect_notices_total",
			Help:      "bot_disconnected notices queued to subscribers.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.BotsOnline,
		m.FramesReceived,
		m.FramesRelayed,
		m.DeliveriesDropped,
		m.DecodeErrors,
		m.SinkFailures,
		m.DisconnectNotices,
	)
	return m
}
