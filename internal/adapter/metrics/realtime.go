package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics holds Prometheus metrics for the realtime push layer.
type RealtimeMetrics struct {
	ActiveConnections  prometheus.Gauge
	EventsPublished    prometheus.Counter
	EventsDelivered    prometheus.Counter
	DeliveriesDropped  prometheus.Counter
	HeartbeatEvictions prometheus.Counter
	AuthFailures       prometheus.Counter
}

// NewRealtimeMetrics creates and registers realtime metrics on the given registry.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	m := &RealtimeMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "active_connections",
			Help:      "Number of registered websocket connections.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_published_total",
			Help:      "Total number of events handed to the dispatcher.",
		}),
		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_delivered_total",
			Help:      "Total number of per-recipient event deliveries.",
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "deliveries_dropped_total",
			Help:      "Total number of recipients dropped due to full send queues or closed transports.",
		}),
		HeartbeatEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "heartbeat_evictions_total",
			Help:      "Total number of connections evicted for missing heartbeat acks.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "auth_failures_total",
			Help:      "Total number of websocket handshakes rejected for bad tokens.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.EventsPublished,
		m.EventsDelivered,
		m.DeliveriesDropped,
		m.HeartbeatEvictions,
		m.AuthFailures,
	)
	return m
}
