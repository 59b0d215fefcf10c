package realtime

import (
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/briankwest/imglink/internal/adapter/metrics"
	"github.com/briankwest/imglink/internal/domain"
)

// Dispatcher fans domain events out to room members. Publishing never blocks
// the caller: each recipient gets a non-blocking enqueue, and a recipient
// whose queue overflows is evicted instead of applying backpressure.
type Dispatcher struct {
	registry *Registry
	metrics  *metrics.RealtimeMetrics
}

func NewDispatcher(registry *Registry, m *metrics.RealtimeMetrics) *Dispatcher {
	return &Dispatcher{registry: registry, metrics: m}
}

// Publish delivers an event to every member of its room except the origin
// connection. A room with no members is a success no-op; the durable fact
// behind the event was already committed by the REST write path. A failure
// to reach one member never aborts delivery to the others.
func (d *Dispatcher) Publish(event domain.Event) {
	if d.metrics != nil {
		d.metrics.EventsPublished.Inc()
	}

	payload, err := json.Marshal(event.Envelope)
	if err != nil {
		// Envelopes are built from our own types; this indicates a bug,
		// not a client problem.
		slog.Error("failed to marshal event envelope", "type", event.Envelope.Type, "error", err)
		return
	}

	delivered, dropped := d.registry.deliver(event.Room, payload, event.Origin)

	if d.metrics != nil {
		d.metrics.EventsDelivered.Add(float64(len(delivered)))
		d.metrics.DeliveriesDropped.Add(float64(len(dropped)))
	}

	for _, connID := range dropped {
		slog.Warn("dropping slow connection",
			"connection_id", connID,
			"room", event.Room,
			"type", event.Envelope.Type,
		)
		d.registry.Evict(connID, websocket.ClosePolicyViolation, "send queue overflow")
	}
}
