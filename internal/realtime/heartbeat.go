package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/briankwest/imglink/internal/adapter/metrics"
	"github.com/briankwest/imglink/internal/domain"
)

type heartbeatEntry struct {
	connID  uuid.UUID
	lastAck time.Time
}

// HeartbeatMonitor probes every connection on a fixed interval and evicts
// those that have not acked within twice the interval. It is the only
// mechanism that reclaims connections whose peers vanished without a close
// frame; clean closes unregister immediately via the gateway read loop.
type HeartbeatMonitor struct {
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.RealtimeMetrics

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewHeartbeatMonitor(registry *Registry, clock clockwork.Clock, interval time.Duration, m *metrics.RealtimeMetrics) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		registry: registry,
		clock:    clock,
		interval: interval,
		metrics:  m,
		done:     make(chan struct{}),
	}
}

// Start launches the probe loop. Stop cancels it.
func (h *HeartbeatMonitor) Start() {
	h.wg.Add(1)
	go h.run()
}

func (h *HeartbeatMonitor) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

func (h *HeartbeatMonitor) run() {
	defer h.wg.Done()

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	probe, _ := json.Marshal(domain.Envelope{Type: domain.EventHeartbeat})

	for {
		select {
		case <-ticker.Chan():
			h.tick(probe)
		case <-h.done:
			return
		}
	}
}

func (h *HeartbeatMonitor) tick(probe []byte) {
	timeout := 2 * h.interval
	now := h.clock.Now()

	for _, entry := range h.registry.heartbeatSnapshot() {
		if now.Sub(entry.lastAck) >= timeout {
			slog.Warn("evicting silent connection",
				"connection_id", entry.connID,
				"last_ack", entry.lastAck,
			)
			if h.metrics != nil {
				h.metrics.HeartbeatEvictions.Inc()
			}
			h.registry.Evict(entry.connID, websocket.ClosePolicyViolation, "heartbeat timeout")
			continue
		}

		// A full queue here is handled like any other send overflow:
		// the next publish or probe cycle evicts the connection.
		h.registry.Send(entry.connID, probe)
	}
}
