package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/briankwest/imglink/internal/adapter/metrics"
	"github.com/briankwest/imglink/internal/domain"
)

// Connection is one live websocket, owned exclusively by the Registry.
// The room table holds only its ID, never the struct.
type Connection struct {
	ID        uuid.UUID
	UserID    int64
	CreatedAt time.Time

	// lastAck is the time of the most recent heartbeat ack, guarded by the
	// registry mutex like the membership maps.
	lastAck time.Time
	rooms   map[domain.RoomKey]struct{}
	writer  *connWriter
}

// Registry tracks every live connection and the room table. One mutex guards
// both, so the bidirectional membership invariant cannot be observed broken.
type Registry struct {
	mu     sync.Mutex
	closed bool

	conns  map[uuid.UUID]*Connection
	rooms  map[domain.RoomKey]map[uuid.UUID]struct{}
	byUser map[int64]int // live connection count per user

	clock      clockwork.Clock
	bufferSize int
	maxConns   int
	metrics    *metrics.RealtimeMetrics

	// onUserOnline fires when a user's first connection registers,
	// onUserOffline when their last one goes away. Both are invoked outside
	// the registry lock.
	onUserOnline  func(userID int64)
	onUserOffline func(userID int64)
}

// RegistryConfig carries the knobs for NewRegistry.
type RegistryConfig struct {
	Clock          clockwork.Clock
	SendBufferSize int
	MaxConnections int
	Metrics        *metrics.RealtimeMetrics
	OnUserOnline   func(userID int64)
	OnUserOffline  func(userID int64)
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 64
	}
	return &Registry{
		conns:         make(map[uuid.UUID]*Connection),
		rooms:         make(map[domain.RoomKey]map[uuid.UUID]struct{}),
		byUser:        make(map[int64]int),
		clock:         cfg.Clock,
		bufferSize:    cfg.SendBufferSize,
		maxConns:      cfg.MaxConnections,
		metrics:       cfg.Metrics,
		onUserOnline:  cfg.OnUserOnline,
		onUserOffline: cfg.OnUserOffline,
	}
}

// Register creates a connection for an authenticated user and implicitly
// joins it to the user's private notification room, so notifications always
// have a home.
func (r *Registry) Register(userID int64, transport Transport) (*Connection, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return nil, domain.ErrRegistryClosed
	}
	if r.maxConns > 0 && len(r.conns) >= r.maxConns {
		r.mu.Unlock()
		return nil, domain.ErrRegistryFull
	}

	now := r.clock.Now()
	conn := &Connection{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		lastAck:   now,
		rooms:     make(map[domain.RoomKey]struct{}),
		writer:    newConnWriter(transport, r.clock, r.bufferSize),
	}
	r.conns[conn.ID] = conn
	r.byUser[userID]++
	firstOfUser := r.byUser[userID] == 1

	r.joinLocked(conn, domain.UserRoom(userID))

	if r.metrics != nil {
		r.metrics.ActiveConnections.Inc()
	}
	r.mu.Unlock()

	if firstOfUser && r.onUserOnline != nil {
		r.onUserOnline(userID)
	}

	slog.Info("connection registered", "connection_id", conn.ID, "user_id", userID)
	return conn, nil
}

// Unregister removes a connection, releases it from every room, and closes
// its transport. Rooms whose membership reaches zero are deleted.
func (r *Registry) Unregister(connID uuid.UUID) {
	r.unregister(connID, nil)
}

// Evict removes a connection like Unregister, but first sends a close frame
// with the given code and reason.
func (r *Registry) Evict(connID uuid.UUID, code int, reason string) {
	r.unregister(connID, func(cw *connWriter) { cw.stopWithClose(code, reason) })
}

func (r *Registry) unregister(connID uuid.UUID, stop func(*connWriter)) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}

	for key := range conn.rooms {
		r.leaveLocked(conn, key)
	}
	delete(r.conns, connID)

	r.byUser[conn.UserID]--
	lastOfUser := r.byUser[conn.UserID] == 0
	if lastOfUser {
		delete(r.byUser, conn.UserID)
	}

	if r.metrics != nil {
		r.metrics.ActiveConnections.Dec()
	}
	r.mu.Unlock()

	if stop != nil {
		stop(conn.writer)
	} else {
		conn.writer.stop()
	}

	if lastOfUser && r.onUserOffline != nil {
		r.onUserOffline(conn.UserID)
	}

	slog.Info("connection unregistered", "connection_id", connID, "user_id", conn.UserID)
}

// Lookup returns the connection for an ID, or nil if it is not registered.
func (r *Registry) Lookup(connID uuid.UUID) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[connID]
}

// Join subscribes a connection to a room. Joining a room the connection
// already belongs to is a no-op.
func (r *Registry) Join(connID uuid.UUID, key domain.RoomKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	r.joinLocked(conn, key)
	return nil
}

// Leave unsubscribes a connection from a room. Leaving a room the connection
// does not belong to is a no-op.
func (r *Registry) Leave(connID uuid.UUID, key domain.RoomKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	r.leaveLocked(conn, key)
	return nil
}

func (r *Registry) joinLocked(conn *Connection, key domain.RoomKey) {
	if _, ok := conn.rooms[key]; ok {
		return
	}
	members, ok := r.rooms[key]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		r.rooms[key] = members
	}
	members[conn.ID] = struct{}{}
	conn.rooms[key] = struct{}{}
}

func (r *Registry) leaveLocked(conn *Connection, key domain.RoomKey) {
	if _, ok := conn.rooms[key]; !ok {
		return
	}
	delete(conn.rooms, key)

	members := r.rooms[key]
	delete(members, conn.ID)
	if len(members) == 0 {
		delete(r.rooms, key)
	}
}

// MembersOf returns the connection IDs currently subscribed to a room.
func (r *Registry) MembersOf(key domain.RoomKey) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[key]
	ids := make([]uuid.UUID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Rooms returns the room keys a connection is subscribed to.
func (r *Registry) Rooms(connID uuid.UUID) []domain.RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil
	}
	keys := make([]domain.RoomKey, 0, len(conn.rooms))
	for key := range conn.rooms {
		keys = append(keys, key)
	}
	return keys
}

// RecordHeartbeatAck marks the connection alive for the heartbeat monitor.
func (r *Registry) RecordHeartbeatAck(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connID]; ok {
		conn.lastAck = r.clock.Now()
	}
}

// Send enqueues a frame to one connection without blocking. False means the
// queue was full or the writer already stopped.
func (r *Registry) Send(connID uuid.UUID, payload []byte) bool {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return conn.writer.trySend(payload)
}

// deliver pushes one payload to every member of a room except the origin,
// under the registry lock so concurrent publishes keep per-member FIFO
// order. It returns the IDs that accepted the frame and the IDs whose
// queues overflowed (to be evicted by the caller).
func (r *Registry) deliver(key domain.RoomKey, payload []byte, origin uuid.UUID) (delivered, dropped []uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.rooms[key] {
		if id == origin {
			continue
		}
		conn := r.conns[id]
		if conn.writer.trySend(payload) {
			delivered = append(delivered, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	return delivered, dropped
}

// heartbeatSnapshot returns each connection's ID and last ack time.
func (r *Registry) heartbeatSnapshot() []heartbeatEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]heartbeatEntry, 0, len(r.conns))
	for id, conn := range r.conns {
		entries = append(entries, heartbeatEntry{connID: id, lastAck: conn.lastAck})
	}
	return entries
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Close unregisters every connection and rejects future registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ids := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.unregister(id, func(cw *connWriter) {
			cw.stopWithClose(websocket.CloseGoingAway, "server shutting down")
		})
	}
}
