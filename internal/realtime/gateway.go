package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/briankwest/imglink/internal/adapter/metrics"
	"github.com/briankwest/imglink/internal/domain"
)

const handshakeWriteTimeout = 5 * time.Second

// TokenVerifier validates a handshake token and returns the user it was
// issued for. The same verifier backs the REST bearer middleware.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// NotificationMarker flags durable notifications as read on behalf of a
// connected client.
type NotificationMarker interface {
	MarkRead(ctx context.Context, userID, notificationID int64) error
}

// PresenceReader answers online-user queries from connected clients.
type PresenceReader interface {
	OnlineUsers(ctx context.Context) ([]int64, error)
}

// Gateway upgrades HTTP requests to websockets, runs the authentication
// handshake, and serves each connection's read loop.
type Gateway struct {
	registry      *Registry
	verifier      TokenVerifier
	notifications NotificationMarker
	presence      PresenceReader
	metrics       *metrics.RealtimeMetrics
	upgrader      websocket.Upgrader
}

func NewGateway(registry *Registry, verifier TokenVerifier, notifications NotificationMarker, presence PresenceReader, m *metrics.RealtimeMetrics) *Gateway {
	return &Gateway{
		registry:      registry,
		verifier:      verifier,
		notifications: notifications,
		presence:      presence,
		metrics:       m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			// The token authenticates the connection; browsers on other
			// origins gain nothing beyond what the REST API already allows.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves GET /ws/notifications. The access token travels as a query
// parameter because browser websocket clients cannot set headers. A rejected
// token closes the socket with a distinguished code so the client knows not
// to retry.
func (g *Gateway) Handle(c echo.Context) error {
	ws, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade required")
	}

	userID, err := g.verifier.Verify(c.QueryParam("token"))
	if err != nil {
		if g.metrics != nil {
			g.metrics.AuthFailures.Inc()
		}
		slog.Info("websocket handshake rejected", "error", err)
		g.closeWithCode(ws, domain.CloseAuthFailure, "authentication failed")
		return nil
	}

	conn, err := g.registry.Register(userID, ws)
	if err != nil {
		slog.Warn("websocket registration rejected", "user_id", userID, "error", err)
		g.closeWithCode(ws, websocket.CloseTryAgainLater, "connection limit reached")
		return nil
	}

	ack, _ := json.Marshal(domain.Envelope{
		Type:         domain.EventConnection,
		UserID:       userID,
		ConnectionID: conn.ID.String(),
	})
	if !g.registry.Send(conn.ID, ack) {
		g.registry.Unregister(conn.ID)
		return nil
	}

	g.readLoop(c.Request().Context(), ws, conn)
	return nil
}

// readLoop consumes frames until the peer goes away. Clean closes and read
// errors both unregister immediately; only silent peers are left to the
// heartbeat monitor.
func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, conn *Connection) {
	defer g.registry.Unregister(conn.ID)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read failed", "connection_id", conn.ID, "error", err)
			}
			return
		}

		env, err := domain.DecodeEnvelope(data)
		if err != nil {
			slog.Debug("discarding invalid frame", "connection_id", conn.ID, "error", err)
			continue
		}

		g.handleFrame(ctx, conn, env)
	}
}

func (g *Gateway) handleFrame(ctx context.Context, conn *Connection, env *domain.Envelope) {
	switch env.Type {
	case domain.EventJoinRoom:
		// A user room carries private notifications; only its owner may join.
		if kind, id, err := domain.ParseRoomKey(env.RoomID); err == nil &&
			kind == domain.RoomKindUser && id != conn.UserID {
			slog.Warn("join denied", "connection_id", conn.ID, "room", env.RoomID)
			return
		}
		if err := g.registry.Join(conn.ID, domain.RoomKey(env.RoomID)); err != nil {
			slog.Warn("join failed", "connection_id", conn.ID, "room", env.RoomID, "error", err)
		}

	case domain.EventLeaveRoom:
		if err := g.registry.Leave(conn.ID, domain.RoomKey(env.RoomID)); err != nil {
			slog.Warn("leave failed", "connection_id", conn.ID, "room", env.RoomID, "error", err)
		}

	case domain.EventHeartbeat:
		g.registry.RecordHeartbeatAck(conn.ID)
		// Old clients initiate heartbeats themselves and expect an echo.
		reply, _ := json.Marshal(domain.Envelope{Type: domain.EventHeartbeat, Status: "alive"})
		g.registry.Send(conn.ID, reply)

	case domain.EventMarkRead:
		if err := g.notifications.MarkRead(ctx, conn.UserID, env.NotificationID); err != nil {
			slog.Warn("mark_read failed",
				"connection_id", conn.ID,
				"notification_id", env.NotificationID,
				"error", err,
			)
		}

	case domain.EventGetOnlineUsers:
		users, err := g.presence.OnlineUsers(ctx)
		if err != nil {
			slog.Warn("online users lookup failed", "connection_id", conn.ID, "error", err)
			return
		}
		reply, _ := json.Marshal(domain.Envelope{Type: domain.EventOnlineUsers, Users: users})
		g.registry.Send(conn.ID, reply)

	default:
		slog.Debug("ignoring frame", "connection_id", conn.ID, "type", env.Type)
	}
}

func (g *Gateway) closeWithCode(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.SetWriteDeadline(time.Now().Add(handshakeWriteTimeout))
	_ = ws.WriteMessage(websocket.CloseMessage, msg)
	_ = ws.Close()
}
