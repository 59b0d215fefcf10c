// Package session implements the client side of the realtime channel: the
// connection state machine, reconnection with a bounded retry budget, and
// the polling fallback used once the budget is spent.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/briankwest/imglink/internal/domain"
	apperrors "github.com/briankwest/imglink/internal/errors"
	"github.com/briankwest/imglink/internal/platform/retry"
)

// State is the session's position in its connection lifecycle.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateOpen           State = "open"
	StateReconnecting   State = "reconnecting"

	// StateFailed means the retry budget is spent or the token was
	// rejected. The session stays failed until an explicit Connect; live
	// delivery is replaced by the polling fallback.
	StateFailed State = "failed"
)

// Transport is the client's view of an established websocket.
// *websocket.Conn satisfies it; tests substitute scripted fakes.
type Transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes transports. The URL already carries the access token.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebsocketDialer dials with gorilla's default dialer.
type WebsocketDialer struct{}

func (WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, apperrors.TransportError("websocket dial failed", err)
	}
	return ws, nil
}

// SnapshotFetcher pulls the durable notification state over REST. The
// session uses it to reconcile after a connection gap and as the polling
// fallback once reconnection has failed for good.
type SnapshotFetcher interface {
	Snapshot(ctx context.Context) ([]domain.Notification, error)
}

// Config carries the session's endpoints, tuning knobs, and callbacks.
// Callbacks are invoked without internal locks held; they may call back
// into the session.
type Config struct {
	URL   string
	Token string

	Dialer  Dialer
	Fetcher SnapshotFetcher
	Clock   clockwork.Clock

	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	PollInterval time.Duration

	// OnState observes every transition. err is non-nil only when the
	// session fails (auth rejection or retry budget exhaustion).
	OnState func(state State, err error)
	// OnEvent receives every server-pushed envelope except heartbeat
	// probes, which the session answers itself.
	OnEvent func(env domain.Envelope)
	// OnSnapshot receives the result of each durable catch-up fetch.
	OnSnapshot func(notifications []domain.Notification)
}

const (
	defaultBaseDelay    = 1 * time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultMaxAttempts  = 5
	defaultPollInterval = 30 * time.Second
)

// Session is the per-client connection state machine. All methods are safe
// for concurrent use.
type Session struct {
	cfg   Config
	clock clockwork.Clock
	recon *reconnector

	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes transport writes: the read loop's heartbeat
	// replies and caller-goroutine sends would otherwise race, and
	// gorilla allows at most one concurrent writer.
	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	transport    Transport
	connectionID string
	retryTimer   clockwork.Timer
	pollStop     chan struct{}

	// gen invalidates callbacks from read loops that lost a race with
	// Close or a newer connection.
	gen int
}

func New(cfg Config) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		clock:  cfg.Clock,
		recon:  newReconnector(cfg.BaseDelay, cfg.MaxDelay, cfg.MaxAttempts),
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionID returns the server-assigned ID from the handshake ack, or ""
// before the session has been open. REST mutations send it as
// X-Connection-ID so their own echo is excluded from fan-out.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID
}

// Connect starts (or explicitly restarts) the connection attempt. Calling
// it from failed resets the retry budget; calling it while a connection is
// live or in progress is a no-op.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateConnecting, StateAuthenticating, StateOpen:
		s.mu.Unlock()
		return
	}
	s.recon.reset()
	s.cancelRetryTimerLocked()
	s.stopPollingLocked()
	s.mu.Unlock()

	go s.dial()
}

// Close tears the session down from any state: cancels pending timers and
// the polling fallback, closes the transport, and ends in disconnected.
func (s *Session) Close() {
	s.mu.Lock()
	s.gen++
	s.cancelRetryTimerLocked()
	s.stopPollingLocked()
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	s.connectionID = ""
	s.mu.Unlock()

	s.cancel()
	s.setState(StateDisconnected, nil)
}

// JoinRoom subscribes the session to a room's live events.
func (s *Session) JoinRoom(key domain.RoomKey) error {
	return s.send(domain.Envelope{Type: domain.EventJoinRoom, RoomID: key.String()})
}

// LeaveRoom unsubscribes the session from a room.
func (s *Session) LeaveRoom(key domain.RoomKey) error {
	return s.send(domain.Envelope{Type: domain.EventLeaveRoom, RoomID: key.String()})
}

// MarkRead flags a notification as read over the live channel.
func (s *Session) MarkRead(notificationID int64) error {
	return s.send(domain.Envelope{Type: domain.EventMarkRead, NotificationID: notificationID})
}

func (s *Session) send(env domain.Envelope) error {
	s.mu.Lock()
	transport, state := s.transport, s.state
	s.mu.Unlock()

	if state != StateOpen || transport == nil {
		return apperrors.TransportError("session is not open", nil)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return apperrors.InternalError("failed to encode frame", err)
	}
	if err := s.writeFrame(transport, data); err != nil {
		return apperrors.TransportError("failed to send frame", err)
	}
	return nil
}

func (s *Session) writeFrame(transport Transport, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return transport.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) dialURL() string {
	return s.cfg.URL + "?token=" + s.cfg.Token
}

func (s *Session) dial() {
	s.setState(StateConnecting, nil)

	transport, err := s.cfg.Dialer.Dial(s.ctx, s.dialURL())
	if err != nil {
		slog.Info("realtime dial failed", "error", err)
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = transport.Close()
		return
	}
	s.transport = transport
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.setState(StateAuthenticating, nil)
	go s.readLoop(transport, gen)
}

func (s *Session) readLoop(transport Transport, gen int) {
	for {
		_, data, err := transport.ReadMessage()
		if err != nil {
			s.handleReadError(gen, err)
			return
		}

		env, err := domain.DecodeEnvelope(data)
		if err != nil {
			slog.Debug("discarding invalid frame", "error", err)
			continue
		}
		s.handleEnvelope(transport, gen, env)
	}
}

func (s *Session) handleEnvelope(transport Transport, gen int, env *domain.Envelope) {
	switch env.Type {
	case domain.EventConnection:
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.connectionID = env.ConnectionID
		s.recon.reset()
		s.stopPollingLocked()
		s.mu.Unlock()

		s.setState(StateOpen, nil)
		go s.fetchSnapshot()

	case domain.EventHeartbeat:
		// The server echoes acks back with a status. Answering those
		// would ping-pong forever; only bare probes get a reply.
		if env.Status != "" {
			return
		}
		reply, _ := json.Marshal(domain.Envelope{Type: domain.EventHeartbeat})
		if err := s.writeFrame(transport, reply); err != nil {
			slog.Debug("heartbeat reply failed", "error", err)
		}

	default:
		if s.cfg.OnEvent != nil {
			s.cfg.OnEvent(*env)
		}
	}
}

func (s *Session) handleReadError(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	s.connectionID = ""
	s.mu.Unlock()

	// A rejected token closes the socket with a distinguished code.
	// Retrying would consume the budget and never succeed.
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == domain.CloseAuthFailure {
		s.fail(apperrors.AuthenticationError("access token rejected", err))
		return
	}

	s.scheduleReconnect()
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.recon.exhausted() {
		s.mu.Unlock()
		s.fail(apperrors.RetryBudgetExhaustedError(s.cfg.MaxAttempts))
		return
	}
	delay := s.recon.nextDelay()
	s.retryTimer = s.clock.AfterFunc(delay, s.dial)
	s.mu.Unlock()

	slog.Info("scheduling reconnect", "delay", delay)
	s.setState(StateReconnecting, nil)
}

func (s *Session) fail(cause error) {
	s.mu.Lock()
	s.cancelRetryTimerLocked()
	s.startPollingLocked()
	s.mu.Unlock()

	slog.Warn("realtime session failed, switching to polling", "error", cause)
	s.setState(StateFailed, cause)
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	if s.cfg.OnState != nil {
		s.cfg.OnState(state, err)
	}
}

func (s *Session) cancelRetryTimerLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Session) startPollingLocked() {
	if s.pollStop != nil || s.cfg.Fetcher == nil {
		return
	}
	stop := make(chan struct{})
	s.pollStop = stop
	go s.pollLoop(stop)
}

func (s *Session) stopPollingLocked() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

func (s *Session) pollLoop(stop chan struct{}) {
	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.fetchSnapshot()
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// fetchSnapshot reconciles durable state after a gap. Transient fetch
// failures are retried a few times; auth and validation failures are not.
func (s *Session) fetchSnapshot() {
	if s.cfg.Fetcher == nil || s.cfg.OnSnapshot == nil {
		return
	}

	policy := retry.Policy{
		MaxAttempts:      3,
		InitialBackoff:   500 * time.Millisecond,
		RateLimitBackoff: 5 * time.Second,
	}
	notifications, err := retry.Do(s.ctx, policy, classifySnapshotError, func() ([]domain.Notification, error) {
		return s.cfg.Fetcher.Snapshot(s.ctx)
	})
	if err != nil {
		slog.Warn("snapshot fetch failed", "error", err)
		return
	}
	s.cfg.OnSnapshot(notifications)
}

func classifySnapshotError(err error) retry.Action {
	if structured := apperrors.AsStructuredError(err); structured != nil {
		switch structured.Type {
		case apperrors.TypeAuthentication, apperrors.TypeValidation, apperrors.TypeNotFound:
			return retry.Stop
		}
	}
	return retry.Retry
}
