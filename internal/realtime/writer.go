package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const writeDeadline = 5 * time.Second

// Transport is the write side of a websocket connection. *websocket.Conn
// satisfies it; tests substitute in-memory fakes.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// connWriter owns all writes to one transport. Frames are queued on a
// bounded channel and written by a single goroutine, which gives each
// recipient FIFO delivery and keeps concurrent publishers off the socket.
// The goroutine also writes the close frame on shutdown, so stop never has
// to wait on a write in flight.
type connWriter struct {
	transport Transport
	clock     clockwork.Clock
	sendCh    chan []byte
	done      chan struct{}
	stopOnce  sync.Once

	// Set before done is closed; read only by the writer goroutine after.
	closeCode   int
	closeReason string
}

func newConnWriter(transport Transport, clock clockwork.Clock, bufferSize int) *connWriter {
	cw := &connWriter{
		transport: transport,
		clock:     clock,
		sendCh:    make(chan []byte, bufferSize),
		done:      make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *connWriter) run() {
	for {
		select {
		case msg := <-cw.sendCh:
			_ = cw.transport.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
			if err := cw.transport.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = cw.transport.Close()
				return
			}
		case <-cw.done:
			if cw.closeCode != 0 {
				msg := websocket.FormatCloseMessage(cw.closeCode, cw.closeReason)
				_ = cw.transport.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
				_ = cw.transport.WriteMessage(websocket.CloseMessage, msg)
			}
			_ = cw.transport.Close()
			return
		}
	}
}

// trySend enqueues a frame without blocking. It reports false when the
// queue is full or the writer has stopped; the caller evicts the connection.
func (cw *connWriter) trySend(msg []byte) bool {
	select {
	case <-cw.done:
		return false
	default:
	}

	select {
	case cw.sendCh <- msg:
		return true
	default:
		return false
	}
}

// stop signals the writer goroutine to close the transport and exit. Frames
// still queued are discarded. It returns without waiting, so eviction from a
// publish path never blocks on a stalled socket.
func (cw *connWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.done)
	})
}

// stopWithClose is stop plus a close frame with the given code and reason,
// written by the writer goroutine before the transport closes. Used for
// server-initiated terminations (auth failure, heartbeat timeout) so the
// client can distinguish them from network loss.
func (cw *connWriter) stopWithClose(code int, reason string) {
	cw.stopOnce.Do(func() {
		cw.closeCode = code
		cw.closeReason = reason
		close(cw.done)
	})
}
