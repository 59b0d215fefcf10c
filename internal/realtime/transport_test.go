package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/briankwest/imglink/internal/adapter/metrics"
	"github.com/briankwest/imglink/internal/domain"
)

type fakeFrame struct {
	messageType int
	data        []byte
}

// fakeTransport records written frames in order. With blockWrites set, the
// writer goroutine stalls on the first write until release is closed, which
// lets tests fill a connection's send queue deterministically.
type fakeTransport struct {
	mu          sync.Mutex
	frames      []fakeFrame
	closed      bool
	blockWrites bool
	release     chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{release: make(chan struct{})}
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	if f.blockWrites {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, fakeFrame{messageType: messageType, data: cp})
	return nil
}

func (f *fakeTransport) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) writtenFrames() []fakeFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeFrame, len(f.frames))
	copy(out, f.frames)
	return out
}

// envelopes decodes every recorded text frame. Close frames are skipped;
// closeFrame exposes them.
func (f *fakeTransport) envelopes(t *testing.T) []domain.Envelope {
	t.Helper()
	var envs []domain.Envelope
	for _, frame := range f.writtenFrames() {
		if frame.messageType != websocket.TextMessage {
			continue
		}
		var env domain.Envelope
		if err := json.Unmarshal(frame.data, &env); err != nil {
			t.Fatalf("bad frame %q: %v", frame.data, err)
		}
		envs = append(envs, env)
	}
	return envs
}

// closeFrame returns the close code and reason of the recorded close frame,
// or -1 if none was written.
func (f *fakeTransport) closeFrame() (int, string) {
	for _, frame := range f.writtenFrames() {
		if frame.messageType != websocket.CloseMessage {
			continue
		}
		if len(frame.data) < 2 {
			return 0, ""
		}
		code := int(frame.data[0])<<8 | int(frame.data[1])
		return code, string(frame.data[2:])
	}
	return -1, ""
}

func testRegistry(t *testing.T, cfg RegistryConfig) *Registry {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRealtimeMetrics(prometheus.NewRegistry())
	}
	reg := NewRegistry(cfg)
	t.Cleanup(reg.Close)
	return reg
}

// waitFor polls until the condition holds or a second passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	for range 200 {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
