package realtime

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briankwest/imglink/internal/domain"
)

const testInterval = 30 * time.Second

func probeFrames(t *testing.T, transport *fakeTransport) int {
	t.Helper()
	count := 0
	for _, env := range transport.envelopes(t) {
		if env.Type == domain.EventHeartbeat {
			count++
		}
	}
	return count
}

func startMonitor(t *testing.T, reg *Registry, clock clockwork.Clock) *HeartbeatMonitor {
	t.Helper()
	mon := NewHeartbeatMonitor(reg, clock, testInterval, nil)
	mon.Start()
	t.Cleanup(mon.Stop)
	return mon
}

func TestHeartbeat_ProbesLiveConnections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := testRegistry(t, RegistryConfig{Clock: clock})

	transport := newFakeTransport()
	_, err := reg.Register(1, transport)
	require.NoError(t, err)

	startMonitor(t, reg, clock)
	clock.BlockUntil(1)
	clock.Advance(testInterval)

	require.True(t, waitFor(t, func() bool { return probeFrames(t, transport) == 1 }))
}

func TestHeartbeat_EvictsSilentConnection(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := testRegistry(t, RegistryConfig{Clock: clock})

	transport := newFakeTransport()
	conn, err := reg.Register(1, transport)
	require.NoError(t, err)

	startMonitor(t, reg, clock)

	// First tick: one interval of silence, still within the grace window.
	clock.BlockUntil(1)
	clock.Advance(testInterval)
	require.True(t, waitFor(t, func() bool { return probeFrames(t, transport) == 1 }))
	require.NotNil(t, reg.Lookup(conn.ID))

	// Second tick: two intervals of silence, connection gets reclaimed.
	clock.BlockUntil(1)
	clock.Advance(testInterval)

	require.True(t, waitFor(t, func() bool { return reg.Lookup(conn.ID) == nil }))
	require.True(t, waitFor(t, transport.isClosed))

	code, reason := transport.closeFrame()
	assert.Equal(t, websocket.ClosePolicyViolation, code)
	assert.Equal(t, "heartbeat timeout", reason)
}

func TestHeartbeat_AckResetsTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := testRegistry(t, RegistryConfig{Clock: clock})

	transport := newFakeTransport()
	conn, err := reg.Register(1, transport)
	require.NoError(t, err)

	startMonitor(t, reg, clock)

	clock.BlockUntil(1)
	clock.Advance(testInterval)
	require.True(t, waitFor(t, func() bool { return probeFrames(t, transport) == 1 }))

	reg.RecordHeartbeatAck(conn.ID)

	clock.BlockUntil(1)
	clock.Advance(testInterval)
	require.True(t, waitFor(t, func() bool { return probeFrames(t, transport) == 2 }))

	assert.NotNil(t, reg.Lookup(conn.ID), "an acked connection must survive the timeout check")
}

func TestHeartbeat_StopCancelsLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := testRegistry(t, RegistryConfig{Clock: clock})

	transport := newFakeTransport()
	_, err := reg.Register(1, transport)
	require.NoError(t, err)

	mon := NewHeartbeatMonitor(reg, clock, testInterval, nil)
	mon.Start()
	clock.BlockUntil(1)
	mon.Stop()

	clock.Advance(2 * testInterval)

	assert.Zero(t, probeFrames(t, transport))
}
