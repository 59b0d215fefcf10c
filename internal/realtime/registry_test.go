package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briankwest/imglink/internal/domain"
)

func TestRegister_ImplicitUserRoom(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})

	conn, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)

	assert.Contains(t, reg.Rooms(conn.ID), domain.UserRoom(17))
	assert.Contains(t, reg.MembersOf(domain.UserRoom(17)), conn.ID)
}

func TestRegister_Lookup(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})

	conn, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)

	found := reg.Lookup(conn.ID)
	require.NotNil(t, found)
	assert.Equal(t, int64(17), found.UserID)

	assert.Nil(t, reg.Lookup(uuid.New()))
}

func TestRegister_ConnectionLimit(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{MaxConnections: 1})

	_, err := reg.Register(1, newFakeTransport())
	require.NoError(t, err)

	_, err = reg.Register(2, newFakeTransport())
	assert.ErrorIs(t, err, domain.ErrRegistryFull)
}

func TestJoinLeave_BidirectionalConsistency(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	room := domain.ImageRoom(42)

	conn, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)

	require.NoError(t, reg.Join(conn.ID, room))
	assert.Contains(t, reg.Rooms(conn.ID), room)
	assert.Contains(t, reg.MembersOf(room), conn.ID)

	require.NoError(t, reg.Leave(conn.ID, room))
	assert.NotContains(t, reg.Rooms(conn.ID), room)
	assert.Empty(t, reg.MembersOf(room))
}

func TestJoin_Idempotent(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	room := domain.ImageRoom(42)

	conn, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)

	require.NoError(t, reg.Join(conn.ID, room))
	require.NoError(t, reg.Join(conn.ID, room))

	assert.Len(t, reg.MembersOf(room), 1)
	assert.Len(t, reg.Rooms(conn.ID), 2) // image room plus the implicit user room
}

func TestLeave_NotAMember_NoOp(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})

	conn, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)

	require.NoError(t, reg.Leave(conn.ID, domain.ImageRoom(42)))
}

func TestJoin_UnknownConnection(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})

	err := reg.Join(uuid.New(), domain.ImageRoom(42))
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
}

func TestUnregister_ReleasesAllRooms(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	room := domain.ImageRoom(42)

	transport := newFakeTransport()
	conn, err := reg.Register(17, transport)
	require.NoError(t, err)
	require.NoError(t, reg.Join(conn.ID, room))

	other, err := reg.Register(18, newFakeTransport())
	require.NoError(t, err)
	require.NoError(t, reg.Join(other.ID, room))

	reg.Unregister(conn.ID)

	assert.Nil(t, reg.Lookup(conn.ID))
	assert.Empty(t, reg.Rooms(conn.ID))
	assert.NotContains(t, reg.MembersOf(room), conn.ID)
	assert.Contains(t, reg.MembersOf(room), other.ID)
	assert.True(t, waitFor(t, transport.isClosed))
}

func TestUnregister_DeletesEmptyRooms(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	room := domain.ImageRoom(42)

	conn, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)
	require.NoError(t, reg.Join(conn.ID, room))

	reg.Unregister(conn.ID)

	reg.mu.Lock()
	_, userRoomExists := reg.rooms[domain.UserRoom(17)]
	_, imageRoomExists := reg.rooms[room]
	reg.mu.Unlock()
	assert.False(t, userRoomExists)
	assert.False(t, imageRoomExists)
}

func TestUnregister_Twice_NoOp(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})

	conn, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)

	reg.Unregister(conn.ID)
	reg.Unregister(conn.ID)

	assert.Equal(t, 0, reg.Len())
}

func TestPresenceCallbacks_FirstAndLastConnection(t *testing.T) {
	var mu sync.Mutex
	var online, offline []int64

	reg := testRegistry(t, RegistryConfig{
		OnUserOnline: func(userID int64) {
			mu.Lock()
			defer mu.Unlock()
			online = append(online, userID)
		},
		OnUserOffline: func(userID int64) {
			mu.Lock()
			defer mu.Unlock()
			offline = append(offline, userID)
		},
	})

	// Two tabs of the same user: only the first registration and the last
	// unregistration touch presence.
	first, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)
	second, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []int64{17}, online)
	assert.Empty(t, offline)
	mu.Unlock()

	reg.Unregister(first.ID)
	mu.Lock()
	assert.Empty(t, offline)
	mu.Unlock()

	reg.Unregister(second.ID)
	mu.Lock()
	assert.Equal(t, []int64{17}, offline)
	mu.Unlock()
}

func TestClose_RejectsNewRegistrations(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})

	conn, err := reg.Register(17, newFakeTransport())
	require.NoError(t, err)

	reg.Close()

	assert.Nil(t, reg.Lookup(conn.ID))
	_, err = reg.Register(18, newFakeTransport())
	assert.ErrorIs(t, err, domain.ErrRegistryClosed)
}
