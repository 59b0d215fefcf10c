package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPresenceStore(t *testing.T) *PresenceStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewPresenceStore(client)
}

func TestPresence_OnlineOffline(t *testing.T) {
	ctx := context.Background()
	store := testPresenceStore(t)

	require.NoError(t, store.SetOnline(ctx, 17))

	online, err := store.IsOnline(ctx, 17)
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, store.SetOffline(ctx, 17))

	online, err = store.IsOnline(ctx, 17)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPresence_OnlineUsersSorted(t *testing.T) {
	ctx := context.Background()
	store := testPresenceStore(t)

	for _, id := range []int64{42, 3, 17} {
		require.NoError(t, store.SetOnline(ctx, id))
	}

	users, err := store.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 17, 42}, users)
}

func TestPresence_SetOnlineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testPresenceStore(t)

	require.NoError(t, store.SetOnline(ctx, 17))
	require.NoError(t, store.SetOnline(ctx, 17))

	users, err := store.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{17}, users)
}

func TestPresence_EmptySet(t *testing.T) {
	ctx := context.Background()
	store := testPresenceStore(t)

	users, err := store.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	online, err := store.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)
}
