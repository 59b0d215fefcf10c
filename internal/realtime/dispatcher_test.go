package realtime

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briankwest/imglink/internal/domain"
)

func testComment(id int64) *domain.Comment {
	return &domain.Comment{ID: id, ImageID: 42, AuthorID: 3, Content: fmt.Sprintf("comment %d", id)}
}

// commentFrames filters out heartbeat and connection frames.
func commentFrames(t *testing.T, transport *fakeTransport) []domain.Envelope {
	t.Helper()
	var out []domain.Envelope
	for _, env := range transport.envelopes(t) {
		if env.Type == domain.EventNewComment || env.Type == domain.EventEditComment || env.Type == domain.EventDeleteComment {
			out = append(out, env)
		}
	}
	return out
}

func TestPublish_EmptyRoom_NoOp(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	d := NewDispatcher(reg, nil)

	// Must not panic or error; the room simply has no members.
	d.Publish(domain.NewCommentEvent(testComment(1), uuid.Nil))
}

func TestPublish_FanOutToAllMembers(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	d := NewDispatcher(reg, nil)
	room := domain.ImageRoom(42)

	transports := make([]*fakeTransport, 3)
	for i := range transports {
		transports[i] = newFakeTransport()
		conn, err := reg.Register(int64(i+1), transports[i])
		require.NoError(t, err)
		require.NoError(t, reg.Join(conn.ID, room))
	}

	d.Publish(domain.NewCommentEvent(testComment(7), uuid.Nil))

	for i, transport := range transports {
		tr := transport
		require.True(t, waitFor(t, func() bool { return len(commentFrames(t, tr)) == 1 }),
			"member %d did not receive the event", i)
		got := commentFrames(t, tr)[0]
		assert.Equal(t, domain.EventNewComment, got.Type)
		assert.Equal(t, int64(7), got.Comment.ID)
	}
}

func TestPublish_ExcludesOrigin(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	d := NewDispatcher(reg, nil)
	room := domain.ImageRoom(42)

	authorTransport := newFakeTransport()
	author, err := reg.Register(1, authorTransport)
	require.NoError(t, err)
	require.NoError(t, reg.Join(author.ID, room))

	viewerTransport := newFakeTransport()
	viewer, err := reg.Register(2, viewerTransport)
	require.NoError(t, err)
	require.NoError(t, reg.Join(viewer.ID, room))

	d.Publish(domain.NewCommentEvent(testComment(7), author.ID))

	require.True(t, waitFor(t, func() bool { return len(commentFrames(t, viewerTransport)) == 1 }))
	assert.Empty(t, commentFrames(t, authorTransport),
		"the originating connection must not receive its own event")
	assert.Len(t, commentFrames(t, viewerTransport), 1, "other members receive it exactly once")
}

func TestPublish_SameUserTwoConnections_OnlyOriginExcluded(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	d := NewDispatcher(reg, nil)
	room := domain.ImageRoom(42)

	tabOne := newFakeTransport()
	connOne, err := reg.Register(1, tabOne)
	require.NoError(t, err)
	require.NoError(t, reg.Join(connOne.ID, room))

	tabTwo := newFakeTransport()
	connTwo, err := reg.Register(1, tabTwo)
	require.NoError(t, err)
	require.NoError(t, reg.Join(connTwo.ID, room))

	d.Publish(domain.NewCommentEvent(testComment(7), connOne.ID))

	// Exclusion is per connection, not per user: the second tab still
	// receives the echo and relies on identity-based dedup.
	require.True(t, waitFor(t, func() bool { return len(commentFrames(t, tabTwo)) == 1 }))
	assert.Empty(t, commentFrames(t, tabOne))
}

func TestPublish_FIFOPerMember(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	d := NewDispatcher(reg, nil)
	room := domain.ImageRoom(42)

	transport := newFakeTransport()
	conn, err := reg.Register(1, transport)
	require.NoError(t, err)
	require.NoError(t, reg.Join(conn.ID, room))

	const n = 20
	for i := 1; i <= n; i++ {
		d.Publish(domain.NewCommentEvent(testComment(int64(i)), uuid.Nil))
	}

	require.True(t, waitFor(t, func() bool { return len(commentFrames(t, transport)) == n }))
	for i, env := range commentFrames(t, transport) {
		assert.Equal(t, int64(i+1), env.Comment.ID, "events must arrive in publish order")
	}
}

func TestPublish_SlowMemberEvicted_OthersStillServed(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{SendBufferSize: 1})
	d := NewDispatcher(reg, nil)
	room := domain.ImageRoom(42)

	slow := newFakeTransport()
	slow.blockWrites = true
	slowConn, err := reg.Register(1, slow)
	require.NoError(t, err)
	require.NoError(t, reg.Join(slowConn.ID, room))

	healthy := newFakeTransport()
	healthyConn, err := reg.Register(2, healthy)
	require.NoError(t, err)
	require.NoError(t, reg.Join(healthyConn.ID, room))

	// The slow writer is stuck on its first frame (the blocked transport),
	// so a buffer of one fills after two publishes; the third overflows.
	for i := 1; i <= 3; i++ {
		d.Publish(domain.NewCommentEvent(testComment(int64(i)), uuid.Nil))
	}

	require.True(t, waitFor(t, func() bool { return reg.Lookup(slowConn.ID) == nil }),
		"slow member should have been evicted")
	require.True(t, waitFor(t, func() bool { return len(commentFrames(t, healthy)) == 3 }),
		"healthy member must receive every event")
	require.NotNil(t, reg.Lookup(healthyConn.ID))

	close(slow.release)
}

func TestPublish_AfterUnregister_NoDelivery(t *testing.T) {
	reg := testRegistry(t, RegistryConfig{})
	d := NewDispatcher(reg, nil)
	room := domain.ImageRoom(42)

	transport := newFakeTransport()
	conn, err := reg.Register(1, transport)
	require.NoError(t, err)
	require.NoError(t, reg.Join(conn.ID, room))

	reg.Unregister(conn.ID)
	d.Publish(domain.NewCommentEvent(testComment(7), uuid.Nil))

	assert.Empty(t, commentFrames(t, transport))
}
