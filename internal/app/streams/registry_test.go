package streams

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
)

func entry(id, owner string, slot int) *domain.StreamEntry {
	return &domain.StreamEntry{
		ID:        domain.StreamID(id),
		Owner:     domain.UserID(owner),
		Username:  owner,
		CamSlot:   slot,
		StartedAt: time.Now(),
	}
}

func TestRegisterCapacity(t *testing.T) {
	r := NewRegistry(4)
	room := domain.RoomID("lobby")

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Register(room, entry(string(rune('a'+i)), string(rune('a'+i)), i)))
	}
	err := r.Register(room, entry("e", "e", 4))
	require.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.Equal(t, 4, r.Count(room))
}

func TestRegisterDuplicateOwnerLeavesStateUnchanged(t *testing.T) {
	r := NewRegistry(4)
	room := domain.RoomID("lobby")

	require.NoError(t, r.Register(room, entry("s1", "alice", 0)))
	err := r.Register(room, entry("s2", "alice", 1))
	require.ErrorIs(t, err, core.ErrDuplicateParticipant)

	assert.Equal(t, 1, r.Count(room))
	_, ok := r.Find(room, "s2")
	assert.False(t, ok)
	got, ok := r.FindByOwner(room, "alice")
	require.True(t, ok)
	assert.Equal(t, domain.StreamID("s1"), got.ID)
}

func TestRemoveDropsEmptyBucket(t *testing.T) {
	r := NewRegistry(4)
	room := domain.RoomID("lobby")

	require.NoError(t, r.Register(room, entry("s1", "alice", 0)))
	require.True(t, r.HasRoom(room))

	removed, ok := r.Remove(room, "s1")
	require.True(t, ok)
	assert.Equal(t, domain.StreamID("s1"), removed.ID)
	assert.False(t, r.HasRoom(room))

	_, ok = r.Remove(room, "s1")
	assert.False(t, ok)
}

func TestListKeepsJoinOrder(t *testing.T) {
	r := NewRegistry(4)
	room := domain.RoomID("lobby")

	require.NoError(t, r.Register(room, entry("s1", "alice", 2)))
	require.NoError(t, r.Register(room, entry("s2", "bob", 0)))
	require.NoError(t, r.Register(room, entry("s3", "carol", 1)))

	order := r.List(room)
	require.Len(t, order, 3)
	assert.Equal(t, domain.StreamID("s1"), order[0].ID)
	assert.Equal(t, domain.StreamID("s2"), order[1].ID)
	assert.Equal(t, domain.StreamID("s3"), order[2].ID)
	for i, info := range order {
		assert.Equal(t, i, info.Index)
	}

	// Removing the middle entry compacts the order without reshuffling.
	_, ok := r.Remove(room, "s2")
	require.True(t, ok)
	order = r.List(room)
	require.Len(t, order, 2)
	assert.Equal(t, domain.StreamID("s1"), order[0].ID)
	assert.Equal(t, domain.StreamID("s3"), order[1].ID)
	assert.Equal(t, 1, order[1].Index)
}

type recordingNotifier struct {
	news    []domain.StreamInfo
	exits   []domain.StreamID
	reorder [][]domain.StreamInfo
}

func (n *recordingNotifier) NotifyRoomStreamsChanged(_ domain.RoomID, order []domain.StreamInfo) {
	n.reorder = append(n.reorder, order)
}

func (n *recordingNotifier) NotifyExitBroadcast(_ domain.RoomID, id domain.StreamID) {
	n.exits = append(n.exits, id)
}

func (n *recordingNotifier) NotifyNewBroadcast(_ domain.RoomID, info domain.StreamInfo) {
	n.news = append(n.news, info)
}

func TestNotificationsFollowMutations(t *testing.T) {
	r := NewRegistry(4)
	n := &recordingNotifier{}
	r.SetNotifier(n)
	room := domain.RoomID("lobby")

	require.NoError(t, r.Register(room, entry("s1", "alice", 0)))
	require.Len(t, n.news, 1)
	assert.Equal(t, domain.StreamID("s1"), n.news[0].ID)
	require.Len(t, n.reorder, 1)

	// A rejected insert must not notify anyone.
	_ = r.Register(room, entry("s2", "alice", 1))
	assert.Len(t, n.news, 1)
	assert.Len(t, n.reorder, 1)

	_, ok := r.Remove(room, "s1")
	require.True(t, ok)
	require.Len(t, n.exits, 1)
	assert.Equal(t, domain.StreamID("s1"), n.exits[0])
	require.Len(t, n.reorder, 2)
	assert.Empty(t, n.reorder[1])
}
