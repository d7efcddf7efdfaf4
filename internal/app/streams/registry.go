// Package streams holds the authoritative map of room to active
// broadcaster entries.
package streams

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
)

// Registry is the single source of truth for "who is live where". Entries
// are kept in join order; a room whose last entry is removed loses its
// bucket entirely. The capacity check and the insert are one step under
// the lock, never observable separately.
type Registry struct {
	cap      int
	notifier core.StreamNotifier

	mu    sync.Mutex
	rooms map[domain.RoomID][]*domain.StreamEntry
}

func NewRegistry(broadcasterCap int) *Registry {
	if broadcasterCap <= 0 {
		broadcasterCap = 4
	}
	return &Registry{
		cap:   broadcasterCap,
		rooms: make(map[domain.RoomID][]*domain.StreamEntry),
	}
}

// SetNotifier wires the room-facing event sink. Done once at startup; the
// signaling adapter and the registry reference each other.
func (r *Registry) SetNotifier(n core.StreamNotifier) { r.notifier = n }

func (r *Registry) Cap() int { return r.cap }

// Register inserts a broadcaster entry. Fails without side effects when
// the room is at capacity or the participant already owns an entry there.
func (r *Registry) Register(roomID domain.RoomID, entry *domain.StreamEntry) error {
	r.mu.Lock()
	entries := r.rooms[roomID]
	if len(entries) >= r.cap {
		r.mu.Unlock()
		return core.ErrCapacityExceeded
	}
	for _, e := range entries {
		if e.Owner == entry.Owner {
			r.mu.Unlock()
			return core.ErrDuplicateParticipant
		}
	}
	r.rooms[roomID] = append(entries, entry)
	order := r.orderLocked(roomID)
	r.mu.Unlock()

	log.Info().
		Str("module", "streams").
		Str("room", string(roomID)).
		Str("stream_id", string(entry.ID)).
		Str("owner", string(entry.Owner)).
		Int("camslot", entry.CamSlot).
		Msg("stream registered")

	if r.notifier != nil {
		r.notifier.NotifyNewBroadcast(roomID, entry.Info(len(order)-1))
		r.notifier.NotifyRoomStreamsChanged(roomID, order)
	}
	return nil
}

// Remove deletes the entry, drops the bucket when it empties, and emits
// the exit notification plus the recomputed order.
func (r *Registry) Remove(roomID domain.RoomID, streamID domain.StreamID) (*domain.StreamEntry, bool) {
	r.mu.Lock()
	entries, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	var removed *domain.StreamEntry
	kept := entries[:0]
	for _, e := range entries {
		if e.ID == streamID && removed == nil {
			removed = e
			continue
		}
		kept = append(kept, e)
	}
	if removed == nil {
		r.mu.Unlock()
		return nil, false
	}
	if len(kept) == 0 {
		delete(r.rooms, roomID)
	} else {
		r.rooms[roomID] = kept
	}
	order := r.orderLocked(roomID)
	r.mu.Unlock()

	log.Info().
		Str("module", "streams").
		Str("room", string(roomID)).
		Str("stream_id", string(streamID)).
		Msg("stream removed")

	if r.notifier != nil {
		r.notifier.NotifyExitBroadcast(roomID, streamID)
		r.notifier.NotifyRoomStreamsChanged(roomID, order)
	}
	return removed, true
}

// List returns the room's entries in join order, for deterministic
// client-side slot assignment. Empty slice for unknown rooms.
func (r *Registry) List(roomID domain.RoomID) []domain.StreamInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderLocked(roomID)
}

func (r *Registry) orderLocked(roomID domain.RoomID) []domain.StreamInfo {
	entries := r.rooms[roomID]
	out := make([]domain.StreamInfo, 0, len(entries))
	for i, e := range entries {
		out = append(out, e.Info(i))
	}
	return out
}

func (r *Registry) Count(roomID domain.RoomID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// HasRoom reports whether a bucket exists for the room at all.
func (r *Registry) HasRoom(roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Find locates an entry by stream id.
func (r *Registry) Find(roomID domain.RoomID, streamID domain.StreamID) (*domain.StreamEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rooms[roomID] {
		if e.ID == streamID {
			return e, true
		}
	}
	return nil, false
}

// FindByOwner locates a participant's entry in the room.
func (r *Registry) FindByOwner(roomID domain.RoomID, owner domain.UserID) (*domain.StreamEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rooms[roomID] {
		if e.Owner == owner {
			return e, true
		}
	}
	return nil, false
}
