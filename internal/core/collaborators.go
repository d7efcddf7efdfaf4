package core

import "github.com/stickpm/sfu/internal/domain"

// Collaborator boundaries. The room/user/session layer that owns CRUD
// state lives outside this core; it plugs in through these interfaces.

// RoomDirectory answers whether a room can take another participant.
type RoomDirectory interface {
	CheckRoomCapacity(roomID domain.RoomID) bool
}

// IdentityResolver maps a connection's session token to a user identity.
type IdentityResolver interface {
	ResolveParticipantIdentity(sid SessionID) *domain.User
}

// StreamNotifier receives room-facing stream events. Implemented by the
// signaling adapter; the registry calls it after every mutation.
type StreamNotifier interface {
	NotifyRoomStreamsChanged(roomID domain.RoomID, order []domain.StreamInfo)
	NotifyExitBroadcast(roomID domain.RoomID, streamID domain.StreamID)
	NotifyNewBroadcast(roomID domain.RoomID, info domain.StreamInfo)
}

type StreamEvent string

const (
	StreamStarted StreamEvent = "started"
	StreamEnded   StreamEvent = "ended"
)

// StreamLifecycle persists start/end marks outside the core.
type StreamLifecycle interface {
	PersistStreamLifecycle(streamID domain.StreamID, event StreamEvent)
}
