package app

import (
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
)

// RoomPolicy caps how many members one room can hold. Zero means no cap.
type RoomPolicy struct {
	Sessions   *SessionRegistry
	MaxMembers int
}

func (p RoomPolicy) CheckRoomCapacity(roomID domain.RoomID) bool {
	if p.MaxMembers <= 0 {
		return true
	}
	return len(p.Sessions.MembersOfRoom(roomID)) <= p.MaxMembers
}

// LogLifecycle records stream start/end marks in the log stream. A real
// deployment would swap in a store-backed implementation here.
type LogLifecycle struct{}

func (LogLifecycle) PersistStreamLifecycle(streamID domain.StreamID, event core.StreamEvent) {
	log.Info().
		Str("module", "app").
		Str("stream_id", string(streamID)).
		Str("event", string(event)).
		Msg("stream lifecycle")
}
