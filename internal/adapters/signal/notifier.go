package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/domain"
)

// The controller is the stream registry's notifier: every catalog
// mutation fans out to the room over the members' send channels.

func (ctl *SignalWSController) NotifyRoomStreamsChanged(roomID domain.RoomID, order []domain.StreamInfo) {
	ctl.broadcastToRoom(roomID, map[string]any{
		"type":    "update stream order",
		"streams": order,
	})
}

func (ctl *SignalWSController) NotifyExitBroadcast(roomID domain.RoomID, streamID domain.StreamID) {
	ctl.broadcastToRoom(roomID, map[string]any{
		"type": "exit broadcast",
		"uuid": string(streamID),
	})
}

func (ctl *SignalWSController) NotifyNewBroadcast(roomID domain.RoomID, info domain.StreamInfo) {
	ctl.broadcastToRoom(roomID, map[string]any{
		"type":     "new broadcast",
		"uuid":     string(info.ID),
		"username": info.Username,
		"camslot":  info.CamSlot,
	})
}

// broadcastToRoom delivers best-effort: a member whose send buffer is
// full misses the notification rather than stalling the room.
func (ctl *SignalWSController) broadcastToRoom(roomID domain.RoomID, v any) {
	members := ctl.Orch.Sessions.MembersOfRoom(roomID)
	for _, m := range members {
		sig := m.Session.Signal()
		if sig == nil {
			continue
		}
		ctl.sendJSON(sig, v)
	}
	log.Debug().Str("module", "signal").Str("room", string(roomID)).Int("members", len(members)).Msg("room notification sent")
}
