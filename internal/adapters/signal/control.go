package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, map[string]any{"type": "pong"})
}

// handlePauseResume toggles the session's own broadcast. Viewers keep
// their connections; the relay just stops forwarding until resume.
func (ctl *SignalWSController) handlePauseResume(sid core.SessionID, conn *WsSignalConn, data []byte) {
	type pausePayload struct {
		Type   string `json:"type"`
		UUID   string `json:"uuid"`
		Paused bool   `json:"paused"`
	}
	var p pausePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad pause payload")
		return
	}

	ctl.Orch.SetPaused(sid, p.Paused)

	roomID, _, ok := ctl.Orch.Sessions.RoomOf(sid)
	if !ok {
		return
	}
	ctl.broadcastToRoom(roomID, map[string]any{
		"type":   "stream status",
		"uuid":   p.UUID,
		"paused": p.Paused,
	})
}
