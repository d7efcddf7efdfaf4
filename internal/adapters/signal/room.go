package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
)

func (ctl *SignalWSController) handleJoin(sid core.SessionID, conn *WsSignalConn, data []byte) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		return
	}

	roomID := domain.RoomID(p.Room)
	ctl.Orch.Join(sid, roomID)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("joined room")

	// The joiner immediately learns what is already live in the room and
	// can start requesting consumers.
	ctl.sendJSON(conn, map[string]any{
		"type":    "load broadcast",
		"room":    p.Room,
		"streams": ctl.Orch.ListActiveStreams(roomID),
	})
}

func (ctl *SignalWSController) handleLeave(sid core.SessionID, conn *WsSignalConn) {
	ctl.Orch.Leave(sid)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("left room")
	ctl.sendJSON(conn, map[string]any{"type": "left"})
}
