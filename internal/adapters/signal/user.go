package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
)

func (ctl *SignalWSController) handleRename(sid core.SessionID, conn *WsSignalConn, data []byte) {
	type renamePayload struct {
		Type     string `json:"type"`
		Username string `json:"username"`
	}
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		return
	}

	if err := ctl.Orch.Sessions.UpdateUsername(sid, p.Username); err != nil {
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"op":    "rename",
			"error": err.Error(),
		})
		return
	}
	ctl.handleWhoAmI(sid, conn)
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn *WsSignalConn) {
	user := ctl.Orch.Sessions.GetOrCreateUser(sid)
	ctl.sendJSON(conn, map[string]any{
		"type":     "whoami",
		"id":       string(user.ID),
		"username": user.Username,
		"role":     string(user.Role),
	})
}
