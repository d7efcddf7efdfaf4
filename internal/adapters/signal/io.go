package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/app/orch"
	"github.com/stickpm/sfu/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	pingPeriod := ctl.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(sid, c, data)
	case "leave":
		ctl.handleLeave(sid, c)
	case "ping":
		ctl.handlePing(c)
	case "rename":
		ctl.handleRename(sid, c, data)
	case "whoami":
		ctl.handleWhoAmI(sid, c)
	case "broadcast":
		ctl.handleBroadcast(ctx, sid, c, data)
	case "consumer":
		ctl.handleConsumer(ctx, sid, c, data, false)
	case "load consumer":
		ctl.handleConsumer(ctx, sid, c, data, true)
	case "request consumer":
		ctl.handleRequestConsumer(sid, c, data)
	case "stop broadcasting":
		ctl.handleStopBroadcasting(sid)
	case "pause playing stream":
		ctl.handlePauseResume(sid, c, data)
	case "candidate":
		ctl.handleCandidate(sid, c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// sendError maps an operation failure to the structured payload clients
// render. Messages stay human-readable; internals never cross the wire.
func (ctl *SignalWSController) sendError(c *WsSignalConn, op string, err error) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"op":    op,
		"error": errorMessage(err),
	})
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrCapacityExceeded):
		return "Maximum number of broadcasters reached"
	case errors.Is(err, core.ErrDuplicateParticipant):
		return "Already broadcasting in this room"
	case errors.Is(err, core.ErrStreamNotFound):
		return "Stream not found or no streams available"
	case errors.Is(err, core.ErrInvalidDescription):
		return "Invalid SDP or type"
	case errors.Is(err, ErrStaleRequest):
		return "Stale request"
	case errors.Is(err, core.ErrTransportFailure):
		return "Connection setup failed"
	case errors.Is(err, orch.ErrNotInRoom):
		return "Join a room first"
	default:
		return "Request failed"
	}
}
