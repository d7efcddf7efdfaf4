package signal

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/app/orch"
	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
	sdputil "github.com/stickpm/sfu/internal/sdp"
)

// decodeOfferSDP accepts both plain and key:iv obfuscated descriptions.
// The answer mirrors whichever form the client spoke.
func decodeOfferSDP(raw string) (string, bool) {
	if plain, err := sdputil.DeobfuscatePayload(raw); err == nil {
		return plain, true
	}
	return raw, false
}

func encodeAnswerSDP(raw string, obfuscated bool) string {
	if !obfuscated {
		return raw
	}
	return sdputil.ObfuscatePayload(raw)
}

type streamAnswerPayload struct {
	Type     string `json:"type"`
	SDP      string `json:"sdp"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	CamSlot  int    `json:"camslot"`
}

func (ctl *SignalWSController) handleBroadcast(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	type broadcastPayload struct {
		Type    string `json:"type"`
		Seq     int64  `json:"seq,omitempty"`
		Room    string `json:"room,omitempty"`
		CamSlot int    `json:"camslot"`
		SDP     string `json:"sdp"`
	}
	var p broadcastPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad broadcast payload")
		ctl.sendError(conn, "broadcast", core.ErrInvalidDescription)
		return
	}
	if err := conn.checkSeq(p.Seq); err != nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Int64("seq", p.Seq).Msg("stale broadcast request")
		ctl.sendError(conn, "broadcast", err)
		return
	}

	rawSDP, obfuscated := decodeOfferSDP(p.SDP)
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: rawSDP}
	answer, err := ctl.Orch.Broadcast(ctx, sid, domain.RoomID(p.Room), p.CamSlot, offer)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("broadcast failed")
		ctl.sendError(conn, "broadcast", err)
		return
	}

	ctl.sendJSON(conn, streamAnswerPayload{
		Type:     "broadcast answer",
		SDP:      encodeAnswerSDP(answer.SDP.SDP, obfuscated),
		UUID:     string(answer.StreamID),
		Username: answer.Username,
		CamSlot:  answer.CamSlot,
	})
}

func (ctl *SignalWSController) handleConsumer(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte, replay bool) {
	type consumerPayload struct {
		Type string `json:"type"`
		Seq  int64  `json:"seq,omitempty"`
		UUID string `json:"uuid"`
		SDP  string `json:"sdp"`
	}
	var p consumerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad consumer payload")
		ctl.sendError(conn, "consumer", core.ErrInvalidDescription)
		return
	}
	if err := conn.checkSeq(p.Seq); err != nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Int64("seq", p.Seq).Msg("stale consumer request")
		ctl.sendError(conn, "consumer", err)
		return
	}

	rawSDP, obfuscated := decodeOfferSDP(p.SDP)
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: rawSDP}
	streamID := domain.StreamID(p.UUID)

	var (
		answer *orch.StreamAnswer
		err    error
	)
	if replay {
		answer, err = ctl.Orch.LoadConsume(ctx, sid, streamID, offer)
	} else {
		answer, err = ctl.Orch.Consume(ctx, sid, streamID, offer)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("stream_id", p.UUID).Msg("consume failed")
		ctl.sendError(conn, "consumer", err)
		return
	}

	typ := "consumer answer"
	if replay {
		typ = "load consumer answer"
	}
	ctl.sendJSON(conn, streamAnswerPayload{
		Type:     typ,
		SDP:      encodeAnswerSDP(answer.SDP.SDP, obfuscated),
		UUID:     string(answer.StreamID),
		Username: answer.Username,
		CamSlot:  answer.CamSlot,
	})
}

func (ctl *SignalWSController) handleRequestConsumer(sid core.SessionID, conn *WsSignalConn, data []byte) {
	type requestPayload struct {
		Type string `json:"type"`
		UUID string `json:"uuid"`
	}
	var p requestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad request consumer payload")
		return
	}

	entry, err := ctl.Orch.RequestConsume(sid, domain.StreamID(p.UUID))
	if err != nil {
		ctl.sendError(conn, "request consumer", err)
		return
	}
	ctl.sendJSON(conn, map[string]any{
		"type":     "new broadcast",
		"uuid":     string(entry.ID),
		"username": entry.Username,
		"camslot":  entry.CamSlot,
	})
}

func (ctl *SignalWSController) handleStopBroadcasting(sid core.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("stop broadcasting")
	ctl.Orch.StopBroadcasting(sid)
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, _ *WsSignalConn, data []byte) {
	type candidatePayload struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	sess, ok := ctl.Orch.Sessions.GetSession(sid)
	if !ok {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no session")
		return
	}
	mc := sess.Media()
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no media connection")
		return
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
