package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
	"github.com/stickpm/sfu/internal/metrics"
	"github.com/stickpm/sfu/internal/sdp"
)

// Broadcast negotiates a new inbound connection for a broadcaster. The
// room registry entry is created on the first track-received event, not
// here; capacity is still checked up front so an over-cap request fails
// fast with no partial state.
func (o *Orchestrator) Broadcast(ctx context.Context, sid core.SessionID, roomID domain.RoomID, camSlot int, offer webrtc.SessionDescription) (*StreamAnswer, error) {
	o.init()

	roomID, err := o.roomOf(sid, roomID)
	if err != nil {
		return nil, err
	}
	user := o.Sessions.GetOrCreateUser(sid)

	if o.Directory != nil && !o.Directory.CheckRoomCapacity(roomID) {
		metrics.RejectedRequests.WithLabelValues("capacity").Inc()
		return nil, core.ErrCapacityExceeded
	}
	if o.Streams.Count(roomID) >= o.Streams.Cap() {
		metrics.RejectedRequests.WithLabelValues("capacity").Inc()
		return nil, core.ErrCapacityExceeded
	}
	if _, ok := o.Streams.FindByOwner(roomID, user.ID); ok {
		metrics.RejectedRequests.WithLabelValues("duplicate").Inc()
		return nil, core.ErrDuplicateParticipant
	}

	streamID := domain.StreamID(uuid.NewString())
	conn, err := o.NewConnection(o.WebRTC, sid)
	if err != nil {
		return nil, err
	}

	st := &broadcastState{
		streamID: streamID,
		roomID:   roomID,
		camSlot:  camSlot,
		conn:     conn,
	}

	conn.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		o.onBroadcastTrack(sid, user, st, track)
	})
	conn.OnDataChannel(func(dc *webrtc.DataChannel) {
		o.guardDataChannel(sid, dc)
	})
	conn.OnClosed(func() {
		o.StopBroadcasting(sid)
	})

	if err = conn.Start(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", core.ErrTransportFailure, err)
	}

	o.Relays.StartStream(ctx, streamID, sid, conn)

	answer, err := conn.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		o.Relays.StopStream(streamID)
		conn.Close()
		metrics.RejectedRequests.WithLabelValues("invalid_description").Inc()
		return nil, err
	}
	o.applyCodecPreference(answer)

	o.mu.Lock()
	o.broadcasts[sid] = st
	o.mu.Unlock()
	metrics.Participants.Inc()

	if sess, ok := o.Sessions.GetSession(sid); ok {
		sess.UpdateMedia(conn)
	}

	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("room", string(roomID)).
		Str("stream_id", string(streamID)).
		Int("camslot", camSlot).
		Msg("broadcast negotiated")

	return &StreamAnswer{
		SDP:      answer,
		StreamID: streamID,
		Username: user.Username,
		CamSlot:  camSlot,
	}, nil
}

// onBroadcastTrack runs for every incoming track of a broadcaster. The
// first track registers the room entry; each track joins the stream
// aggregate and fans out to every other registered participant whose
// connection can take it.
func (o *Orchestrator) onBroadcastTrack(sid core.SessionID, user *domain.User, st *broadcastState, track *webrtc.TrackRemote) {
	if !o.Relays.AddTrack(st.streamID, track) {
		return
	}

	st.registerOnce.Do(func() {
		entry := &domain.StreamEntry{
			ID:        st.streamID,
			Owner:     user.ID,
			Username:  user.Username,
			CamSlot:   st.camSlot,
			StartedAt: time.Now(),
		}
		if err := o.Streams.Register(st.roomID, entry); err != nil {
			// Lost the race for the last slot between negotiation and the
			// first track. Tear down; the client sees the connection end.
			log.Warn().Err(err).
				Str("module", "orch").
				Str("sid", string(sid)).
				Str("room", string(st.roomID)).
				Msg("late capacity rejection, closing broadcast")
			o.Relays.StopStream(st.streamID)
			st.conn.Close()
			return
		}
		if o.Lifecycle != nil {
			o.Lifecycle.PersistStreamLifecycle(st.streamID, core.StreamStarted)
		}
	})

	for _, snap := range o.Sessions.MembersOfRoom(st.roomID) {
		if snap.SID == sid {
			continue
		}
		mc := snap.Session.Media()
		if mc == nil || mc.IsClosed() {
			continue
		}
		subID := subscriberID(snap.SID, st.streamID)
		if err := o.Relays.Subscribe(st.streamID, snap.SID, subID, mc); err != nil {
			// Isolation: one bad peer never blocks fan-out to the rest.
			log.Error().Err(err).
				Str("module", "orch").
				Str("dst_sid", string(snap.SID)).
				Str("stream_id", string(st.streamID)).
				Msg("fan-out to participant failed")
		}
	}
}

// StopBroadcasting ends the participant's stream: registry entry removed
// (which notifies the room), relays cancelled, transport closed. Safe to
// call when nothing is live, and safe to call twice.
func (o *Orchestrator) StopBroadcasting(sid core.SessionID) {
	o.init()
	o.mu.Lock()
	st, ok := o.broadcasts[sid]
	if ok {
		delete(o.broadcasts, sid)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	metrics.Participants.Dec()

	if _, removed := o.Streams.Remove(st.roomID, st.streamID); removed {
		if o.Lifecycle != nil {
			o.Lifecycle.PersistStreamLifecycle(st.streamID, core.StreamEnded)
		}
	}
	o.Relays.StopStream(st.streamID)
	st.conn.Close()

	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("stream_id", string(st.streamID)).
		Msg("broadcast stopped")
}

func (o *Orchestrator) applyCodecPreference(answer *webrtc.SessionDescription) {
	if o.PreferredCodec == "" || answer == nil {
		return
	}
	out, ok := sdp.SetPreferredCodec(answer.SDP, o.PreferredCodec)
	if !ok {
		log.Warn().
			Str("module", "orch").
			Str("codec", o.PreferredCodec).
			Msg("preferred codec not present in SDP")
		return
	}
	answer.SDP = out
}
