package orch

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/app/sfu"
	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
	"github.com/stickpm/sfu/internal/metrics"
)

func subscriberID(sid core.SessionID, streamID domain.StreamID) sfu.SubscriberID {
	return sfu.SubscriberID(fmt.Sprintf("%s/%s", sid, streamID))
}

func hasVideoSender(conn core.MediaConnection) bool {
	v, ok := conn.(interface{ HasVideoSender() bool })
	return ok && v.HasVideoSender()
}

// RequestConsume verifies the stream exists and is actively forwarding
// before the client commits to an offer.
func (o *Orchestrator) RequestConsume(sid core.SessionID, streamID domain.StreamID) (*domain.StreamEntry, error) {
	roomID, err := o.roomOf(sid, "")
	if err != nil {
		return nil, err
	}
	entry, ok := o.Streams.Find(roomID, streamID)
	if !ok || !o.Relays.Active(streamID) {
		metrics.RejectedRequests.WithLabelValues("stream_not_found").Inc()
		return nil, core.ErrStreamNotFound
	}
	return entry, nil
}

// Consume negotiates a dedicated outbound connection carrying the
// requested stream's tracks to the consumer.
func (o *Orchestrator) Consume(ctx context.Context, sid core.SessionID, streamID domain.StreamID, offer webrtc.SessionDescription) (*StreamAnswer, error) {
	return o.consume(ctx, sid, streamID, offer, false)
}

// LoadConsume is Consume for late joiners replaying the existing catalog.
// Same contract, logged separately.
func (o *Orchestrator) LoadConsume(ctx context.Context, sid core.SessionID, streamID domain.StreamID, offer webrtc.SessionDescription) (*StreamAnswer, error) {
	return o.consume(ctx, sid, streamID, offer, true)
}

func (o *Orchestrator) consume(ctx context.Context, sid core.SessionID, streamID domain.StreamID, offer webrtc.SessionDescription, replay bool) (*StreamAnswer, error) {
	o.init()

	roomID, err := o.roomOf(sid, "")
	if err != nil {
		return nil, err
	}
	entry, ok := o.Streams.Find(roomID, streamID)
	if !ok || !o.Relays.HasStream(streamID) {
		metrics.RejectedRequests.WithLabelValues("stream_not_found").Inc()
		return nil, core.ErrStreamNotFound
	}

	conn, err := o.NewConnection(o.WebRTC, sid)
	if err != nil {
		return nil, err
	}
	subID := subscriberID(sid, streamID)

	conn.OnClosed(func() {
		o.dropConsumer(sid, subID)
	})

	if err = conn.Start(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", core.ErrTransportFailure, err)
	}

	// Tracks must be attached before the answer is created so the SDP
	// carries them.
	if err = o.Relays.Subscribe(streamID, sid, subID, conn); err != nil {
		conn.Close()
		return nil, err
	}

	answer, err := conn.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		o.Relays.Unsubscribe(streamID, subID)
		conn.Close()
		metrics.RejectedRequests.WithLabelValues("invalid_description").Inc()
		return nil, err
	}
	o.applyCodecPreference(answer)

	o.mu.Lock()
	if o.consumers[sid] == nil {
		o.consumers[sid] = make(map[sfu.SubscriberID]*consumerState)
	}
	o.consumers[sid][subID] = &consumerState{streamID: streamID, conn: conn}
	o.mu.Unlock()
	metrics.Participants.Inc()

	// Only connections with outbound video are worth sampling; audio-only
	// consumers get no monitor timer.
	if mon, ok := conn.(sfu.MonitoredConnection); ok && hasVideoSender(conn) {
		o.Monitor.Watch(ctx, string(subID), mon)
	}

	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("stream_id", string(streamID)).
		Bool("replay", replay).
		Msg("consumer negotiated")

	return &StreamAnswer{
		SDP:      answer,
		StreamID: entry.ID,
		Username: entry.Username,
		CamSlot:  entry.CamSlot,
	}, nil
}

func (o *Orchestrator) dropConsumer(sid core.SessionID, subID sfu.SubscriberID) {
	o.init()
	o.mu.Lock()
	states := o.consumers[sid]
	st, ok := states[subID]
	if ok {
		delete(states, subID)
		if len(states) == 0 {
			delete(o.consumers, sid)
		}
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	metrics.Participants.Dec()
	o.Relays.Unsubscribe(st.streamID, subID)
	o.Monitor.Stop(string(subID))
}
