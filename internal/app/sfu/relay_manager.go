package sfu

import (
	"context"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
	"github.com/stickpm/sfu/internal/metrics"
)

// encodingTuner is the optional sender-side surface of a media connection.
// The concrete rtc.Connection implements it; test fakes usually don't.
type encodingTuner interface {
	EnableSimulcast(*webrtc.RTPSender)
	EnableSVC(*webrtc.RTPSender)
}

// RelayManager tracks every forwarded stream in the process and fans
// broadcaster tracks out to consumer connections. A track is never
// attached back to its own originating participant.
type RelayManager struct {
	mu      sync.RWMutex
	streams map[domain.StreamID]*Stream
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		streams: make(map[domain.StreamID]*Stream),
	}
}

// StartStream registers a broadcaster's stream aggregate. Idempotent per
// stream id; a replaced aggregate is stopped first.
func (m *RelayManager) StartStream(ctx context.Context, id domain.StreamID, owner core.SessionID, src core.MediaConnection) {
	m.mu.Lock()
	old, replaced := m.streams[id]
	if replaced {
		log.Info().Str("module", "sfu").Str("stream_id", string(id)).Msg("replacing existing stream aggregate")
		old.stop()
	}
	m.streams[id] = newStream(ctx, id, owner, src)
	m.mu.Unlock()
	if !replaced {
		metrics.ActiveStreams.Inc()
	}
}

func (m *RelayManager) get(id domain.StreamID) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.streams[id]
	return st, ok
}

// AddTrack starts a relay loop for a newly received broadcaster track and
// attaches it to every current subscriber. Subscribers added mid-call get
// the track at their own subscribe time instead.
func (m *RelayManager) AddTrack(id domain.StreamID, track *webrtc.TrackRemote) bool {
	st, ok := m.get(id)
	if !ok {
		return false
	}

	logger := log.With().
		Str("module", "sfu").
		Str("stream_id", string(id)).
		Str("track_id", track.ID()).
		Logger()

	relayCtx, cancel := context.WithCancel(st.ctx)
	relay := NewRelay(track, cancel)

	st.mu.Lock()
	if old, ok := st.relays[track.ID()]; ok {
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	st.relays[track.ID()] = relay
	st.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)

	for subID, sub := range st.subSnapshot() {
		if err := m.attach(st, relay, subID, sub.conn); err != nil {
			logger.Error().Err(err).Str("dst", string(subID)).Msg("attach to subscriber failed")
		}
	}
	return true
}

// Subscribe attaches every current track of the stream to the consumer's
// connection and remembers the consumer for tracks that arrive later.
// Subscribing the stream's own originator is a no-op. A failing attach is
// logged per track; the remaining tracks still flow.
func (m *RelayManager) Subscribe(id domain.StreamID, dstSID core.SessionID, subID SubscriberID, conn core.MediaConnection) error {
	st, ok := m.get(id)
	if !ok {
		return core.ErrStreamNotFound
	}
	if dstSID == st.Owner {
		return nil
	}

	st.mu.Lock()
	st.subs[subID] = subscriber{sid: dstSID, conn: conn}
	st.mu.Unlock()

	for _, relay := range st.relaySnapshot() {
		if err := m.attach(st, relay, subID, conn); err != nil {
			log.Error().Err(err).
				Str("module", "sfu").
				Str("stream_id", string(id)).
				Str("dst", string(subID)).
				Msg("subscribe attach failed")
		}
	}
	return nil
}

// attach wires one relay to one subscriber connection: local track,
// simulcast/SVC for video senders, and a keyframe request to the source.
func (m *RelayManager) attach(st *Stream, relay *Relay, subID SubscriberID, conn core.MediaConnection) error {
	local, err := webrtc.NewTrackLocalStaticRTP(relay.Src.Codec().RTPCodecCapability, relay.Src.ID(), string(st.ID))
	if err != nil {
		return err
	}
	sender, err := conn.AddLocalTrack(local)
	if err != nil {
		return err
	}

	isVideo := relay.Src.Kind() == webrtc.RTPCodecTypeVideo
	if isVideo {
		if tuner, ok := conn.(encodingTuner); ok {
			tuner.EnableSimulcast(sender)
			tuner.EnableSVC(sender)
		}
	}

	relay.AddOutTrack(subID, NewOutTrack(local))

	if isVideo {
		// Ask the broadcaster for a keyframe so the new subscriber can render
		// without waiting for the next natural one.
		if err := st.srcConn.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(relay.Src.SSRC())},
		}); err != nil {
			log.Warn().Err(err).Str("module", "sfu").Str("stream_id", string(st.ID)).Msg("PLI write failed")
		}
	}
	return nil
}

// Unsubscribe detaches a consumer from all of the stream's relays.
func (m *RelayManager) Unsubscribe(id domain.StreamID, subID SubscriberID) {
	st, ok := m.get(id)
	if !ok {
		return
	}
	st.mu.Lock()
	delete(st.subs, subID)
	st.mu.Unlock()
	for _, relay := range st.relaySnapshot() {
		relay.RemoveOutTrack(subID)
	}
}

// UnsubscribeSession detaches every attachment owned by sid across all
// streams, used on participant disconnect.
func (m *RelayManager) UnsubscribeSession(sid core.SessionID) {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, st := range m.streams {
		streams = append(streams, st)
	}
	m.mu.RUnlock()

	for _, st := range streams {
		for subID, sub := range st.subSnapshot() {
			if sub.sid != sid {
				continue
			}
			st.mu.Lock()
			delete(st.subs, subID)
			st.mu.Unlock()
			for _, relay := range st.relaySnapshot() {
				relay.RemoveOutTrack(subID)
			}
		}
	}
}

// StopStream cancels the relays and removes the aggregate. Existing
// already-forwarded tracks on other peers end as their loops observe the
// cancellation.
func (m *RelayManager) StopStream(id domain.StreamID) {
	m.mu.Lock()
	st, ok := m.streams[id]
	if ok {
		delete(m.streams, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	st.stop()
	metrics.ActiveStreams.Dec()
}

// SetPaused pauses or resumes forwarding of every track in the stream.
func (m *RelayManager) SetPaused(id domain.StreamID, paused bool) {
	st, ok := m.get(id)
	if !ok {
		return
	}
	for _, relay := range st.relaySnapshot() {
		relay.setAllPaused(paused)
	}
}

// HasStream reports whether an aggregate exists for id.
func (m *RelayManager) HasStream(id domain.StreamID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.streams[id]
	return ok
}

// Active reports whether the stream exists and is forwarding at least one
// track.
func (m *RelayManager) Active(id domain.StreamID) bool {
	st, ok := m.get(id)
	return ok && st.trackCount() > 0
}
