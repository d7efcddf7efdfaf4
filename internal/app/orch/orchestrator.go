// Package orch binds signaling requests to SFU operations: it owns the
// broadcast/consume lifecycles and the cleanup on disconnect.
package orch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/app"
	"github.com/stickpm/sfu/internal/app/sfu"
	"github.com/stickpm/sfu/internal/app/streams"
	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
	"github.com/stickpm/sfu/internal/metrics"
)

var ErrNotInRoom = errors.New("participant is not in a room")

// StreamAnswer is the negotiated reply to a broadcast/consume request:
// the answer SDP plus the stream's metadata.
type StreamAnswer struct {
	SDP      *webrtc.SessionDescription
	StreamID domain.StreamID
	Username string
	CamSlot  int
}

type broadcastState struct {
	streamID domain.StreamID
	roomID   domain.RoomID
	camSlot  int
	conn     core.MediaConnection

	registerOnce sync.Once
}

type consumerState struct {
	streamID domain.StreamID
	conn     core.MediaConnection
}

type Orchestrator struct {
	Sessions  *app.SessionRegistry
	Streams   *streams.Registry
	Relays    *sfu.RelayManager
	Monitor   *sfu.Monitor
	Directory core.RoomDirectory
	Lifecycle core.StreamLifecycle

	WebRTC         webrtc.Configuration
	PreferredCodec string

	// NewConnection is the media transport factory; swapped in tests.
	NewConnection func(cfg webrtc.Configuration, sid core.SessionID) (core.MediaConnection, error)

	mu         sync.Mutex
	broadcasts map[core.SessionID]*broadcastState
	consumers  map[core.SessionID]map[sfu.SubscriberID]*consumerState
}

func (o *Orchestrator) init() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.broadcasts == nil {
		o.broadcasts = make(map[core.SessionID]*broadcastState)
	}
	if o.consumers == nil {
		o.consumers = make(map[core.SessionID]map[sfu.SubscriberID]*consumerState)
	}
}

// roomOf resolves the session's current room and checks it against the
// one named in the request, when one is named.
func (o *Orchestrator) roomOf(sid core.SessionID, requested domain.RoomID) (domain.RoomID, error) {
	roomID, _, ok := o.Sessions.RoomOf(sid)
	if !ok {
		return "", ErrNotInRoom
	}
	if requested != "" && requested != roomID {
		return "", fmt.Errorf("%w: requested room %q", ErrNotInRoom, requested)
	}
	return roomID, nil
}

// Join places the session in a room. Media-level attachments happen on
// demand through consume requests.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID) {
	if cur, _, ok := o.Sessions.RoomOf(sid); ok && cur != roomID {
		o.Leave(sid)
	}
	o.Sessions.UpdateRoom(sid, roomID)
}

// Leave tears down the session's media in its current room.
func (o *Orchestrator) Leave(sid core.SessionID) {
	o.StopBroadcasting(sid)
	o.closeConsumers(sid)
	o.Relays.UnsubscribeSession(sid)
	o.Sessions.LeaveRoom(sid)
}

// OnDisconnect releases everything the session owned.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.Leave(sid)
	o.Sessions.Unbind(sid)
}

// ListActiveStreams is the boundary view of the room's catalog in join
// order.
func (o *Orchestrator) ListActiveStreams(roomID domain.RoomID) []domain.StreamInfo {
	return o.Streams.List(roomID)
}

// SetPaused pauses or resumes the session's own broadcast.
func (o *Orchestrator) SetPaused(sid core.SessionID, paused bool) {
	o.init()
	o.mu.Lock()
	st, ok := o.broadcasts[sid]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.Relays.SetPaused(st.streamID, paused)
	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("stream_id", string(st.streamID)).
		Bool("paused", paused).
		Msg("stream pause state changed")
}

func (o *Orchestrator) closeConsumers(sid core.SessionID) {
	o.init()
	o.mu.Lock()
	states := o.consumers[sid]
	delete(o.consumers, sid)
	o.mu.Unlock()
	for subID, st := range states {
		metrics.Participants.Dec()
		o.Relays.Unsubscribe(st.streamID, subID)
		o.Monitor.Stop(string(subID))
		st.conn.Close()
	}
}
