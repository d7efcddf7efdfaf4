package sfu

import (
	"context"
	"sync"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
)

// Stream aggregates the relays of one broadcaster's published stream: one
// relay per track, plus the subscriber set the tracks fan out to. The
// canonical room entry lives in the stream registry; this holds only the
// forwarding state.
type Stream struct {
	ID    domain.StreamID
	Owner core.SessionID

	srcConn core.MediaConnection
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	relays map[string]*Relay // by track ID
	subs   map[SubscriberID]subscriber
}

type subscriber struct {
	sid  core.SessionID
	conn core.MediaConnection
}

func newStream(ctx context.Context, id domain.StreamID, owner core.SessionID, src core.MediaConnection) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	return &Stream{
		ID:      id,
		Owner:   owner,
		srcConn: src,
		ctx:     ctx,
		cancel:  cancel,
		relays:  make(map[string]*Relay),
		subs:    make(map[SubscriberID]subscriber),
	}
}

func (s *Stream) relaySnapshot() map[string]*Relay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Relay, len(s.relays))
	for id, r := range s.relays {
		out[id] = r
	}
	return out
}

func (s *Stream) subSnapshot() map[SubscriberID]subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[SubscriberID]subscriber, len(s.subs))
	for id, sub := range s.subs {
		out[id] = sub
	}
	return out
}

func (s *Stream) trackCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.relays)
}

func (s *Stream) stop() {
	s.cancel()
	for _, r := range s.relaySnapshot() {
		r.markAllDelete()
	}
}
