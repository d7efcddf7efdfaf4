package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/stickpm/sfu/internal/metrics"
)

// Relay fans one remote track out to its subscribers. A failing subscriber
// is marked for removal and never blocks delivery to the rest.
type Relay struct {
	Src *webrtc.TrackRemote

	mu        sync.RWMutex
	outTracks map[SubscriberID]*OutTrack

	cancel context.CancelFunc
}

func NewRelay(src *webrtc.TrackRemote, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		outTracks: make(map[SubscriberID]*OutTrack),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Error().Err(err).Msg("relay read RTP error, stopping")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	snapshot := make(map[SubscriberID]*OutTrack, len(r.outTracks))
	r.mu.RLock()
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]SubscriberID, 0, len(snapshot))
	for dst, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dst)
		case TrackStatePaused:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("dst", string(dst)).
					Msg("relay write RTP error, marking outtrack as delete")
				metrics.FanoutErrors.Inc()
				ot.MarkDelete()
				dirty = append(dirty, dst)
				continue
			}
			metrics.ForwardedPackets.Inc()
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []SubscriberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dst := range dirty {
		delete(r.outTracks, dst)
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) setAllPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		if ot.GetState() == TrackStateDelete {
			continue
		}
		if paused {
			ot.MarkPaused()
		} else {
			ot.MarkOk()
		}
	}
}

func (r *Relay) AddOutTrack(dst SubscriberID, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[dst] = ot
}

func (r *Relay) RemoveOutTrack(dst SubscriberID) {
	r.mu.RLock()
	ot, ok := r.outTracks[dst]
	r.mu.RUnlock()
	if ok {
		ot.MarkDelete()
	}
}
