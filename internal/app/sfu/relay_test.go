package sfu

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "stream",
	)
	require.NoError(t, err)
	return track
}

func TestForwardSkipsPausedAndDropsDeleted(t *testing.T) {
	r := NewRelay(nil, func() {})
	logger := zerolog.Nop()

	ok := NewOutTrack(newLocalTrack(t))
	paused := NewOutTrack(newLocalTrack(t))
	paused.MarkPaused()
	deleted := NewOutTrack(newLocalTrack(t))
	deleted.MarkDelete()

	r.AddOutTrack("ok", ok)
	r.AddOutTrack("paused", paused)
	r.AddOutTrack("deleted", deleted)

	r.forward(&rtp.Packet{}, &logger)

	r.mu.RLock()
	defer r.mu.RUnlock()
	assert.Contains(t, r.outTracks, SubscriberID("ok"))
	assert.Contains(t, r.outTracks, SubscriberID("paused"))
	// Tracks already marked for deletion are swept during forwarding.
	assert.NotContains(t, r.outTracks, SubscriberID("deleted"))
}

func TestSetAllPausedLeavesDeletedAlone(t *testing.T) {
	r := NewRelay(nil, func() {})

	a := NewOutTrack(newLocalTrack(t))
	gone := NewOutTrack(newLocalTrack(t))
	gone.MarkDelete()
	r.AddOutTrack("a", a)
	r.AddOutTrack("gone", gone)

	r.setAllPaused(true)
	assert.Equal(t, TrackStatePaused, a.GetState())
	assert.Equal(t, TrackStateDelete, gone.GetState())

	r.setAllPaused(false)
	assert.Equal(t, TrackStateOk, a.GetState())
	assert.Equal(t, TrackStateDelete, gone.GetState())
}

func TestRemoveOutTrackMarksForDeletion(t *testing.T) {
	r := NewRelay(nil, func() {})
	ot := NewOutTrack(newLocalTrack(t))
	r.AddOutTrack("viewer", ot)

	r.RemoveOutTrack("viewer")
	assert.Equal(t, TrackStateDelete, ot.GetState())

	// Unknown subscribers are ignored.
	r.RemoveOutTrack("nobody")
}
