package rtc

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	c, err := NewConnection(DefaultWebRTCConfig(nil), "test-session")
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func addVideoSender(t *testing.T, c *Connection) *webrtc.RTPSender {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "test-stream",
	)
	require.NoError(t, err)
	sender, err := c.AddLocalTrack(track)
	require.NoError(t, err)
	return sender
}

func TestSimulcastLadder(t *testing.T) {
	encs := simulcastEncodings()
	require.Len(t, encs, 3)

	assert.Equal(t, "f", encs[0].RID)
	assert.Equal(t, uint64(500_000), encs[0].MaxBitrate)
	assert.Zero(t, encs[0].ScaleResolutionDownBy)

	assert.Equal(t, "h", encs[1].RID)
	assert.Equal(t, uint64(200_000), encs[1].MaxBitrate)
	assert.Equal(t, 2.0, encs[1].ScaleResolutionDownBy)

	assert.Equal(t, "q", encs[2].RID)
	assert.Equal(t, uint64(100_000), encs[2].MaxBitrate)
	assert.Equal(t, 4.0, encs[2].ScaleResolutionDownBy)
}

func TestEnableSVCSetsScalabilityMode(t *testing.T) {
	c := newTestConnection(t)
	sender := addVideoSender(t, c)

	c.EnableSimulcast(sender)
	c.EnableSVC(sender)

	c.mu.Lock()
	encs := c.encodings[sender]
	c.mu.Unlock()
	require.NotEmpty(t, encs)
	assert.Equal(t, "L3T3_KEY", encs[0].ScalabilityMode)
}

func TestClampBitrateNeverRaises(t *testing.T) {
	c := newTestConnection(t)
	sender := addVideoSender(t, c)
	c.EnableSimulcast(sender)

	// First clamp pulls every layer above the estimate down to it.
	floor, changed := c.ClampBitrate(150_000)
	assert.True(t, changed)
	assert.Equal(t, uint64(100_000), floor)

	// A higher estimate later must not raise the ceilings back up.
	floor, changed = c.ClampBitrate(400_000)
	assert.False(t, changed)
	assert.Equal(t, uint64(100_000), floor)

	// A lower one keeps ratcheting down.
	floor, changed = c.ClampBitrate(80_000)
	assert.True(t, changed)
	assert.Equal(t, uint64(80_000), floor)
}

func TestClampBitrateNoSenders(t *testing.T) {
	c := newTestConnection(t)
	floor, changed := c.ClampBitrate(100_000)
	assert.Zero(t, floor)
	assert.False(t, changed)
}

func TestHasVideoSender(t *testing.T) {
	c := newTestConnection(t)
	assert.False(t, c.HasVideoSender())
	addVideoSender(t, c)
	assert.True(t, c.HasVideoSender())
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := NewConnection(DefaultWebRTCConfig(nil), "test-session")
	require.NoError(t, err)

	fired := 0
	c.OnClosed(func() { fired++ })
	require.NoError(t, c.Start(context.Background()))

	c.Close()
	c.Close()
	assert.True(t, c.IsClosed())
	assert.Equal(t, 1, fired)
}
