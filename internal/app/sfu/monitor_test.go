package sfu

import (
	"context"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitored struct {
	closed bool
	clamp  func(uint64) (uint64, bool)
	rtcp   []rtcp.Packet
}

func (f *fakeMonitored) Stats() webrtc.StatsReport { return webrtc.StatsReport{} }
func (f *fakeMonitored) WriteRTCP(pkts []rtcp.Packet) error {
	f.rtcp = append(f.rtcp, pkts...)
	return nil
}
func (f *fakeMonitored) ClampBitrate(estimate uint64) (uint64, bool) {
	if f.clamp != nil {
		return f.clamp(estimate)
	}
	return estimate, false
}
func (f *fakeMonitored) SenderSSRCs() []uint32 { return []uint32{42} }
func (f *fakeMonitored) IsClosed() bool        { return f.closed }

func TestWatchIsIdempotent(t *testing.T) {
	m := NewMonitor(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeMonitored{}
	m.Watch(ctx, "c1", conn)
	m.Watch(ctx, "c1", conn)
	assert.True(t, m.Watching("c1"))

	m.Stop("c1")
	assert.False(t, m.Watching("c1"))
}

func TestStopTwiceIsSafe(t *testing.T) {
	m := NewMonitor(time.Hour)
	m.Watch(context.Background(), "c1", &fakeMonitored{})
	m.Stop("c1")
	m.Stop("c1")
	m.Stop("never watched")
	assert.False(t, m.Watching("c1"))
}

func TestCollectTotalsFiltersAudio(t *testing.T) {
	report := webrtc.StatsReport{
		"out-video": webrtc.OutboundRTPStreamStats{Kind: "video", BytesSent: 1000, PacketsSent: 10},
		"out-audio": webrtc.OutboundRTPStreamStats{Kind: "audio", BytesSent: 9999, PacketsSent: 99},
		"rin-video": webrtc.RemoteInboundRTPStreamStats{Kind: "video", PacketsLost: 2, RoundTripTime: 0.350, Jitter: 0.120},
		"rin-audio": webrtc.RemoteInboundRTPStreamStats{Kind: "audio", PacketsLost: 50},
	}

	totals := collectTotals(report)
	assert.Equal(t, uint64(1000), totals.bytesSent)
	assert.Equal(t, uint64(10), totals.packetsSent)
	assert.Equal(t, int64(2), totals.packetsLost)
	assert.InDelta(t, 350.0, totals.rttMs, 0.001)
	assert.InDelta(t, 120.0, totals.jitterMs, 0.001)
}

func TestDiffSample(t *testing.T) {
	now := time.Now()
	prev := outboundTotals{bytesSent: 1000, packetsSent: 100, packetsLost: 0, sampledAt: now}
	cur := outboundTotals{
		bytesSent:   6000,
		packetsSent: 190,
		packetsLost: 10,
		rttMs:       200,
		jitterMs:    30,
		sampledAt:   now.Add(5 * time.Second),
	}

	s := diffSample(prev, cur)
	assert.Equal(t, uint64(5000), s.BytesSent)
	assert.Equal(t, 5*time.Second, s.Elapsed)
	// 10 lost out of 90 delivered + 10 lost.
	assert.InDelta(t, 0.1, s.LossRatio, 0.001)
	assert.Equal(t, 200.0, s.RTTMs)
	assert.Equal(t, 30.0, s.JitterMs)
}

func TestDiffSampleCounterReset(t *testing.T) {
	now := time.Now()
	prev := outboundTotals{bytesSent: 9000, packetsSent: 900, packetsLost: 20, sampledAt: now}
	cur := outboundTotals{bytesSent: 100, packetsSent: 10, packetsLost: 0, sampledAt: now.Add(time.Second)}

	s := diffSample(prev, cur)
	assert.Zero(t, s.BytesSent)
	assert.Zero(t, s.LossRatio)
}

func TestMonitorSkipsZeroEstimates(t *testing.T) {
	m := NewMonitor(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeMonitored{
		clamp: func(uint64) (uint64, bool) { return 300_000, true },
	}
	m.Watch(ctx, "c1", conn)
	defer m.Stop("c1")

	// Estimates stay zero with empty stats, so no REMB should ever go out.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, conn.rtcp)
}

func TestMonitorStopsClosedConnection(t *testing.T) {
	m := NewMonitor(10 * time.Millisecond)
	conn := &fakeMonitored{closed: true}
	m.Watch(context.Background(), "c1", conn)

	require.Eventually(t, func() bool {
		return !m.Watching("c1")
	}, time.Second, 10*time.Millisecond)
}
