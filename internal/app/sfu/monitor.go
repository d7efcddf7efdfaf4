package sfu

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MonitoredConnection is what the monitor needs from a media connection.
type MonitoredConnection interface {
	Stats() webrtc.StatsReport
	WriteRTCP([]rtcp.Packet) error
	ClampBitrate(estimate uint64) (floor uint64, changed bool)
	SenderSSRCs() []uint32
	IsClosed() bool
}

type watch struct {
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Monitor samples outbound stats on a fixed interval per watched
// connection and feeds the estimate into the bitrate clamp. Each watch is
// cancelled exactly once when the connection closes; no timer outlives its
// connection.
type Monitor struct {
	interval time.Duration

	mu      sync.Mutex
	watches map[string]*watch
}

func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		interval: interval,
		watches:  make(map[string]*watch),
	}
}

// Watch starts sampling a connection. Idempotent: a connection already
// being watched is left alone.
func (m *Monitor) Watch(ctx context.Context, id string, conn MonitoredConnection) {
	m.mu.Lock()
	if _, ok := m.watches[id]; ok {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.watches[id] = &watch{cancel: cancel}
	m.mu.Unlock()

	logger := log.With().Str("module", "monitor").Str("conn", id).Logger()
	go m.loop(ctx, id, conn, &logger)
}

// Stop cancels a watch. Safe to call more than once.
func (m *Monitor) Stop(id string) {
	m.mu.Lock()
	w, ok := m.watches[id]
	if ok {
		delete(m.watches, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	w.stopOnce.Do(w.cancel)
}

// Watching reports whether id currently has an active watch.
func (m *Monitor) Watching(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[id]
	return ok
}

type outboundTotals struct {
	bytesSent   uint64
	packetsSent uint64
	packetsLost int64
	rttMs       float64
	jitterMs    float64
	sampledAt   time.Time
}

func (m *Monitor) loop(ctx context.Context, id string, conn MonitoredConnection, logger *zerolog.Logger) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var prev *outboundTotals
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("monitor stopped")
			return
		case <-ticker.C:
			if conn.IsClosed() {
				m.Stop(id)
				return
			}
			cur := collectTotals(conn.Stats())
			if prev == nil {
				prev = &cur
				continue
			}
			sample := diffSample(*prev, cur)
			prev = &cur

			estimate := EstimateBandwidth(sample)
			if estimate == 0 {
				continue
			}
			floor, changed := conn.ClampBitrate(estimate)
			if !changed || floor == 0 {
				continue
			}
			logger.Debug().
				Uint64("estimate", estimate).
				Uint64("ceiling", floor).
				Float64("loss", sample.LossRatio).
				Msg("bitrate adjusted")
			if err := conn.WriteRTCP([]rtcp.Packet{
				&rtcp.ReceiverEstimatedMaximumBitrate{
					Bitrate: float32(floor),
					SSRCs:   conn.SenderSSRCs(),
				},
			}); err != nil {
				logger.Warn().Err(err).Msg("REMB write failed")
			}
		}
	}
}

// collectTotals folds the outbound video reports of one stats snapshot.
func collectTotals(report webrtc.StatsReport) outboundTotals {
	t := outboundTotals{sampledAt: time.Now()}
	for _, s := range report {
		switch stat := s.(type) {
		case webrtc.OutboundRTPStreamStats:
			if stat.Kind != "" && stat.Kind != "video" {
				continue
			}
			t.bytesSent += stat.BytesSent
			t.packetsSent += uint64(stat.PacketsSent)
		case webrtc.RemoteInboundRTPStreamStats:
			if stat.Kind != "" && stat.Kind != "video" {
				continue
			}
			t.packetsLost += int64(stat.PacketsLost)
			// Seconds on the wire, milliseconds in our thresholds.
			t.rttMs = stat.RoundTripTime * 1000
			t.jitterMs = stat.Jitter * 1000
		}
	}
	return t
}

func diffSample(prev, cur outboundTotals) FlowSample {
	sample := FlowSample{
		Elapsed:  cur.sampledAt.Sub(prev.sampledAt),
		RTTMs:    cur.rttMs,
		JitterMs: cur.jitterMs,
	}
	if cur.bytesSent > prev.bytesSent {
		sample.BytesSent = cur.bytesSent - prev.bytesSent
	}
	sent := int64(cur.packetsSent) - int64(prev.packetsSent)
	lost := cur.packetsLost - prev.packetsLost
	if sent > 0 && lost > 0 {
		sample.LossRatio = float64(lost) / float64(sent+lost)
	}
	return sample
}
