package orch

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
)

const (
	dcMessageLimit  = 5
	dcLimitInterval = time.Second
)

// msgRateLimiter is a sliding-window counter for one data channel.
type msgRateLimiter struct {
	mu       sync.Mutex
	history  []time.Time
	limit    int
	interval time.Duration
}

func newMsgRateLimiter(limit int, interval time.Duration) *msgRateLimiter {
	return &msgRateLimiter{limit: limit, interval: interval}
}

func (rl *msgRateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	fresh := rl.history[:0]
	for _, t := range rl.history {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history = fresh
		return false
	}
	rl.history = append(fresh, now)
	return true
}

// guardDataChannel wires the keepalive channel broadcasters open: "ping"
// gets "pong", anything else or an over-limit sender gets the channel
// closed.
func (o *Orchestrator) guardDataChannel(sid core.SessionID, dc *webrtc.DataChannel) {
	limiter := newMsgRateLimiter(dcMessageLimit, dcLimitInterval)

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !limiter.Allow() {
			log.Warn().
				Str("module", "orch").
				Str("sid", string(sid)).
				Str("label", dc.Label()).
				Msg("data channel message rate limit exceeded, closing")
			_ = dc.Close()
			return
		}
		if msg.IsString && string(msg.Data) == "ping" {
			if err := dc.SendText("pong"); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("pong send failed")
			}
			return
		}
		log.Warn().
			Str("module", "orch").
			Str("sid", string(sid)).
			Str("label", dc.Label()).
			Msg("unexpected data channel message, closing")
		_ = dc.Close()
	})

	dc.OnClose(func() {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("label", dc.Label()).Msg("data channel closed")
	})
}
