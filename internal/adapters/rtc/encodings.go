package rtc

import "github.com/pion/webrtc/v4"

// EncodingParams is the server-side bookkeeping for one outbound encoding
// layer. Pion does not expose writable sender encodings, so the clamped
// ceiling is signaled to the remote encoder via REMB instead.
type EncodingParams struct {
	RID                   string
	MaxBitrate            uint64
	ScaleResolutionDownBy float64
	ScalabilityMode       string
}

// Three spatial layers at descending bitrate/resolution.
func simulcastEncodings() []EncodingParams {
	return []EncodingParams{
		{RID: "f", MaxBitrate: 500_000},
		{RID: "h", MaxBitrate: 200_000, ScaleResolutionDownBy: 2.0},
		{RID: "q", MaxBitrate: 100_000, ScaleResolutionDownBy: 4.0},
	}
}

func defaultEncodings() []EncodingParams {
	return []EncodingParams{{MaxBitrate: 500_000}}
}

// EnableSimulcast replaces the sender's encodings with the three-layer
// simulcast ladder.
func (c *Connection) EnableSimulcast(sender *webrtc.RTPSender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encodings[sender] = simulcastEncodings()
}

// EnableSVC turns on temporal layering for the sender's base encoding.
func (c *Connection) EnableSVC(sender *webrtc.RTPSender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	enc := c.encodings[sender]
	if len(enc) == 0 {
		enc = defaultEncodings()
	}
	enc[0].ScalabilityMode = "L3T3_KEY"
	c.encodings[sender] = enc
}

// ClampBitrate caps every encoding's max bitrate to min(current, estimate).
// The clamp is monotonically non-increasing per cycle and never raises an
// encoding above its configured ceiling. It returns the lowest resulting
// ceiling, which the monitor signals back to the encoder.
func (c *Connection) ClampBitrate(estimate uint64) (floor uint64, changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sender, encs := range c.encodings {
		for i := range encs {
			if estimate < encs[i].MaxBitrate {
				encs[i].MaxBitrate = estimate
				changed = true
			}
			if floor == 0 || encs[i].MaxBitrate < floor {
				floor = encs[i].MaxBitrate
			}
		}
		c.encodings[sender] = encs
	}
	return floor, changed
}

// SenderSSRCs lists the SSRCs of all outbound encodings, for REMB.
func (c *Connection) SenderSSRCs() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint32, 0, len(c.encodings))
	for sender := range c.encodings {
		for _, enc := range sender.GetParameters().Encodings {
			out = append(out, uint32(enc.SSRC))
		}
	}
	return out
}

// HasVideoSender reports whether any outbound track is video, which is
// what gates network monitoring.
func (c *Connection) HasVideoSender() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sender := range c.encodings {
		if t := sender.Track(); t != nil && t.Kind() == webrtc.RTPCodecTypeVideo {
			return true
		}
	}
	return false
}
