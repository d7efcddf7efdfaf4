package sfu

import "time"

// FlowSample is one interval's worth of outbound media stats for a single
// connection. Consumed immediately to compute a bitrate ceiling, then
// discarded.
type FlowSample struct {
	BytesSent uint64
	Elapsed   time.Duration
	LossRatio float64
	RTTMs     float64
	JitterMs  float64
}

// Degradation thresholds and their multiplicative penalties.
const (
	lossThreshold   = 0.05
	lossPenalty     = 0.75
	rttThresholdMs  = 300.0
	rttPenalty      = 0.85
	jitterThreshMs  = 100.0
	jitterPenalty   = 0.9
)

// EstimateBandwidth derives an available-bandwidth estimate in bits/s from
// one sample: measured throughput with multiplicative penalties for loss,
// round-trip time and jitter. Penalties compose, they do not add.
func EstimateBandwidth(s FlowSample) uint64 {
	if s.Elapsed <= 0 {
		return 0
	}
	estimate := float64(s.BytesSent*8) / s.Elapsed.Seconds()
	if s.LossRatio > lossThreshold {
		estimate *= lossPenalty
	}
	if s.RTTMs > rttThresholdMs {
		estimate *= rttPenalty
	}
	if s.JitterMs > jitterThreshMs {
		estimate *= jitterPenalty
	}
	return uint64(estimate)
}
