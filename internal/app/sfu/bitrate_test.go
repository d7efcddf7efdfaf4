package sfu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateBandwidthCleanLink(t *testing.T) {
	// 125_000 bytes over one second is exactly 1 Mbit/s.
	got := EstimateBandwidth(FlowSample{
		BytesSent: 125_000,
		Elapsed:   time.Second,
	})
	assert.Equal(t, uint64(1_000_000), got)
}

func TestEstimateBandwidthPenaltiesCompose(t *testing.T) {
	base := FlowSample{BytesSent: 125_000, Elapsed: time.Second}

	lossy := base
	lossy.LossRatio = 0.10
	assert.Equal(t, uint64(750_000), EstimateBandwidth(lossy))

	slow := base
	slow.RTTMs = 400
	assert.Equal(t, uint64(850_000), EstimateBandwidth(slow))

	jittery := base
	jittery.JitterMs = 150
	assert.Equal(t, uint64(900_000), EstimateBandwidth(jittery))

	// All three at once multiply, they do not add.
	bad := base
	bad.LossRatio = 0.10
	bad.RTTMs = 400
	bad.JitterMs = 150
	want := uint64(1_000_000 * 0.75 * 0.85 * 0.9)
	assert.Equal(t, want, EstimateBandwidth(bad))
}

func TestEstimateBandwidthAtThresholds(t *testing.T) {
	// Values exactly at a threshold do not trigger the penalty.
	s := FlowSample{
		BytesSent: 125_000,
		Elapsed:   time.Second,
		LossRatio: 0.05,
		RTTMs:     300,
		JitterMs:  100,
	}
	assert.Equal(t, uint64(1_000_000), EstimateBandwidth(s))
}

func TestEstimateBandwidthZeroElapsed(t *testing.T) {
	assert.Zero(t, EstimateBandwidth(FlowSample{BytesSent: 1000}))
	assert.Zero(t, EstimateBandwidth(FlowSample{BytesSent: 1000, Elapsed: -time.Second}))
}
