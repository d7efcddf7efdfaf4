// Package metrics exposes the process-wide prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_active_streams",
		Help: "Number of broadcaster streams currently forwarded.",
	})

	Participants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_participant_connections",
		Help: "Number of live participant media connections.",
	})

	ForwardedPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_forwarded_rtp_packets_total",
		Help: "RTP packets written to subscriber tracks.",
	})

	FanoutErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_fanout_errors_total",
		Help: "Per-subscriber write failures during fan-out.",
	})

	RejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfu_rejected_requests_total",
		Help: "Signaling requests rejected, by reason.",
	}, []string{"reason"})
)
