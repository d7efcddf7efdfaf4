package core

import (
	"context"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is the transport handle for one participant. Created on
// negotiation start, closed exactly once: on explicit stop, on disconnect,
// or on the transport entering a terminal state, whichever happens first.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close releases all senders/receivers and the transport. Idempotent.
	Close()
	IsClosed() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// ApplyOfferAndCreateAnswer validates and applies the remote offer, then
	// returns the gathered local answer.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnDataChannel sets a callback for remotely opened data channels.
	OnDataChannel(func(*webrtc.DataChannel))
	// OnClosed sets a callback for cleanup, fired at most once.
	OnClosed(func())
	// AddLocalTrack attaches a local static RTP track to the underlying PeerConnection.
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	// WriteRTCP sends RTCP packets (PLI, REMB) to the remote peer.
	WriteRTCP([]rtcp.Packet) error
	// Stats returns a point-in-time snapshot of the transport's stats.
	Stats() webrtc.StatsReport
}
