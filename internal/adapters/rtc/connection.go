package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/sdp"
)

// Connection owns one underlying PeerConnection per participant. The
// transport is closed exactly once; terminal state callbacks after the
// first are no-ops.
type Connection struct {
	pc  *webrtc.PeerConnection
	sid core.SessionID

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onDC     func(*webrtc.DataChannel)
	onClosed func()

	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.Mutex
	closed    bool
	encodings map[*webrtc.RTPSender][]EncodingParams
}

func DefaultWebRTCConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunURLs},
		},
	}
}

// newAPI builds a webrtc API with default codecs and interceptors so
// NACK/TWCC feedback works out of the box.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)), nil
}

func NewConnection(cfg webrtc.Configuration, sid core.SessionID) (*Connection, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{
		pc:        pc,
		sid:       sid,
		encodings: make(map[*webrtc.RTPSender][]EncodingParams),
	}, nil
}

func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		log.Debug().Str("module", "rtc").Str("sid", string(c.sid)).Str("signaling_state", s.String()).Msg("signaling state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateDisconnected ||
			s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			c.Close()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			init := cand.ToJSON()
			init.Candidate = sdp.SanitizeCandidate(init.Candidate)
			c.onICE(init)
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track, receiver)
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("label", dc.Label()).Msg("data channel opened")
		if c.onDC != nil {
			c.onDC(dc)
		}
	})

	return nil
}

// ApplyOfferAndCreateAnswer validates the remote offer, injects the RTCP
// attributes some client builds omit, and returns the local answer after
// ICE gathering completes.
func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := sdp.ValidateDescription(offer.Type.String(), offer.SDP); err != nil {
		return nil, err
	}
	offer.SDP = sdp.EnsureRTCPAttributes(sdp.SanitizeSDP(offer.SDP))

	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDescription, err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("sid", string(c.sid)).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Msg("closed")
		}
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	ci.Candidate = sdp.SanitizeCandidate(ci.Candidate)
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

func (c *Connection) OnDataChannel(fn func(*webrtc.DataChannel)) { c.onDC = fn }

// OnClosed sets an application-level cleanup callback, fired at most once.
func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }

// AddLocalTrack attaches a local static RTP track and starts draining the
// sender's RTCP so interceptor feedback keeps flowing.
func (c *Connection) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.encodings[sender] = defaultEncodings()
	c.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (c *Connection) WriteRTCP(pkts []rtcp.Packet) error {
	return c.pc.WriteRTCP(pkts)
}

func (c *Connection) Stats() webrtc.StatsReport {
	return c.pc.GetStats()
}
