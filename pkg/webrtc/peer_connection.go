package webrtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

var ErrTooFewICEServers = errors.New("at least two ICE servers are required")

// pion/ice defaults, used for any timeout left at zero.
const (
	DefaultICEDisconnectedTimeout = 5 * time.Second
	DefaultICEFailedTimeout       = 25 * time.Second
	DefaultICEKeepaliveInterval   = 2 * time.Second
)

// PeerConnectionOptions represents options for peer connection
type PeerConnectionOptions struct {
	ICEServers  []webrtc.ICEServer
	DisableMDNS bool

	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
	ICEKeepaliveInterval   time.Duration

	Logger *slog.Logger
}

// DefaultPeerConnectionOptions returns default options
func DefaultPeerConnectionOptions() PeerConnectionOptions {
	return PeerConnectionOptions{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		DisableMDNS: true,
	}
}

// ICETimeouts returns the configured ICE timeouts with zero values replaced
// by the pion defaults. SetICETimeouts applies all three at once, so a
// zero would otherwise disable the failed state or keepalives.
func (o PeerConnectionOptions) ICETimeouts() (disconnected, failed, keepalive time.Duration) {
	disconnected, failed, keepalive = o.ICEDisconnectedTimeout, o.ICEFailedTimeout, o.ICEKeepaliveInterval
	if disconnected == 0 {
		disconnected = DefaultICEDisconnectedTimeout
	}
	if failed == 0 {
		failed = DefaultICEFailedTimeout
	}
	if keepalive == 0 {
		keepalive = DefaultICEKeepaliveInterval
	}
	return disconnected, failed, keepalive
}

// NewAPI builds a pion API with the default codecs and interceptors.
func NewAPI(options PeerConnectionOptions) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if options.DisableMDNS {
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}
	se.SetICETimeouts(options.ICETimeouts())

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	), nil
}

// PeerConnection wraps a WebRTC peer connection
type PeerConnection struct {
	id     string
	pc     *webrtc.PeerConnection
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewPeerConnection creates a new peer connection
func NewPeerConnection(id string, options PeerConnectionOptions) (*PeerConnection, error) {
	if len(options.ICEServers) < 2 {
		return nil, ErrTooFewICEServers
	}

	api, err := NewAPI(options)
	if err != nil {
		return nil, err
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: options.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PeerConnection{
		id:     id,
		pc:     pc,
		logger: logger.With(slog.String("pc", id)),
	}, nil
}

func (p *PeerConnection) ID() string {
	return p.id
}

// AddTrack attaches a local track and drains RTCP arriving for it.
func (p *PeerConnection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

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

// CreateOffer creates an SDP offer and sets it as the local description.
// Candidates are trickled through OnICECandidate.
func (p *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}

	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	return offer, nil
}

// CreateAnswer creates an SDP answer and sets it as the local description.
func (p *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}

	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	return answer, nil
}

// SetRemoteDescription sets the remote SDP
func (p *PeerConnection) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// AddICECandidate adds an ICE candidate. The remote description must be set.
func (p *PeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (p *PeerConnection) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(f)
}

func (p *PeerConnection) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.pc.OnTrack(f)
}

func (p *PeerConnection) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(f)
}

func (p *PeerConnection) OnICEConnectionStateChange(f func(webrtc.ICEConnectionState)) {
	p.pc.OnICEConnectionStateChange(f)
}

func (p *PeerConnection) WriteRTCP(pkts []rtcp.Packet) error {
	return p.pc.WriteRTCP(pkts)
}

func (p *PeerConnection) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

// Close closes the peer connection. Repeated calls return the first result.
func (p *PeerConnection) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
		p.logger.Debug("peer connection closed")
	})
	return p.closeErr
}
