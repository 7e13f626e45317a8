package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	payload "github.com/HMasataka/counsel/payload/signaling"
	"github.com/HMasataka/counsel/pkg/sdpdebug"
	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

const defaultMaxEarlyCandidates = 64

var (
	errInvalidCallType   = errors.New("invalid call type")
	errNoTarget          = errors.New("target user id is required")
	errUnexpectedAnswer  = errors.New("answer without an outstanding offer")
	errOfferWithoutAudio = errors.New("offer has no audio section")
	errOfferWithoutVideo = errors.New("video offer has no video section")
)

type EngineConfig struct {
	SelfID            string
	Signaler          Signaler
	Devices           pkgwebrtc.MediaDevices
	NewPeerConnection PeerConnectionFactory
	Observer          EngineObserver
	Logger            *slog.Logger

	// MaxEarlyCandidates bounds the candidates held for an incoming call
	// that has not been answered yet. The oldest are dropped first.
	MaxEarlyCandidates int
}

type StartRequest struct {
	// CallID is generated when empty.
	CallID       string
	TargetUserID string
	CallType     payload.CallType
	ChatID       string
	// Caller describes the local user to the receiver.
	Caller       *payload.Participant
	// Target is informational and never sent.
	Target       *payload.Participant
}

type IncomingOffer struct {
	CallID     string
	FromUserID string
	CallType   payload.CallType
	ChatID     string
	Caller     *payload.Participant
	Offer      webrtc.SessionDescription
}

// IncomingOfferFromMessage decodes an offer message.
func IncomingOfferFromMessage(msg *payload.Message) (IncomingOffer, error) {
	var p payload.OfferPayload
	if err := msg.Decode(&p); err != nil {
		return IncomingOffer{}, fmt.Errorf("failed to decode offer: %w", err)
	}

	return IncomingOffer{
		CallID:     msg.CallID,
		FromUserID: msg.FromUserID,
		CallType:   p.CallType,
		ChatID:     p.ChatID,
		Caller:     p.Caller,
		Offer:      p.Offer,
	}, nil
}

// NewPeerConnectionFactory returns a factory building pion peer connections
// with options.
func NewPeerConnectionFactory(options pkgwebrtc.PeerConnectionOptions) PeerConnectionFactory {
	return func(callID string) (PeerConnection, error) {
		pc, err := pkgwebrtc.NewPeerConnection(callID, options)
		if err != nil {
			return nil, err
		}
		return pc, nil
	}
}

type session struct {
	id       string
	role     Role
	callType payload.CallType
	target   string

	ctx    context.Context
	cancel context.CancelFunc

	pc     PeerConnection
	local  *pkgwebrtc.LocalStream
	remote *pkgwebrtc.RemoteStream

	// remote candidates wait here until the remote description is set
	remoteCandidates deque.Deque[webrtc.ICECandidateInit]
	remoteSet        bool
	settingRemote    bool
	applied          int

	// local candidates wait here until the offer or answer has been sent
	localCandidates deque.Deque[webrtc.ICECandidateInit]
	signalReady     bool

	// sendMu is held across the closed check and each send, so release
	// returns only after any in-flight message has gone out.
	sendMu sync.Mutex
	closed bool
}

// Engine owns the media and peer connection of at most one call.
type Engine struct {
	selfID            string
	signaler          Signaler
	devices           pkgwebrtc.MediaDevices
	newPeerConnection PeerConnectionFactory
	observer          EngineObserver
	logger            *slog.Logger
	maxEarly          int

	mu      sync.Mutex
	session *session
	early   map[string]*deque.Deque[webrtc.ICECandidateInit]
}

func NewEngine(config EngineConfig) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	devices := config.Devices
	if devices == nil {
		devices = pkgwebrtc.SyntheticDevices{}
	}

	newPeerConnection := config.NewPeerConnection
	if newPeerConnection == nil {
		newPeerConnection = NewPeerConnectionFactory(pkgwebrtc.DefaultPeerConnectionOptions())
	}

	var observer EngineObserver = nopEngineObserver{}
	if config.Observer != nil {
		observer = config.Observer
	}

	maxEarly := config.MaxEarlyCandidates
	if maxEarly <= 0 {
		maxEarly = defaultMaxEarlyCandidates
	}

	return &Engine{
		selfID:            config.SelfID,
		signaler:          config.Signaler,
		devices:           devices,
		newPeerConnection: newPeerConnection,
		observer:          observer,
		logger:            logger.With(slog.String("self", config.SelfID)),
		maxEarly:          maxEarly,
		early:             make(map[string]*deque.Deque[webrtc.ICECandidateInit]),
	}
}

// StartCall acquires media, creates the peer connection and sends the offer.
// It returns the call id used on the wire.
func (e *Engine) StartCall(ctx context.Context, req StartRequest) (string, error) {
	callID := req.CallID
	if callID == "" {
		callID = uuid.NewString()
	}

	if !req.CallType.Valid() {
		return "", newCallError(callID, ErrConnectionSetup, fmt.Errorf("%w: %q", errInvalidCallType, req.CallType))
	}
	if req.TargetUserID == "" {
		return "", newCallError(callID, ErrConnectionSetup, errNoTarget)
	}

	s, err := e.reserve(ctx, callID, RoleInitiator, req.CallType, req.TargetUserID)
	if err != nil {
		return "", err
	}

	if err := e.acquire(ctx, s); err != nil {
		return "", err
	}
	if err := e.addTracks(s); err != nil {
		return "", err
	}

	offer, err := s.pc.CreateOffer()
	if err != nil {
		return "", e.fail(s, ErrNegotiation, err)
	}
	if e.isClosed(s) {
		return "", newCallError(callID, ErrCallCancelled, nil)
	}
	sdpdebug.Log(e.logger, "local offer", offer)

	msg, err := payload.NewOfferMessage(callID, req.TargetUserID, payload.OfferPayload{
		CallType: req.CallType,
		ChatID:   req.ChatID,
		Caller:   req.Caller,
		Offer:    offer,
	})
	if err != nil {
		return "", e.fail(s, ErrNegotiation, err)
	}

	if !e.signal(ctx, s, msg) {
		return "", newCallError(callID, ErrCallCancelled, nil)
	}

	e.logger.Info("call started",
		slog.String("call_id", callID),
		slog.String("target", req.TargetUserID),
		slog.String("call_type", string(req.CallType)))

	return callID, nil
}

// AnswerCall applies an inbound offer and sends the answer. Media follows
// acceptType, which must be covered by the offered call type.
func (e *Engine) AnswerCall(ctx context.Context, offer IncomingOffer, acceptType payload.CallType) error {
	if !offer.CallType.Valid() || !acceptType.Valid() {
		return newCallError(offer.CallID, ErrNegotiation, errInvalidCallType)
	}
	if !offer.CallType.Includes(acceptType) {
		return newCallError(offer.CallID, ErrCallTypeMismatch,
			fmt.Errorf("offered %s, accepted %s", offer.CallType, acceptType))
	}

	summary, err := sdpdebug.Inspect(offer.Offer)
	if err != nil {
		return newCallError(offer.CallID, ErrNegotiation, err)
	}
	if !summary.Audio {
		return newCallError(offer.CallID, ErrNegotiation, errOfferWithoutAudio)
	}
	if offer.CallType == payload.CallTypeVideo && !summary.Video {
		return newCallError(offer.CallID, ErrNegotiation, errOfferWithoutVideo)
	}

	s, err := e.reserve(ctx, offer.CallID, RoleReceiver, acceptType, offer.FromUserID)
	if err != nil {
		return err
	}

	if err := e.acquire(ctx, s); err != nil {
		return err
	}

	sdpdebug.Log(e.logger, "remote offer", offer.Offer)
	if err := s.pc.SetRemoteDescription(offer.Offer); err != nil {
		return e.fail(s, ErrNegotiation, err)
	}
	if err := e.remoteDescriptionSet(s); err != nil {
		return err
	}

	if err := e.addTracks(s); err != nil {
		return err
	}

	answer, err := s.pc.CreateAnswer()
	if err != nil {
		return e.fail(s, ErrNegotiation, err)
	}
	if e.isClosed(s) {
		return newCallError(s.id, ErrCallCancelled, nil)
	}

	msg, err := payload.NewAnswerMessage(offer.CallID, offer.FromUserID, answer)
	if err != nil {
		return e.fail(s, ErrNegotiation, err)
	}

	if !e.signal(ctx, s, msg) {
		return newCallError(offer.CallID, ErrCallCancelled, nil)
	}

	e.logger.Info("call answered",
		slog.String("call_id", offer.CallID),
		slog.String("from", offer.FromUserID),
		slog.String("accept_type", string(acceptType)))

	return nil
}

// HandleAnswer applies the receiver's answer to the outgoing call. A repeated
// answer is ignored.
func (e *Engine) HandleAnswer(ctx context.Context, callID string, answer webrtc.SessionDescription) error {
	e.mu.Lock()
	s := e.session
	if s == nil || s.id != callID {
		e.mu.Unlock()
		return newCallError(callID, ErrUnknownCall, nil)
	}
	if s.role != RoleInitiator || s.pc == nil {
		e.mu.Unlock()
		return newCallError(callID, ErrNegotiation, errUnexpectedAnswer)
	}
	if s.remoteSet || s.settingRemote {
		e.mu.Unlock()
		e.logger.Debug("duplicate answer ignored", slog.String("call_id", callID))
		return nil
	}
	s.settingRemote = true
	pc := s.pc
	e.mu.Unlock()

	sdpdebug.Log(e.logger, "remote answer", answer)
	if err := pc.SetRemoteDescription(answer); err != nil {
		return e.fail(s, ErrNegotiation, err)
	}

	return e.remoteDescriptionSet(s)
}

// AddRemoteICECandidate applies a candidate from the peer, or holds it until
// the remote description is set. Candidates for an incoming call are held
// from ExpectIncoming until the call is answered or discarded.
func (e *Engine) AddRemoteICECandidate(callID string, candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.session; s != nil && s.id == callID {
		if !s.remoteSet || s.pc == nil {
			s.remoteCandidates.PushBack(candidate)
			e.logger.Debug("remote candidate buffered",
				slog.String("call_id", callID),
				slog.Int("buffered", s.remoteCandidates.Len()))
			return nil
		}

		if err := s.pc.AddICECandidate(candidate); err != nil {
			e.logger.Warn("failed to add remote candidate",
				slog.String("call_id", callID),
				slog.String("error", err.Error()))
			return newCallError(callID, ErrNegotiation, err)
		}
		s.applied++
		return nil
	}

	if q, ok := e.early[callID]; ok {
		if q.Len() >= e.maxEarly {
			q.PopFront()
		}
		q.PushBack(candidate)
		return nil
	}

	return newCallError(callID, ErrUnknownCall, nil)
}

// ExpectIncoming starts holding candidates for an offer that has been
// surfaced but not answered.
func (e *Engine) ExpectIncoming(callID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.early[callID]; !ok {
		e.early[callID] = &deque.Deque[webrtc.ICECandidateInit]{}
	}
}

// DiscardIncoming drops the candidates held for callID.
func (e *Engine) DiscardIncoming(callID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.early, callID)
}

func (e *Engine) ToggleLocalAudio() bool {
	return e.toggle(webrtc.RTPCodecTypeAudio)
}

func (e *Engine) ToggleLocalVideo() bool {
	return e.toggle(webrtc.RTPCodecTypeVideo)
}

func (e *Engine) toggle(kind webrtc.RTPCodecType) bool {
	track := e.localTrack(kind)
	if track == nil {
		return false
	}
	return track.Toggle()
}

// LocalEnabled reports the enabled flag of the local tracks. A missing track
// reports false.
func (e *Engine) LocalEnabled() (audio, video bool) {
	if t := e.localTrack(webrtc.RTPCodecTypeAudio); t != nil {
		audio = t.Enabled()
	}
	if t := e.localTrack(webrtc.RTPCodecTypeVideo); t != nil {
		video = t.Enabled()
	}
	return audio, video
}

func (e *Engine) localTrack(kind webrtc.RTPCodecType) *pkgwebrtc.LocalTrack {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil || s.local == nil {
		return nil
	}
	if kind == webrtc.RTPCodecTypeVideo {
		return s.local.VideoTrack()
	}
	return s.local.AudioTrack()
}

// CallID returns the id of the live session, or "".
func (e *Engine) CallID() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return ""
	}
	return e.session.id
}

func (e *Engine) LocalStream() *pkgwebrtc.LocalStream {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	return e.session.local
}

func (e *Engine) RemoteStream() *pkgwebrtc.RemoteStream {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	return e.session.remote
}

// Teardown closes the peer connection, stops local media and forgets the
// remote stream. It may be called any number of times from any goroutine,
// including while StartCall or AnswerCall is running.
func (e *Engine) Teardown() {
	e.mu.Lock()
	s := e.session
	clear(e.early)
	e.mu.Unlock()

	if s != nil {
		e.release(s)
	}
}

func (e *Engine) reserve(ctx context.Context, callID string, role Role, callType payload.CallType, target string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, newCallError(callID, ErrCallCancelled, err)
	}

	if e.session != nil {
		return nil, newCallError(callID, ErrSessionActive, fmt.Errorf("call %s is live", e.session.id))
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       callID,
		role:     role,
		callType: callType,
		target:   target,
		ctx:      sessionCtx,
		cancel:   cancel,
	}

	if q, ok := e.early[callID]; ok {
		for q.Len() > 0 {
			s.remoteCandidates.PushBack(q.PopFront())
		}
	}
	clear(e.early)

	e.session = s
	return s, nil
}

// acquire obtains local media and the peer connection for s. On failure
// everything obtained so far is released.
func (e *Engine) acquire(ctx context.Context, s *session) error {
	stream, err := e.devices.GetUserMedia(ctx, pkgwebrtc.MediaConstraints{
		Audio: true,
		Video: s.callType == payload.CallTypeVideo,
	})
	if err != nil {
		return e.fail(s, ErrMediaAccess, err)
	}
	if !e.attach(s, func() { s.local = stream }) {
		stream.Stop()
		return newCallError(s.id, ErrCallCancelled, nil)
	}

	pc, err := e.newPeerConnection(s.id)
	if err != nil {
		return e.fail(s, ErrConnectionSetup, err)
	}
	if !e.attach(s, func() { s.pc = pc }) {
		_ = pc.Close()
		return newCallError(s.id, ErrCallCancelled, nil)
	}

	e.wire(s, pc)
	return nil
}

func (e *Engine) addTracks(s *session) error {
	for _, track := range s.local.Tracks() {
		if _, err := s.pc.AddTrack(track.Track()); err != nil {
			return e.fail(s, ErrConnectionSetup, err)
		}
	}
	return nil
}

func (e *Engine) wire(s *session, pc PeerConnection) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		e.sendLocalCandidate(s, c.ToJSON())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.addRemoteTrack(s, track.StreamID(), track.ID(), track.Kind(),
			track.Codec().RTPCodecCapability, uint32(track.SSRC()), track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if e.isClosed(s) {
			return
		}
		e.logger.Info("connection state changed",
			slog.String("call_id", s.id),
			slog.String("state", state.String()))
		e.observer.OnConnectionStateChange(s.id, state)
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if e.isClosed(s) {
			return
		}
		e.logger.Debug("ice connection state changed",
			slog.String("call_id", s.id),
			slog.String("state", state.String()))
		if state == webrtc.ICEConnectionStateFailed {
			e.observer.OnError(s.id, newCallError(s.id, ErrICEFailure, nil))
		}
	})
}

func (e *Engine) attach(s *session, fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.closed {
		return false
	}
	fn()
	return true
}

func (e *Engine) isClosed(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.closed
}

// fail releases s and reports kind, unless s was already torn down, in which
// case the attempt was cancelled.
func (e *Engine) fail(s *session, kind, err error) error {
	if e.release(s) {
		e.logger.Warn("call attempt failed",
			slog.String("call_id", s.id),
			slog.String("kind", kind.Error()),
			slog.String("error", err.Error()))
		return newCallError(s.id, kind, err)
	}
	return newCallError(s.id, ErrCallCancelled, err)
}

// release closes everything s owns. It reports false when s was already
// released.
func (e *Engine) release(s *session) bool {
	e.mu.Lock()
	if s.closed {
		e.mu.Unlock()
		return false
	}
	s.closed = true
	if e.session == s {
		e.session = nil
	}
	pc, local, remote := s.pc, s.local, s.remote
	s.remote = nil
	s.remoteCandidates.Clear()
	s.localCandidates.Clear()
	s.cancel()
	e.mu.Unlock()

	// wait out a send that passed its closed check before we got here
	s.sendMu.Lock()
	s.sendMu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			e.logger.Warn("failed to close peer connection",
				slog.String("call_id", s.id),
				slog.String("error", err.Error()))
		}
	}
	if local != nil {
		local.Stop()
	}
	if remote != nil {
		remote.Close()
	}

	e.logger.Debug("call session released", slog.String("call_id", s.id))
	return true
}

// remoteDescriptionSet marks s ready for remote candidates and applies the
// ones held so far, in arrival order.
func (e *Engine) remoteDescriptionSet(s *session) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.closed {
		return newCallError(s.id, ErrCallCancelled, nil)
	}

	s.remoteSet = true
	s.settingRemote = false

	for s.remoteCandidates.Len() > 0 {
		candidate := s.remoteCandidates.PopFront()
		if err := s.pc.AddICECandidate(candidate); err != nil {
			e.logger.Warn("failed to add buffered candidate",
				slog.String("call_id", s.id),
				slog.String("error", err.Error()))
			continue
		}
		s.applied++
	}

	return nil
}

// signal sends the offer or answer, then releases the local candidates
// gathered while it was being produced.
// signal sends the offer or answer of s and then flushes the local
// candidates held until now. It reports false when s was already released
// and nothing was sent.
func (e *Engine) signal(ctx context.Context, s *session, msg *payload.Message) bool {
	if !e.sendUnlessClosed(ctx, s, msg) {
		return false
	}

	e.mu.Lock()
	s.signalReady = true
	pending := make([]webrtc.ICECandidateInit, 0, s.localCandidates.Len())
	for s.localCandidates.Len() > 0 {
		pending = append(pending, s.localCandidates.PopFront())
	}
	e.mu.Unlock()

	for _, candidate := range pending {
		e.sendCandidate(s, candidate)
	}
	return true
}

func (e *Engine) sendUnlessClosed(ctx context.Context, s *session, msg *payload.Message) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if e.isClosed(s) {
		e.logger.Debug("message for released call not sent",
			slog.String("call_id", s.id),
			slog.String("type", string(msg.Type)))
		return false
	}
	if !e.signaler.Send(ctx, msg) {
		e.logger.Warn("signaling message not delivered",
			slog.String("call_id", s.id),
			slog.String("type", string(msg.Type)),
			slog.String("error", ErrSignalingDelivery.Error()))
	}
	return true
}

func (e *Engine) sendLocalCandidate(s *session, candidate webrtc.ICECandidateInit) {
	e.mu.Lock()
	if s.closed {
		e.mu.Unlock()
		return
	}
	if !s.signalReady {
		s.localCandidates.PushBack(candidate)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.sendCandidate(s, candidate)
}

func (e *Engine) sendCandidate(s *session, candidate webrtc.ICECandidateInit) {
	msg, err := payload.NewICECandidateMessage(s.id, s.target, candidate)
	if err != nil {
		e.logger.Warn("failed to build candidate message", slog.String("error", err.Error()))
		return
	}
	e.sendUnlessClosed(s.ctx, s, msg)
}

func (e *Engine) addRemoteTrack(s *session, streamID, trackID string, kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability, ssrc uint32, src pkgwebrtc.RTPReader) {
	e.mu.Lock()
	if s.closed {
		e.mu.Unlock()
		return
	}
	if s.remote == nil {
		s.remote = pkgwebrtc.NewRemoteStream(streamID)
	}
	track := pkgwebrtc.NewRemoteTrack(trackID, kind, codec)
	s.remote.AddTrack(track)
	stream, pc, ctx := s.remote, s.pc, s.ctx
	e.mu.Unlock()

	e.logger.Info("remote track added",
		slog.String("call_id", s.id),
		slog.String("kind", kind.String()),
		slog.String("codec", codec.MimeType))

	if kind == webrtc.RTPCodecTypeVideo && pc != nil {
		if err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
			e.logger.Warn("failed to request keyframe",
				slog.String("call_id", s.id),
				slog.String("error", err.Error()))
		}
	}

	if src != nil {
		go func() {
			if err := track.ReadLoop(ctx, src); err != nil && ctx.Err() == nil {
				e.logger.Debug("remote track reader stopped",
					slog.String("call_id", s.id),
					slog.String("error", err.Error()))
			}
		}()
	}

	e.observer.OnRemoteStream(s.id, stream)
}

type nopEngineObserver struct{}

func (nopEngineObserver) OnRemoteStream(string, *pkgwebrtc.RemoteStream) {}

func (nopEngineObserver) OnConnectionStateChange(string, webrtc.PeerConnectionState) {}

func (nopEngineObserver) OnError(string, error) {}
