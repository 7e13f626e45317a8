package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/counsel/internal/signaling"
	payload "github.com/HMasataka/counsel/payload/signaling"
	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
	"github.com/bep/debounce"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

const (
	DefaultIncomingTimeout = 30 * time.Second
	DefaultRingTimeout     = 45 * time.Second
	DefaultStateDebounce   = 250 * time.Millisecond

	transcriptTimeout = 5 * time.Second
)

var errPeerConnectionFailed = errors.New("peer connection failed")

type CoordinatorConfig struct {
	SelfID    string
	Transport MessageBus

	Devices           pkgwebrtc.MediaDevices
	NewPeerConnection PeerConnectionFactory

	Observer   Observer
	Transcript TranscriptSink
	Clock      Clock
	Logger     *slog.Logger

	// IncomingTimeout is how long an unanswered incoming call rings.
	// Zero selects DefaultIncomingTimeout.
	IncomingTimeout time.Duration
	// RingTimeout is how long an outgoing call waits to connect. Zero selects
	// DefaultRingTimeout, a negative value disables it.
	RingTimeout time.Duration
	// StateDebounce coalesces notifications that only change the connection
	// state. Zero selects DefaultStateDebounce, a negative value disables it.
	StateDebounce time.Duration
}

// Coordinator is the call state machine. Intents, inbound signaling and
// engine events are all serialized on a single worker; intents never block.
type Coordinator struct {
	selfID          string
	transport       MessageBus
	engine          *Engine
	observer        Observer
	transcript      TranscriptSink
	clock           Clock
	logger          *slog.Logger
	incomingTimeout time.Duration
	ringTimeout     time.Duration

	pool      *workerpool.WorkerPool
	sinkPool  *workerpool.WorkerPool
	debounced func(func())
	pending   atomic.Int32
	callbacks atomic.Int32

	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once

	handlers map[payload.MessageType]signaling.HandlerID

	// owned by the worker
	snap     Snapshot
	offer    *IncomingOffer
	timer    Timer
	opCancel context.CancelFunc

	mu        sync.RWMutex
	published Snapshot
	last      Snapshot
}

func NewCoordinator(config CoordinatorConfig) *Coordinator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var next Observer = nopObserver{}
	if config.Observer != nil {
		next = config.Observer
	}

	var clock Clock = systemClock{}
	if config.Clock != nil {
		clock = config.Clock
	}

	incomingTimeout := config.IncomingTimeout
	if incomingTimeout == 0 {
		incomingTimeout = DefaultIncomingTimeout
	}

	ringTimeout := config.RingTimeout
	if ringTimeout == 0 {
		ringTimeout = DefaultRingTimeout
	}

	c := &Coordinator{
		selfID:          config.SelfID,
		transport:       config.Transport,
		transcript:      config.Transcript,
		clock:           clock,
		logger:          logger.With(slog.String("self", config.SelfID)),
		incomingTimeout: incomingTimeout,
		ringTimeout:     ringTimeout,
		pool:            workerpool.New(1),
		sinkPool:        workerpool.New(1),
		handlers:        make(map[payload.MessageType]signaling.HandlerID),
		snap:            Snapshot{State: StateIdle},
		published:       Snapshot{State: StateIdle},
	}

	c.observer = loopObserver{c: c, next: next}

	switch {
	case config.StateDebounce == 0:
		c.debounced = debounce.New(DefaultStateDebounce)
	case config.StateDebounce > 0:
		c.debounced = debounce.New(config.StateDebounce)
	}

	c.engine = NewEngine(EngineConfig{
		SelfID:            config.SelfID,
		Signaler:          config.Transport,
		Devices:           config.Devices,
		NewPeerConnection: config.NewPeerConnection,
		Observer:          engineEvents{c},
		Logger:            logger,
	})

	for _, mt := range payload.MessageTypes {
		c.handlers[mt] = c.transport.OnMessage(mt, c.onMessage)
	}

	return c
}

// Snapshot returns the most recently published state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published
}

// LastCall returns the final snapshot of the most recent call.
func (c *Coordinator) LastCall() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Start places a call and returns its id. The intent runs on the loop; if
// the session is not idle by then the call is not placed and the observer
// gets OnError with ErrSessionActive for the returned id.
func (c *Coordinator) Start(req StartRequest) string {
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}
	c.submit(func() { c.start(req) })
	return req.CallID
}

// Accept answers the incoming call. An empty acceptType accepts the offered type.
func (c *Coordinator) Accept(acceptType payload.CallType) {
	c.submit(func() { c.accept(acceptType) })
}

// Reject declines an incoming call, or cancels an outgoing one.
func (c *Coordinator) Reject() {
	c.submit(c.reject)
}

func (c *Coordinator) End() {
	c.submit(c.end)
}

func (c *Coordinator) ToggleMute() {
	c.submit(func() { c.toggle(webrtc.RTPCodecTypeAudio) })
}

func (c *Coordinator) ToggleVideo() {
	c.submit(func() { c.toggle(webrtc.RTPCodecTypeVideo) })
}

// Close detaches from the transport, hangs up a live call and stops the loop.
// Called from an Observer callback it schedules the shutdown and returns
// without waiting, since the callback itself runs on the loop.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		for mt, id := range c.handlers {
			c.transport.OffMessage(mt, id)
		}

		c.closeMu.Lock()
		c.closed = true
		c.pool.Submit(c.hangup)
		c.closeMu.Unlock()

		stop := func() {
			c.pool.StopWait()
			c.engine.Teardown()
			c.sinkPool.StopWait()
		}

		if c.callbacks.Load() > 0 {
			c.logger.Warn("close called from an observer callback, stopping in the background")
			go stop()
			return
		}
		stop()
	})
}

func (c *Coordinator) submit(task func()) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()

	if c.closed {
		return
	}
	c.pool.Submit(task)
}

// async runs op off the loop and hands its result back to the loop.
func (c *Coordinator) async(op func() error, done func(error)) {
	c.pending.Add(1)
	go func() {
		err := op()
		c.submit(func() { done(err) })
		c.pending.Add(-1)
	}()
}

func (c *Coordinator) start(req StartRequest) {
	if c.snap.State != StateIdle {
		c.logger.Warn("start ignored, session busy",
			slog.String("state", string(c.snap.State)),
			slog.String("call_id", c.snap.CallID))
		c.observer.OnError(req.CallID, newCallError(req.CallID, ErrSessionActive, nil))
		return
	}

	if !req.CallType.Valid() || req.TargetUserID == "" {
		c.logger.Warn("start ignored, invalid request",
			slog.String("call_type", string(req.CallType)),
			slog.String("target", req.TargetUserID))
		c.observer.OnError(req.CallID, newCallError(req.CallID, ErrConnectionSetup, errInvalidCallType))
		return
	}

	peer := payload.Participant{ID: req.TargetUserID}
	if req.Target != nil {
		peer = *req.Target
		peer.ID = req.TargetUserID
	}

	callID := req.CallID
	c.snap = Snapshot{
		State:    StateOutgoing,
		CallID:   callID,
		CallType: req.CallType,
		Role:     RoleInitiator,
		Peer:     peer,
		ChatID:   req.ChatID,
		Busy:     true,
	}
	c.publish()
	c.arm(c.ringTimeout, callID, c.ringTimedOut)

	ctx := c.operation()
	c.async(func() error {
		_, err := c.engine.StartCall(ctx, req)
		return err
	}, func(err error) {
		if err != nil {
			c.fail(callID, err)
			return
		}
		if c.snap.CallID != callID || c.snap.State != StateOutgoing {
			return
		}
		c.snap.State = StateRinging
		c.snap.Busy = false
		c.refreshLocal()
		c.publish()
	})
}

func (c *Coordinator) accept(acceptType payload.CallType) {
	if c.snap.State != StateIncoming || c.snap.Answered || c.offer == nil {
		c.logger.Warn("accept ignored",
			slog.String("state", string(c.snap.State)),
			slog.Bool("answered", c.snap.Answered))
		return
	}

	callID := c.snap.CallID
	offer := *c.offer
	if acceptType == "" {
		acceptType = offer.CallType
	}

	if !acceptType.Valid() || !offer.CallType.Includes(acceptType) {
		c.fail(callID, newCallError(callID, ErrCallTypeMismatch,
			fmt.Errorf("offered %s, accepted %s", offer.CallType, acceptType)))
		return
	}

	c.stopTimer()
	c.snap.Answered = true
	c.snap.Busy = true
	c.snap.CallType = acceptType
	c.publish()

	c.send(payload.NewAcceptMessage(callID, offer.FromUserID, acceptType))

	ctx := c.operation()
	c.async(func() error {
		return c.engine.AnswerCall(ctx, offer, acceptType)
	}, func(err error) {
		if err != nil {
			c.fail(callID, err)
			return
		}
		if c.snap.CallID != callID || !c.snap.Live() {
			return
		}
		c.snap.Busy = false
		c.refreshLocal()
		c.publish()
	})
}

func (c *Coordinator) reject() {
	s := c.snap

	switch {
	case s.State == StateIncoming && !s.Answered:
		c.release()
		c.send(payload.NewRejectMessage(s.CallID, s.Peer.ID, payload.ReasonDeclined))
		c.finish(payload.ReasonDeclined, nil)
	case s.State == StateIncoming:
		c.end()
	case s.State == StateOutgoing || s.State == StateRinging:
		c.release()
		c.send(payload.NewRejectMessage(s.CallID, s.Peer.ID, payload.ReasonCancelled))
		c.finish(payload.ReasonCancelled, nil)
	default:
		c.logger.Warn("reject ignored", slog.String("state", string(s.State)))
	}
}

func (c *Coordinator) end() {
	s := c.snap

	switch {
	case s.State == StateActive, s.State == StateOutgoing, s.State == StateRinging,
		s.State == StateIncoming && s.Answered:
		c.release()
		c.send(payload.NewEndMessage(s.CallID, s.Peer.ID, payload.ReasonHangup))
		c.finish(payload.ReasonHangup, nil)
	default:
		c.logger.Warn("end ignored", slog.String("state", string(s.State)))
	}
}

// hangup leaves whatever call is live.
func (c *Coordinator) hangup() {
	if !c.snap.Live() {
		return
	}
	if c.snap.State == StateIncoming && !c.snap.Answered {
		c.reject()
		return
	}
	c.end()
}

func (c *Coordinator) toggle(kind webrtc.RTPCodecType) {
	if c.snap.State != StateActive {
		c.logger.Warn("toggle ignored, call not active",
			slog.String("state", string(c.snap.State)),
			slog.String("kind", kind.String()))
		return
	}

	if kind == webrtc.RTPCodecTypeVideo {
		c.snap.VideoEnabled = c.engine.ToggleLocalVideo()
	} else {
		c.snap.AudioEnabled = c.engine.ToggleLocalAudio()
	}
	c.publish()
}

func (c *Coordinator) onMessage(_ context.Context, msg *payload.Message) {
	c.submit(func() { c.handleMessage(msg) })
}

func (c *Coordinator) handleMessage(msg *payload.Message) {
	if msg.Type == payload.MessageTypeOffer {
		c.handleOffer(msg)
		return
	}

	if !c.snap.Live() || msg.CallID != c.snap.CallID {
		c.logger.Debug("message for unknown call dropped",
			slog.String("type", string(msg.Type)),
			slog.String("call_id", msg.CallID))
		return
	}
	if msg.FromUserID != "" && msg.FromUserID != c.snap.Peer.ID {
		c.logger.Warn("message from unexpected peer dropped",
			slog.String("type", string(msg.Type)),
			slog.String("call_id", msg.CallID),
			slog.String("from", msg.FromUserID))
		return
	}

	switch msg.Type {
	case payload.MessageTypeAnswer:
		c.handleAnswer(msg)
	case payload.MessageTypeICECandidate:
		c.handleCandidate(msg)
	case payload.MessageTypeCallAccept:
		c.handleAccept(msg)
	case payload.MessageTypeCallReject:
		c.handleReject(msg)
	case payload.MessageTypeCallEnd:
		c.handleEnd(msg)
	}
}

func (c *Coordinator) handleOffer(msg *payload.Message) {
	if c.snap.Live() {
		if msg.CallID == c.snap.CallID {
			c.logger.Debug("duplicate offer ignored", slog.String("call_id", msg.CallID))
			return
		}
		c.logger.Info("busy, rejecting offer",
			slog.String("call_id", msg.CallID),
			slog.String("from", msg.FromUserID))
		c.send(payload.NewRejectMessage(msg.CallID, msg.FromUserID, payload.ReasonBusy))
		return
	}

	offer, err := IncomingOfferFromMessage(msg)
	if err != nil || !offer.CallType.Valid() {
		c.logger.Warn("malformed offer rejected", slog.String("call_id", msg.CallID))
		c.send(payload.NewRejectMessage(msg.CallID, msg.FromUserID, payload.ReasonMediaUnavailable))
		return
	}

	peer := payload.Participant{ID: msg.FromUserID}
	if offer.Caller != nil {
		peer = *offer.Caller
		peer.ID = msg.FromUserID
	}

	c.offer = &offer
	c.engine.ExpectIncoming(offer.CallID)
	c.snap = Snapshot{
		State:    StateIncoming,
		CallID:   offer.CallID,
		CallType: offer.CallType,
		Role:     RoleReceiver,
		Peer:     peer,
		ChatID:   offer.ChatID,
	}
	c.arm(c.incomingTimeout, offer.CallID, c.incomingTimedOut)
	c.publish()

	c.logger.Info("incoming call",
		slog.String("call_id", offer.CallID),
		slog.String("from", msg.FromUserID),
		slog.String("call_type", string(offer.CallType)))

	c.observer.OnIncomingCall(c.snap)
}

func (c *Coordinator) handleAnswer(msg *payload.Message) {
	if c.snap.Role != RoleInitiator {
		c.logger.Warn("answer on incoming call dropped", slog.String("call_id", msg.CallID))
		return
	}

	var p payload.AnswerPayload
	if err := msg.Decode(&p); err != nil {
		c.fail(msg.CallID, newCallError(msg.CallID, ErrNegotiation, err))
		return
	}

	callID := msg.CallID
	c.async(func() error {
		return c.engine.HandleAnswer(context.Background(), callID, p.Answer)
	}, func(err error) {
		if err != nil {
			c.fail(callID, err)
		}
	})
}

func (c *Coordinator) handleCandidate(msg *payload.Message) {
	var p payload.ICECandidatePayload
	if err := msg.Decode(&p); err != nil {
		c.logger.Warn("malformed candidate dropped", slog.String("call_id", msg.CallID))
		return
	}

	if err := c.engine.AddRemoteICECandidate(msg.CallID, p.Candidate); err != nil {
		c.logger.Warn("remote candidate not applied",
			slog.String("call_id", msg.CallID),
			slog.String("error", err.Error()))
	}
}

func (c *Coordinator) handleAccept(msg *payload.Message) {
	if c.snap.Role != RoleInitiator {
		return
	}

	var p payload.AcceptPayload
	if err := msg.Decode(&p); err == nil && p.AcceptType.Valid() {
		c.snap.CallType = p.AcceptType
	}
	c.snap.Answered = true
	c.publish()
}

func (c *Coordinator) handleReject(msg *payload.Message) {
	var p payload.RejectPayload
	_ = msg.Decode(&p)

	reason := p.Reason
	if c.snap.Role == RoleReceiver {
		reason = payload.ReasonCancelled
	} else if reason == "" {
		reason = payload.ReasonDeclined
	}

	c.logger.Info("call rejected by peer",
		slog.String("call_id", msg.CallID),
		slog.String("reason", reason))
	c.finish(reason, nil)
}

func (c *Coordinator) handleEnd(msg *payload.Message) {
	var p payload.EndPayload
	_ = msg.Decode(&p)

	reason := p.Reason
	if reason == "" {
		reason = payload.ReasonHangup
	}

	c.logger.Info("call ended by peer",
		slog.String("call_id", msg.CallID),
		slog.String("reason", reason))
	c.finish(reason, nil)
}

func (c *Coordinator) connectionStateChanged(callID string, state webrtc.PeerConnectionState) {
	if !c.snap.Live() || c.snap.CallID != callID {
		return
	}

	c.snap.ConnectionState = state

	switch state {
	case webrtc.PeerConnectionStateConnected:
		if c.snap.State == StateActive {
			break
		}
		c.stopTimer()
		c.snap.State = StateActive
		c.snap.Busy = false
		c.snap.StartedAt = c.clock.Now()
		c.refreshLocal()
		c.record(c.snap, fmt.Sprintf("%s call started", titleCallType(c.snap.CallType)))
		c.publish()
		return
	case webrtc.PeerConnectionStateFailed:
		c.fail(callID, newCallError(callID, ErrICEFailure, errPeerConnectionFailed))
		return
	}

	c.publishDebounced()
}

func (c *Coordinator) remoteStreamChanged(callID string, stream *pkgwebrtc.RemoteStream) {
	if !c.snap.Live() || c.snap.CallID != callID {
		return
	}
	c.snap.RemoteStream = stream
	c.publish()
}

// fail ends the live call with err and tells the peer. Cancelled attempts and
// errors for calls no longer live are ignored.
func (c *Coordinator) fail(callID string, err error) {
	if errors.Is(err, ErrCallCancelled) {
		c.logger.Debug("cancelled call attempt finished", slog.String("call_id", callID))
		return
	}
	if !c.snap.Live() || c.snap.CallID != callID {
		c.logger.Debug("error for stale call ignored",
			slog.String("call_id", callID),
			slog.String("error", err.Error()))
		return
	}

	c.logger.Error("call failed",
		slog.String("call_id", callID),
		slog.String("error", err.Error()))
	c.observer.OnError(callID, err)

	c.release()

	s := c.snap
	reason := payload.ReasonFailed
	if s.Role == RoleReceiver && (errors.Is(err, ErrMediaAccess) || errors.Is(err, ErrCallTypeMismatch)) {
		reason = payload.ReasonMediaUnavailable
		c.send(payload.NewRejectMessage(callID, s.Peer.ID, reason))
	} else {
		c.send(payload.NewEndMessage(callID, s.Peer.ID, reason))
	}

	c.finish(reason, err)
}

func (c *Coordinator) incomingTimedOut(callID string) {
	if c.snap.CallID != callID || c.snap.State != StateIncoming || c.snap.Answered {
		return
	}

	c.logger.Info("incoming call timed out", slog.String("call_id", callID))
	c.release()
	c.send(payload.NewRejectMessage(callID, c.snap.Peer.ID, payload.ReasonTimeout))
	c.finish(payload.ReasonTimeout, nil)
}

func (c *Coordinator) ringTimedOut(callID string) {
	if c.snap.CallID != callID || (c.snap.State != StateOutgoing && c.snap.State != StateRinging) {
		return
	}

	c.logger.Info("outgoing call not answered", slog.String("call_id", callID))
	c.release()
	c.send(payload.NewEndMessage(callID, c.snap.Peer.ID, payload.ReasonNoAnswer))
	c.finish(payload.ReasonNoAnswer, nil)
}

// release stops the timer, cancels engine work and tears the engine down.
// Terminal messages are sent after it, so no offer or answer of the call
// can follow them on the wire.
func (c *Coordinator) release() {
	c.stopTimer()
	if c.opCancel != nil {
		c.opCancel()
		c.opCancel = nil
	}
	c.engine.Teardown()
}

// finish releases the session, publishes the ended snapshot and returns to idle.
func (c *Coordinator) finish(reason string, err error) {
	c.release()

	prev := c.snap
	ended := prev
	if prev.State == StateActive {
		ended.Duration = c.clock.Now().Sub(prev.StartedAt)
	}
	ended.State = StateEnded
	ended.EndReason = reason
	ended.Err = err
	ended.Busy = false
	ended.AudioEnabled = false
	ended.VideoEnabled = false
	ended.ConnectionState = webrtc.PeerConnectionStateClosed
	ended.RemoteStream = nil

	c.record(prev, endedLine(prev, ended))

	c.offer = nil
	c.snap = ended
	c.publish()

	c.mu.Lock()
	c.last = ended
	c.mu.Unlock()

	c.logger.Info("call finished",
		slog.String("call_id", ended.CallID),
		slog.String("reason", reason),
		slog.Duration("duration", ended.Duration))

	c.snap = Snapshot{State: StateIdle}
	c.publish()
}

// operation returns the context of the engine work for the live call. It is
// cancelled before the engine is torn down so a late start never reserves.
func (c *Coordinator) operation() context.Context {
	if c.opCancel != nil {
		c.opCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.opCancel = cancel
	return ctx
}

func (c *Coordinator) arm(d time.Duration, callID string, fire func(string)) {
	c.stopTimer()
	if d <= 0 {
		return
	}
	c.timer = c.clock.AfterFunc(d, func() {
		c.submit(func() { fire(callID) })
	})
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) refreshLocal() {
	c.snap.AudioEnabled, c.snap.VideoEnabled = c.engine.LocalEnabled()
}

func (c *Coordinator) publish() {
	snap := c.snap

	c.mu.Lock()
	c.published = snap
	c.mu.Unlock()

	c.observer.OnStateChange(snap)
}

func (c *Coordinator) publishDebounced() {
	if c.debounced == nil {
		c.publish()
		return
	}

	c.mu.Lock()
	c.published = c.snap
	c.mu.Unlock()

	c.debounced(func() {
		c.submit(func() {
			if c.snap.Live() {
				c.observer.OnStateChange(c.snap)
			}
		})
	})
}

func (c *Coordinator) send(msg *payload.Message, err error) bool {
	if err != nil {
		c.logger.Warn("failed to build signaling message", slog.String("error", err.Error()))
		return false
	}
	return c.transport.Send(context.Background(), msg)
}

// record appends a transcript line for calls placed from a chat. Only the
// initiator writes, so a call yields one set of lines.
func (c *Coordinator) record(s Snapshot, text string) {
	if c.transcript == nil || s.ChatID == "" || s.Role != RoleInitiator || text == "" {
		return
	}

	line := TranscriptLine{
		ChatID: s.ChatID,
		CallID: s.CallID,
		Text:   text,
		At:     c.clock.Now(),
	}

	// appends run in order on their own worker so a slow store never
	// holds up the loop
	c.sinkPool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), transcriptTimeout)
		defer cancel()

		if err := c.transcript.AppendTranscript(ctx, line); err != nil {
			c.logger.Warn("failed to append transcript",
				slog.String("chat_id", line.ChatID),
				slog.String("call_id", line.CallID),
				slog.String("error", err.Error()))
		}
	})
}

func endedLine(prev, ended Snapshot) string {
	if prev.State == StateActive {
		return "Call ended • " + FormatDuration(ended.Duration)
	}

	switch ended.EndReason {
	case payload.ReasonDeclined:
		return "Call declined"
	case payload.ReasonCancelled, payload.ReasonHangup:
		return "Call cancelled"
	case payload.ReasonFailed, payload.ReasonMediaUnavailable:
		return "Call failed"
	default:
		return fmt.Sprintf("Missed %s call", prev.CallType)
	}
}

func titleCallType(t payload.CallType) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormatDuration renders d as mm:ss, or h:mm:ss from one hour up.
func FormatDuration(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// engineEvents moves engine callbacks onto the coordinator loop.
type engineEvents struct {
	c *Coordinator
}

func (e engineEvents) OnRemoteStream(callID string, stream *pkgwebrtc.RemoteStream) {
	e.c.submit(func() { e.c.remoteStreamChanged(callID, stream) })
}

func (e engineEvents) OnConnectionStateChange(callID string, state webrtc.PeerConnectionState) {
	e.c.submit(func() { e.c.connectionStateChanged(callID, state) })
}

func (e engineEvents) OnError(callID string, err error) {
	e.c.submit(func() { e.c.fail(callID, err) })
}

// loopObserver counts callbacks in progress so Close can tell it was called
// from one of them.
type loopObserver struct {
	c    *Coordinator
	next Observer
}

func (o loopObserver) OnStateChange(s Snapshot) {
	o.c.callbacks.Add(1)
	defer o.c.callbacks.Add(-1)
	o.next.OnStateChange(s)
}

func (o loopObserver) OnIncomingCall(s Snapshot) {
	o.c.callbacks.Add(1)
	defer o.c.callbacks.Add(-1)
	o.next.OnIncomingCall(s)
}

func (o loopObserver) OnError(callID string, err error) {
	o.c.callbacks.Add(1)
	defer o.c.callbacks.Add(-1)
	o.next.OnError(callID, err)
}

type nopObserver struct{}

func (nopObserver) OnStateChange(Snapshot) {}

func (nopObserver) OnIncomingCall(Snapshot) {}

func (nopObserver) OnError(string, error) {}
