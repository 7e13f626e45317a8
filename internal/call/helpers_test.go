package call_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HMasataka/counsel/internal/call"
	mock_call "github.com/HMasataka/counsel/internal/call/mock"
	"github.com/HMasataka/counsel/internal/signaling"
	"github.com/HMasataka/counsel/internal/signaling/signalingtest"
	payload "github.com/HMasataka/counsel/payload/signaling"
	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
	"github.com/pion/webrtc/v4"
	"go.uber.org/mock/gomock"
)

const offerSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0 1\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendrecv\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n" +
	"a=sendrecv\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

const audioOnlySDP = "v=0\r\n" +
	"o=- 1 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

var errBoom = errors.New("boom")

func offerDescription() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
}

func answerDescription() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: offerSDP}
}

// peerHooks captures the callbacks the engine installs on a peer connection.
type peerHooks struct {
	mu         sync.Mutex
	onICE      func(*webrtc.ICECandidate)
	onState    func(webrtc.PeerConnectionState)
	onICEState func(webrtc.ICEConnectionState)
}

func (h *peerHooks) candidate(c *webrtc.ICECandidate) {
	h.mu.Lock()
	f := h.onICE
	h.mu.Unlock()
	if f != nil {
		f(c)
	}
}

func (h *peerHooks) state(s webrtc.PeerConnectionState) {
	h.mu.Lock()
	f := h.onState
	h.mu.Unlock()
	if f != nil {
		f(s)
	}
}

func (h *peerHooks) iceState(s webrtc.ICEConnectionState) {
	h.mu.Lock()
	f := h.onICEState
	h.mu.Unlock()
	if f != nil {
		f(s)
	}
}

// expectHooks records callback registrations on pc.
func expectHooks(pc *mock_call.MockPeerConnection) *peerHooks {
	h := &peerHooks{}
	pc.EXPECT().OnICECandidate(gomock.Any()).Do(func(f func(*webrtc.ICECandidate)) {
		h.mu.Lock()
		h.onICE = f
		h.mu.Unlock()
	}).AnyTimes()
	pc.EXPECT().OnTrack(gomock.Any()).AnyTimes()
	pc.EXPECT().OnConnectionStateChange(gomock.Any()).Do(func(f func(webrtc.PeerConnectionState)) {
		h.mu.Lock()
		h.onState = f
		h.mu.Unlock()
	}).AnyTimes()
	pc.EXPECT().OnICEConnectionStateChange(gomock.Any()).Do(func(f func(webrtc.ICEConnectionState)) {
		h.mu.Lock()
		h.onICEState = f
		h.mu.Unlock()
	}).AnyTimes()
	return h
}

// newLenientPeer returns a mock that accepts every call and succeeds.
func newLenientPeer(ctrl *gomock.Controller) (*mock_call.MockPeerConnection, *peerHooks) {
	pc := mock_call.NewMockPeerConnection(ctrl)
	h := expectHooks(pc)
	pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
	pc.EXPECT().CreateOffer().Return(offerDescription(), nil).AnyTimes()
	pc.EXPECT().CreateAnswer().Return(answerDescription(), nil).AnyTimes()
	pc.EXPECT().SetRemoteDescription(gomock.Any()).Return(nil).AnyTimes()
	pc.EXPECT().AddICECandidate(gomock.Any()).Return(nil).AnyTimes()
	pc.EXPECT().WriteRTCP(gomock.Any()).Return(nil).AnyTimes()
	pc.EXPECT().Close().Return(nil).AnyTimes()
	return pc, h
}

// peerFactory hands out lenient mock peers and remembers their hooks.
type peerFactory struct {
	ctrl *gomock.Controller

	mu    sync.Mutex
	hooks []*peerHooks
	err   error
}

func newPeerFactory(ctrl *gomock.Controller) *peerFactory {
	return &peerFactory{ctrl: ctrl}
}

func (f *peerFactory) New(callID string) (call.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	pc, h := newLenientPeer(f.ctrl)
	f.hooks = append(f.hooks, h)
	return pc, nil
}

func (f *peerFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hooks)
}

func (f *peerFactory) Last() *peerHooks {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.hooks) == 0 {
		return nil
	}
	return f.hooks[len(f.hooks)-1]
}

// recordingDevices wraps inner, SyntheticDevices when nil, and keeps every
// stream it hands out.
type recordingDevices struct {
	inner pkgwebrtc.MediaDevices

	mu      sync.Mutex
	calls   int
	streams []*pkgwebrtc.LocalStream
}

func (d *recordingDevices) GetUserMedia(ctx context.Context, constraints pkgwebrtc.MediaConstraints) (*pkgwebrtc.LocalStream, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	var inner pkgwebrtc.MediaDevices = pkgwebrtc.SyntheticDevices{}
	if d.inner != nil {
		inner = d.inner
	}

	stream, err := inner.GetUserMedia(ctx, constraints)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.streams = append(d.streams, stream)
	d.mu.Unlock()
	return stream, nil
}

func (d *recordingDevices) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *recordingDevices) Last() *pkgwebrtc.LocalStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// blockingDevices holds GetUserMedia until release is closed.
type blockingDevices struct {
	entered chan struct{}
	release chan struct{}
	stream  *pkgwebrtc.LocalStream
}

func newBlockingDevices() *blockingDevices {
	return &blockingDevices{entered: make(chan struct{}), release: make(chan struct{})}
}

func (d *blockingDevices) GetUserMedia(ctx context.Context, constraints pkgwebrtc.MediaConstraints) (*pkgwebrtc.LocalStream, error) {
	close(d.entered)
	<-d.release

	stream, err := pkgwebrtc.SyntheticDevices{}.GetUserMedia(ctx, constraints)
	d.stream = stream
	return stream, err
}

// blockingSignaler holds the first offer or answer in Send until release is
// closed.
type blockingSignaler struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent []*payload.Message
}

func newBlockingSignaler() *blockingSignaler {
	return &blockingSignaler{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSignaler) Send(_ context.Context, msg *payload.Message) bool {
	if msg.Type == payload.MessageTypeOffer || msg.Type == payload.MessageTypeAnswer {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return true
}

func (s *blockingSignaler) SentOfType(mt payload.MessageType) []*payload.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*payload.Message
	for _, msg := range s.sent {
		if msg.Type == mt {
			out = append(out, msg)
		}
	}
	return out
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) call.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires the timers that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// recordingObserver keeps everything the coordinator reports.
type recordingObserver struct {
	mu       sync.Mutex
	states   []call.Snapshot
	incoming []call.Snapshot
	errs     []error
}

func (o *recordingObserver) OnStateChange(s call.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) OnIncomingCall(s call.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.incoming = append(o.incoming, s)
}

func (o *recordingObserver) OnError(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) States() []call.State {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]call.State, 0, len(o.states))
	for _, s := range o.states {
		out = append(out, s.State)
	}
	return out
}

func (o *recordingObserver) Incoming() []call.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]call.Snapshot(nil), o.incoming...)
}

func (o *recordingObserver) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errs...)
}

type memorySink struct {
	mu    sync.Mutex
	lines []call.TranscriptLine
}

func (s *memorySink) AppendTranscript(_ context.Context, line call.TranscriptLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

func (s *memorySink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, l.Text)
	}
	return out
}

// blockingSink holds every append until release is closed.
type blockingSink struct {
	memorySink
	release chan struct{}
}

func (s *blockingSink) AppendTranscript(ctx context.Context, line call.TranscriptLine) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.memorySink.AppendTranscript(ctx, line)
}

// closingObserver closes its coordinator as soon as a call ends.
type closingObserver struct {
	recordingObserver
	c      *call.Coordinator
	closed chan struct{}
}

func (o *closingObserver) OnStateChange(s call.Snapshot) {
	o.recordingObserver.OnStateChange(s)
	if s.State == call.StateEnded {
		o.c.Close()
		close(o.closed)
	}
}

// party is one user with a coordinator wired to the shared hub.
type party struct {
	id        string
	c         *call.Coordinator
	ch        *signalingtest.Channel
	transport *signaling.Transport
	peers     *peerFactory
	devices   *recordingDevices
	observer  *recordingObserver
	clock     *fakeClock
	sink      *memorySink
}

func newParty(t *testing.T, ctrl *gomock.Controller, hub *signalingtest.Hub, id string) *party {
	t.Helper()

	p := &party{
		id:       id,
		ch:       hub.Channel(id),
		peers:    newPeerFactory(ctrl),
		devices:  &recordingDevices{},
		observer: &recordingObserver{},
		clock:    newFakeClock(),
		sink:     &memorySink{},
	}
	p.transport = signaling.NewTransport(p.ch, signaling.TransportOptions{SelfID: id})
	p.c = call.NewCoordinator(call.CoordinatorConfig{
		SelfID:            id,
		Transport:         p.transport,
		Devices:           p.devices,
		NewPeerConnection: p.peers.New,
		Observer:          p.observer,
		Transcript:        p.sink,
		Clock:             p.clock,
		StateDebounce:     -1,
	})
	t.Cleanup(p.c.Close)

	return p
}

// settle runs every party's loop until the exchange between them is quiet.
func settle(parties ...*party) {
	for range 10 {
		for _, p := range parties {
			p.c.Settle()
		}
	}
}
