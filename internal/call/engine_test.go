package call_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/HMasataka/counsel/internal/call"
	mock_call "github.com/HMasataka/counsel/internal/call/mock"
	"github.com/HMasataka/counsel/internal/signaling"
	"github.com/HMasataka/counsel/internal/signaling/signalingtest"
	payload "github.com/HMasataka/counsel/payload/signaling"
	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type engineFixture struct {
	engine  *call.Engine
	devices *recordingDevices
	hub     *signalingtest.Hub
	self    *signalingtest.Channel
	peer    *signalingtest.Channel
}

func newEngineFixture(t *testing.T, factory call.PeerConnectionFactory, observer call.EngineObserver) *engineFixture {
	t.Helper()

	hub := signalingtest.NewHub()
	f := &engineFixture{
		devices: &recordingDevices{},
		hub:     hub,
		self:    hub.Channel("alice"),
		peer:    hub.Channel("bob"),
	}
	f.engine = call.NewEngine(call.EngineConfig{
		SelfID:            "alice",
		Signaler:          signaling.NewTransport(f.self, signaling.TransportOptions{SelfID: "alice"}),
		Devices:           f.devices,
		NewPeerConnection: factory,
		Observer:          observer,
	})
	t.Cleanup(f.engine.Teardown)
	return f
}

func staticFactory(pc call.PeerConnection) call.PeerConnectionFactory {
	return func(string) (call.PeerConnection, error) { return pc, nil }
}

func incomingOffer(callID string, callType payload.CallType) call.IncomingOffer {
	return call.IncomingOffer{
		CallID:     callID,
		FromUserID: "bob",
		CallType:   callType,
		Offer:      offerDescription(),
	}
}

func TestEngineStartCall(t *testing.T) {
	t.Run("オファーを送信する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		f := newEngineFixture(t, staticFactory(pc), nil)

		callID, err := f.engine.StartCall(context.Background(), call.StartRequest{
			CallID:       "call-1",
			TargetUserID: "bob",
			CallType:     payload.CallTypeVoice,
			ChatID:       "chat-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "call-1", callID)
		assert.Equal(t, "call-1", f.engine.CallID())

		offers := f.self.SentOfType(payload.MessageTypeOffer)
		require.Len(t, offers, 1)
		assert.Equal(t, "call-1", offers[0].CallID)
		assert.Equal(t, "bob", offers[0].TargetUserID)
		assert.Equal(t, "alice", offers[0].FromUserID)

		var p payload.OfferPayload
		require.NoError(t, offers[0].Decode(&p))
		assert.Equal(t, payload.CallTypeVoice, p.CallType)
		assert.Equal(t, "chat-1", p.ChatID)
		assert.Equal(t, webrtc.SDPTypeOffer, p.Offer.Type)

		stream := f.engine.LocalStream()
		require.NotNil(t, stream)
		assert.NotNil(t, stream.AudioTrack())
		assert.Nil(t, stream.VideoTrack())
	})

	t.Run("ビデオ通話は映像トラックも取得する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{TargetUserID: "bob", CallType: payload.CallTypeVideo})
		require.NoError(t, err)

		stream := f.engine.LocalStream()
		require.NotNil(t, stream)
		assert.NotNil(t, stream.VideoTrack())
	})

	t.Run("callIdが空なら生成する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		f := newEngineFixture(t, staticFactory(pc), nil)

		callID, err := f.engine.StartCall(context.Background(), call.StartRequest{TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		_, err = uuid.Parse(callID)
		assert.NoError(t, err)
	})

	t.Run("メディア拒否はMediaAccessErrorで何も残さない", func(t *testing.T) {
		created := 0
		factory := func(string) (call.PeerConnection, error) {
			created++
			return nil, errBoom
		}
		f := newEngineFixture(t, factory, nil)
		f.devices.inner = pkgwebrtc.SyntheticDevices{DenyAudio: true}

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		assert.ErrorIs(t, err, call.ErrMediaAccess)
		assert.ErrorIs(t, err, pkgwebrtc.ErrPermissionDenied)
		assert.Zero(t, created)
		assert.Empty(t, f.engine.CallID())
		assert.Empty(t, f.self.Sent())
	})

	t.Run("接続生成の失敗は取得済みメディアを解放する", func(t *testing.T) {
		factory := func(string) (call.PeerConnection, error) { return nil, errBoom }
		f := newEngineFixture(t, factory, nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVideo})
		assert.ErrorIs(t, err, call.ErrConnectionSetup)

		stream := f.devices.Last()
		require.NotNil(t, stream)
		assert.False(t, stream.Active())
		assert.Empty(t, f.engine.CallID())
	})

	t.Run("トラック追加の失敗は接続を閉じる", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, errBoom)
		pc.EXPECT().Close().Return(nil).Times(1)
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		assert.ErrorIs(t, err, call.ErrConnectionSetup)
		assert.False(t, f.devices.Last().Active())
	})

	t.Run("オファー生成の失敗はNegotiationError", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
		pc.EXPECT().CreateOffer().Return(webrtc.SessionDescription{}, errBoom)
		pc.EXPECT().Close().Return(nil).Times(1)
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		assert.ErrorIs(t, err, call.ErrNegotiation)
		assert.Equal(t, call.ErrNegotiation, call.KindOf(err))
		assert.Empty(t, f.self.Sent())
	})

	t.Run("セッション中の二重開始はErrSessionActive", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		factory := newPeerFactory(ctrl)
		f := newEngineFixture(t, factory.New, nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		_, err = f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-2", TargetUserID: "carol", CallType: payload.CallTypeVoice})
		assert.ErrorIs(t, err, call.ErrSessionActive)
		assert.Equal(t, 1, factory.Count())
		assert.Equal(t, 1, f.devices.Calls())
		assert.Equal(t, "call-1", f.engine.CallID())
	})

	t.Run("オファー送信前の候補はオファーの後に送る", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		hooks := expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
		pc.EXPECT().CreateOffer().DoAndReturn(func() (webrtc.SessionDescription, error) {
			hooks.candidate(&webrtc.ICECandidate{
				Foundation: "1",
				Priority:   2130706431,
				Address:    "192.168.0.2",
				Protocol:   webrtc.ICEProtocolUDP,
				Port:       50000,
				Typ:        webrtc.ICECandidateTypeHost,
				Component:  1,
			})
			return offerDescription(), nil
		})
		pc.EXPECT().Close().Return(nil).AnyTimes()
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		sent := f.self.Sent()
		require.Len(t, sent, 2)
		assert.Equal(t, payload.MessageTypeOffer, sent[0].Type)
		assert.Equal(t, payload.MessageTypeICECandidate, sent[1].Type)
		assert.Equal(t, "call-1", sent[1].CallID)
	})

	t.Run("未接続でも開始できる", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		f := newEngineFixture(t, staticFactory(pc), nil)
		f.self.SetConnected(false)

		callID, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)
		assert.Equal(t, "call-1", callID)
		assert.Empty(t, f.self.Sent())
	})
}

func TestEngineICECandidates(t *testing.T) {
	candidate := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 192.168.0.3 50001 typ host"}
	later := webrtc.ICECandidateInit{Candidate: "candidate:2 1 udp 2130706431 192.168.0.3 50002 typ host"}

	t.Run("アンサー前の候補はリモート記述設定後にちょうど1回適用される", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
		pc.EXPECT().CreateOffer().Return(offerDescription(), nil)
		pc.EXPECT().Close().Return(nil).AnyTimes()
		gomock.InOrder(
			pc.EXPECT().SetRemoteDescription(answerDescription()).Return(nil),
			pc.EXPECT().AddICECandidate(candidate).Return(nil).Times(1),
			pc.EXPECT().AddICECandidate(later).Return(nil).Times(1),
		)
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		require.NoError(t, f.engine.AddRemoteICECandidate("call-1", candidate))
		assert.Equal(t, 1, f.engine.BufferedCandidates())
		assert.Zero(t, f.engine.AppliedCandidates())

		require.NoError(t, f.engine.HandleAnswer(context.Background(), "call-1", answerDescription()))
		assert.Zero(t, f.engine.BufferedCandidates())
		assert.Equal(t, 1, f.engine.AppliedCandidates())

		require.NoError(t, f.engine.AddRemoteICECandidate("call-1", later))
		assert.Equal(t, 2, f.engine.AppliedCandidates())
	})

	t.Run("重複したアンサーは無視する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
		pc.EXPECT().CreateOffer().Return(offerDescription(), nil)
		pc.EXPECT().SetRemoteDescription(gomock.Any()).Return(nil).Times(1)
		pc.EXPECT().Close().Return(nil).AnyTimes()
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		require.NoError(t, f.engine.HandleAnswer(context.Background(), "call-1", answerDescription()))
		require.NoError(t, f.engine.HandleAnswer(context.Background(), "call-1", answerDescription()))
	})

	t.Run("不正なアンサーは接続を破棄する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
		pc.EXPECT().CreateOffer().Return(offerDescription(), nil)
		pc.EXPECT().SetRemoteDescription(gomock.Any()).Return(errBoom)
		pc.EXPECT().Close().Return(nil).Times(1)
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		err = f.engine.HandleAnswer(context.Background(), "call-1", answerDescription())
		assert.ErrorIs(t, err, call.ErrNegotiation)
		assert.Empty(t, f.engine.CallID())
		assert.False(t, f.devices.Last().Active())
	})

	t.Run("別のcallIdの候補とアンサーは拒否する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		assert.ErrorIs(t, f.engine.AddRemoteICECandidate("call-2", candidate), call.ErrUnknownCall)
		assert.ErrorIs(t, f.engine.HandleAnswer(context.Background(), "call-2", answerDescription()), call.ErrUnknownCall)
		assert.Zero(t, f.engine.BufferedCandidates())
		assert.Equal(t, "call-1", f.engine.CallID())
	})

	t.Run("応答前の着信の候補は応答時に適用される", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
		pc.EXPECT().CreateAnswer().Return(answerDescription(), nil)
		pc.EXPECT().Close().Return(nil).AnyTimes()
		gomock.InOrder(
			pc.EXPECT().SetRemoteDescription(offerDescription()).Return(nil),
			pc.EXPECT().AddICECandidate(candidate).Return(nil).Times(1),
		)
		f := newEngineFixture(t, staticFactory(pc), nil)

		assert.ErrorIs(t, f.engine.AddRemoteICECandidate("call-9", candidate), call.ErrUnknownCall)

		f.engine.ExpectIncoming("call-9")
		require.NoError(t, f.engine.AddRemoteICECandidate("call-9", candidate))
		assert.Equal(t, 1, f.engine.EarlyCandidates("call-9"))

		require.NoError(t, f.engine.AnswerCall(context.Background(), incomingOffer("call-9", payload.CallTypeVoice), payload.CallTypeVoice))
		assert.Equal(t, 1, f.engine.AppliedCandidates())
		assert.Zero(t, f.engine.EarlyCandidates("call-9"))
	})

	t.Run("破棄した着信の候補は受け付けない", func(t *testing.T) {
		f := newEngineFixture(t, nil, nil)

		f.engine.ExpectIncoming("call-9")
		f.engine.DiscardIncoming("call-9")
		assert.ErrorIs(t, f.engine.AddRemoteICECandidate("call-9", candidate), call.ErrUnknownCall)
	})

	t.Run("早期候補は上限を超えると古いものから捨てる", func(t *testing.T) {
		hub := signalingtest.NewHub()
		engine := call.NewEngine(call.EngineConfig{
			SelfID:             "alice",
			Signaler:           signaling.NewTransport(hub.Channel("alice"), signaling.TransportOptions{SelfID: "alice"}),
			MaxEarlyCandidates: 2,
		})

		engine.ExpectIncoming("call-9")
		for range 5 {
			require.NoError(t, engine.AddRemoteICECandidate("call-9", candidate))
		}
		assert.Equal(t, 2, engine.EarlyCandidates("call-9"))
	})
}

func TestEngineAnswerCall(t *testing.T) {
	t.Run("アンサーを送信する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		f := newEngineFixture(t, staticFactory(pc), nil)

		require.NoError(t, f.engine.AnswerCall(context.Background(), incomingOffer("call-1", payload.CallTypeVideo), payload.CallTypeVideo))

		answers := f.self.SentOfType(payload.MessageTypeAnswer)
		require.Len(t, answers, 1)
		assert.Equal(t, "call-1", answers[0].CallID)
		assert.Equal(t, "bob", answers[0].TargetUserID)

		stream := f.engine.LocalStream()
		require.NotNil(t, stream)
		assert.NotNil(t, stream.VideoTrack())
	})

	t.Run("ビデオ着信を音声で受けられる", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		f := newEngineFixture(t, staticFactory(pc), nil)

		require.NoError(t, f.engine.AnswerCall(context.Background(), incomingOffer("call-1", payload.CallTypeVideo), payload.CallTypeVoice))

		assert.Nil(t, f.engine.LocalStream().VideoTrack())
		assert.False(t, f.engine.ToggleLocalVideo())
	})

	t.Run("音声着信を映像で受けると資源を取得せず失敗する", func(t *testing.T) {
		created := 0
		factory := func(string) (call.PeerConnection, error) {
			created++
			return nil, errBoom
		}
		f := newEngineFixture(t, factory, nil)

		err := f.engine.AnswerCall(context.Background(), incomingOffer("call-1", payload.CallTypeVoice), payload.CallTypeVideo)
		assert.ErrorIs(t, err, call.ErrCallTypeMismatch)
		assert.Zero(t, f.devices.Calls())
		assert.Zero(t, created)
		assert.Empty(t, f.engine.CallID())
	})

	t.Run("壊れたSDPはNegotiationError", func(t *testing.T) {
		f := newEngineFixture(t, nil, nil)
		offer := incomingOffer("call-1", payload.CallTypeVoice)
		offer.Offer.SDP = "garbage"

		err := f.engine.AnswerCall(context.Background(), offer, payload.CallTypeVoice)
		assert.ErrorIs(t, err, call.ErrNegotiation)
		assert.Zero(t, f.devices.Calls())
	})

	t.Run("映像セクションのないビデオ着信はNegotiationError", func(t *testing.T) {
		f := newEngineFixture(t, nil, nil)
		offer := incomingOffer("call-1", payload.CallTypeVideo)
		offer.Offer.SDP = audioOnlySDP

		err := f.engine.AnswerCall(context.Background(), offer, payload.CallTypeVoice)
		assert.ErrorIs(t, err, call.ErrNegotiation)
	})

	t.Run("リモート記述の設定失敗はメディアを解放する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().SetRemoteDescription(gomock.Any()).Return(errBoom)
		pc.EXPECT().Close().Return(nil).Times(1)
		f := newEngineFixture(t, staticFactory(pc), nil)

		err := f.engine.AnswerCall(context.Background(), incomingOffer("call-1", payload.CallTypeVoice), payload.CallTypeVoice)
		assert.ErrorIs(t, err, call.ErrNegotiation)
		assert.False(t, f.devices.Last().Active())
		assert.Empty(t, f.self.Sent())
	})
}

func TestEngineToggle(t *testing.T) {
	t.Run("セッションがなければfalse", func(t *testing.T) {
		f := newEngineFixture(t, nil, nil)

		assert.False(t, f.engine.ToggleLocalAudio())
		assert.False(t, f.engine.ToggleLocalVideo())
	})

	t.Run("音声トラックの有効状態を反転する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		assert.False(t, f.engine.ToggleLocalAudio())
		audio, video := f.engine.LocalEnabled()
		assert.False(t, audio)
		assert.False(t, video)

		assert.True(t, f.engine.ToggleLocalAudio())
		assert.False(t, f.engine.ToggleLocalVideo())
	})
}

func TestEngineTeardown(t *testing.T) {
	t.Run("送信中のオファーが出終わるまで破棄は戻らない", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, _ := newLenientPeer(ctrl)
		signaler := newBlockingSignaler()
		engine := call.NewEngine(call.EngineConfig{
			SelfID:            "alice",
			Signaler:          signaler,
			Devices:           &recordingDevices{},
			NewPeerConnection: staticFactory(pc),
		})

		errCh := make(chan error, 1)
		go func() {
			_, err := engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
			errCh <- err
		}()
		<-signaler.entered

		torn := make(chan struct{})
		go func() {
			engine.Teardown()
			close(torn)
		}()

		select {
		case <-torn:
			require.FailNow(t, "teardown returned while the offer was still being sent")
		case <-time.After(50 * time.Millisecond):
		}

		close(signaler.release)
		<-torn

		require.NoError(t, <-errCh)
		assert.Len(t, signaler.SentOfType(payload.MessageTypeOffer), 1)
		assert.Empty(t, engine.CallID())
	})

	t.Run("何度呼んでも同じ終了状態になる", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
		pc.EXPECT().CreateOffer().Return(offerDescription(), nil)
		pc.EXPECT().Close().Return(nil).Times(1)
		f := newEngineFixture(t, staticFactory(pc), nil)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVideo})
		require.NoError(t, err)
		stream := f.engine.LocalStream()

		for range 3 {
			assert.NotPanics(t, f.engine.Teardown)
			assert.Empty(t, f.engine.CallID())
			assert.Nil(t, f.engine.LocalStream())
			assert.Nil(t, f.engine.RemoteStream())
			assert.False(t, stream.Active())
		}
	})

	t.Run("セッションがなくても安全", func(t *testing.T) {
		f := newEngineFixture(t, nil, nil)
		assert.NotPanics(t, f.engine.Teardown)
		assert.NotPanics(t, f.engine.Teardown)
	})

	t.Run("メディア取得中の破棄で開始はキャンセルされる", func(t *testing.T) {
		created := 0
		factory := func(string) (call.PeerConnection, error) {
			created++
			return nil, errBoom
		}
		devices := newBlockingDevices()
		hub := signalingtest.NewHub()
		self := hub.Channel("alice")
		engine := call.NewEngine(call.EngineConfig{
			SelfID:            "alice",
			Signaler:          signaling.NewTransport(self, signaling.TransportOptions{SelfID: "alice"}),
			Devices:           devices,
			NewPeerConnection: factory,
		})

		errCh := make(chan error, 1)
		go func() {
			_, err := engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
			errCh <- err
		}()

		<-devices.entered
		engine.Teardown()
		close(devices.release)

		err := <-errCh
		assert.ErrorIs(t, err, call.ErrCallCancelled)
		require.NotNil(t, devices.stream)
		assert.False(t, devices.stream.Active())
		assert.Zero(t, created)
		assert.Empty(t, engine.CallID())
		assert.Empty(t, self.Sent())
	})

	t.Run("キャンセル済みのコンテキストでは予約しない", func(t *testing.T) {
		f := newEngineFixture(t, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.engine.StartCall(ctx, call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		assert.ErrorIs(t, err, call.ErrCallCancelled)
		assert.Zero(t, f.devices.Calls())
	})
}

func TestEngineObserver(t *testing.T) {
	t.Run("接続状態とICE失敗を通知する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, hooks := newLenientPeer(ctrl)
		observer := mock_call.NewMockEngineObserver(ctrl)
		observer.EXPECT().OnConnectionStateChange("call-1", webrtc.PeerConnectionStateConnecting)
		observer.EXPECT().OnError("call-1", gomock.Cond(func(err error) bool {
			return call.KindOf(err) == call.ErrICEFailure
		}))
		f := newEngineFixture(t, staticFactory(pc), observer)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		hooks.state(webrtc.PeerConnectionStateConnecting)
		hooks.iceState(webrtc.ICEConnectionStateChecking)
		hooks.iceState(webrtc.ICEConnectionStateFailed)
	})

	t.Run("破棄後の通知は届かない", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc, hooks := newLenientPeer(ctrl)
		observer := mock_call.NewMockEngineObserver(ctrl)
		f := newEngineFixture(t, staticFactory(pc), observer)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVoice})
		require.NoError(t, err)

		f.engine.Teardown()
		hooks.state(webrtc.PeerConnectionStateConnected)
		hooks.iceState(webrtc.ICEConnectionStateFailed)
	})

	t.Run("リモート映像トラックにPLIを送りストリームを通知する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pc := mock_call.NewMockPeerConnection(ctrl)
		expectHooks(pc)
		pc.EXPECT().AddTrack(gomock.Any()).Return(nil, nil).AnyTimes()
		pc.EXPECT().CreateOffer().Return(offerDescription(), nil)
		pc.EXPECT().Close().Return(nil).AnyTimes()
		pc.EXPECT().WriteRTCP(gomock.Cond(func(pkts []rtcp.Packet) bool {
			if len(pkts) != 1 {
				return false
			}
			pli, ok := pkts[0].(*rtcp.PictureLossIndication)
			return ok && pli.MediaSSRC == 1234
		})).Return(nil).Times(1)

		var streams []*pkgwebrtc.RemoteStream
		observer := mock_call.NewMockEngineObserver(ctrl)
		observer.EXPECT().OnRemoteStream("call-1", gomock.Any()).Do(func(_ string, s *pkgwebrtc.RemoteStream) {
			streams = append(streams, s)
		}).Times(2)
		f := newEngineFixture(t, staticFactory(pc), observer)

		_, err := f.engine.StartCall(context.Background(), call.StartRequest{CallID: "call-1", TargetUserID: "bob", CallType: payload.CallTypeVideo})
		require.NoError(t, err)

		f.engine.DeliverRemoteTrack("remote", "audio", webrtc.RTPCodecTypeAudio, pkgwebrtc.OpusCodec(), 1000, nil)
		f.engine.DeliverRemoteTrack("remote", "video", webrtc.RTPCodecTypeVideo, pkgwebrtc.VP8Codec(), 1234, nil)

		require.Len(t, streams, 2)
		assert.Same(t, streams[0], streams[1])
		assert.True(t, streams[1].HasAudio())
		assert.True(t, streams[1].HasVideo())
		assert.Same(t, streams[1], f.engine.RemoteStream())
	})
}

func TestIncomingOfferFromMessage(t *testing.T) {
	msg, err := payload.NewOfferMessage("call-1", "bob", payload.OfferPayload{
		CallType: payload.CallTypeVideo,
		ChatID:   "chat-1",
		Caller:   &payload.Participant{ID: "alice", DisplayName: "Alice", Role: "citizen"},
		Offer:    offerDescription(),
	})
	require.NoError(t, err)
	msg.FromUserID = "alice"

	offer, err := call.IncomingOfferFromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "call-1", offer.CallID)
	assert.Equal(t, "alice", offer.FromUserID)
	assert.Equal(t, payload.CallTypeVideo, offer.CallType)
	assert.Equal(t, "Alice", offer.Caller.DisplayName)
	assert.Equal(t, offerSDP, offer.Offer.SDP)

	_, err = call.IncomingOfferFromMessage(&payload.Message{Type: payload.MessageTypeOffer, CallID: "call-1"})
	assert.ErrorIs(t, err, payload.ErrNoData)
}
