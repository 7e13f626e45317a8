package call

import (
	"context"

	"github.com/HMasataka/counsel/internal/signaling"
	payload "github.com/HMasataka/counsel/payload/signaling"
	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// PeerConnectionはEngineが扱うピア接続の最小限の操作です。
// *pkgwebrtc.PeerConnection が実装します。
//
//go:generate mockgen -source interfaces.go -destination mock/interfaces.go
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnICEConnectionStateChange(f func(webrtc.ICEConnectionState))
	WriteRTCP(pkts []rtcp.Packet) error
	Close() error
}

var _ PeerConnection = (*pkgwebrtc.PeerConnection)(nil)

// PeerConnectionFactory builds the connection for one call.
type PeerConnectionFactory func(callID string) (PeerConnection, error)

// Signalerはシグナリングメッセージの送信口です。
type Signaler interface {
	Send(ctx context.Context, msg *payload.Message) bool
}

// MessageBusは送信に加えて受信ハンドラの登録と解除を行います。
type MessageBus interface {
	Signaler
	OnMessage(messageType payload.MessageType, h signaling.Handler) signaling.HandlerID
	OffMessage(messageType payload.MessageType, id signaling.HandlerID)
}

var _ MessageBus = (*signaling.Transport)(nil)

// EngineObserverはEngineからの非同期通知を受け取ります。
type EngineObserver interface {
	OnRemoteStream(callID string, stream *pkgwebrtc.RemoteStream)
	OnConnectionStateChange(callID string, state webrtc.PeerConnectionState)
	OnError(callID string, err error)
}

// Observerは状態の変化を受け取ります。呼び出しはイベントループ上で行われます。
type Observer interface {
	OnStateChange(snapshot Snapshot)
	OnIncomingCall(snapshot Snapshot)
	OnError(callID string, err error)
}

type TranscriptSink interface {
	AppendTranscript(ctx context.Context, line TranscriptLine) error
}
