package call

import (
	"time"

	payload "github.com/HMasataka/counsel/payload/signaling"
	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
	"github.com/pion/webrtc/v4"
)

type State string

const (
	StateIdle     State = "idle"
	StateOutgoing State = "outgoing"
	StateRinging  State = "ringing"
	StateIncoming State = "incoming"
	StateActive   State = "active"
	StateEnded    State = "ended"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleReceiver  Role = "receiver"
)

// Snapshot is a copy of the live session handed to observers. Fields other
// than State are zero while idle.
type Snapshot struct {
	State    State
	CallID   string
	CallType payload.CallType
	Role     Role
	Peer     payload.Participant
	ChatID   string

	// Busy is set while a media or negotiation step for the call is running.
	Busy bool
	// Answered is set once the receiver accepted.
	Answered bool

	AudioEnabled    bool
	VideoEnabled    bool
	ConnectionState webrtc.PeerConnectionState
	RemoteStream    *pkgwebrtc.RemoteStream

	StartedAt time.Time
	Duration  time.Duration

	EndReason string
	Err       error
}

// Live reports whether a call occupies the session.
func (s Snapshot) Live() bool {
	return s.State != StateIdle && s.State != StateEnded
}

// TranscriptLine is a human readable call event for the chat history.
type TranscriptLine struct {
	ChatID string
	CallID string
	Text   string
	At     time.Time
}
