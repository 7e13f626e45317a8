package signaling

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeICECandidate MessageType = "ice-candidate"
	MessageTypeCallAccept   MessageType = "call-accept"
	MessageTypeCallReject   MessageType = "call-reject"
	MessageTypeCallEnd      MessageType = "call-end"
)

// MessageTypes lists every type carried over the signaling channel.
var MessageTypes = []MessageType{
	MessageTypeOffer,
	MessageTypeAnswer,
	MessageTypeICECandidate,
	MessageTypeCallAccept,
	MessageTypeCallReject,
	MessageTypeCallEnd,
}

func (t MessageType) Valid() bool {
	for _, mt := range MessageTypes {
		if mt == t {
			return true
		}
	}
	return false
}

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func (c CallType) Valid() bool {
	return c == CallTypeVoice || c == CallTypeVideo
}

// Includes reports whether media negotiated for c covers the media of other.
// A video call carries audio as well, so video includes voice.
func (c CallType) Includes(other CallType) bool {
	if c == other {
		return true
	}
	return c == CallTypeVideo && other == CallTypeVoice
}

const (
	ReasonDeclined         = "declined"
	ReasonTimeout          = "timeout"
	ReasonBusy             = "busy"
	ReasonOffline          = "offline"
	ReasonCancelled        = "cancelled"
	ReasonMediaUnavailable = "media-unavailable"

	ReasonHangup     = "hangup"
	ReasonNoAnswer   = "no-answer"
	ReasonFailed     = "failed"
	ReasonDisconnect = "disconnect"
)

var (
	ErrEmptyCallID = errors.New("message has no callId")
	ErrNoData      = errors.New("message has no data")
)

// Message is the envelope of every signaling message. Data holds the
// type-specific payload.
type Message struct {
	Type         MessageType     `json:"type"`
	CallID       string          `json:"callId"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	FromUserID   string          `json:"fromUserId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

func NewMessage(messageType MessageType, callID, targetUserID string, payload any) (*Message, error) {
	if callID == "" {
		return nil, ErrEmptyCallID
	}

	msg := &Message{
		Type:         messageType,
		CallID:       callID,
		TargetUserID: targetUserID,
		Timestamp:    time.Now(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}

	return msg, nil
}

// Decode unmarshals the message data into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return ErrNoData
	}
	return json.Unmarshal(m.Data, v)
}

// Participant identifies the other party of a call.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
}

type OfferPayload struct {
	CallType CallType                  `json:"callType"`
	ChatID   string                    `json:"chatId,omitempty"`
	Caller   *Participant              `json:"caller,omitempty"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

type AnswerPayload struct {
	Answer webrtc.SessionDescription `json:"answer"`
}

type ICECandidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type AcceptPayload struct {
	AcceptType CallType `json:"acceptType"`
}

type RejectPayload struct {
	Reason string `json:"reason,omitempty"`
}

type EndPayload struct {
	Reason string `json:"reason,omitempty"`
}

func NewOfferMessage(callID, targetUserID string, offer OfferPayload) (*Message, error) {
	return NewMessage(MessageTypeOffer, callID, targetUserID, offer)
}

func NewAnswerMessage(callID, targetUserID string, answer webrtc.SessionDescription) (*Message, error) {
	return NewMessage(MessageTypeAnswer, callID, targetUserID, AnswerPayload{Answer: answer})
}

func NewICECandidateMessage(callID, targetUserID string, candidate webrtc.ICECandidateInit) (*Message, error) {
	return NewMessage(MessageTypeICECandidate, callID, targetUserID, ICECandidatePayload{Candidate: candidate})
}

func NewAcceptMessage(callID, targetUserID string, acceptType CallType) (*Message, error) {
	return NewMessage(MessageTypeCallAccept, callID, targetUserID, AcceptPayload{AcceptType: acceptType})
}

func NewRejectMessage(callID, targetUserID, reason string) (*Message, error) {
	return NewMessage(MessageTypeCallReject, callID, targetUserID, RejectPayload{Reason: reason})
}

func NewEndMessage(callID, targetUserID, reason string) (*Message, error) {
	return NewMessage(MessageTypeCallEnd, callID, targetUserID, EndPayload{Reason: reason})
}
