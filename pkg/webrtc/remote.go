package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var ErrRemoteTrackClosed = errors.New("remote track closed")

type RemoteTrackStats struct {
	PacketsReceived uint64
	BytesReceived   uint64
	LastSequence    uint16
	LastTimestamp   uint32
	CodecName       string
	ClockRate       uint32
	Channels        uint8
}

// RTPReader is satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// RemoteTrack tracks receive statistics for one inbound track.
type RemoteTrack struct {
	id   string
	kind webrtc.RTPCodecType

	mu     sync.RWMutex
	stats  RemoteTrackStats
	closed bool
}

func NewRemoteTrack(id string, kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability) *RemoteTrack {
	return &RemoteTrack{
		id:   id,
		kind: kind,
		stats: RemoteTrackStats{
			CodecName: codec.MimeType,
			ClockRate: codec.ClockRate,
			Channels:  uint8(codec.Channels),
		},
	}
}

func (t *RemoteTrack) ID() string {
	return t.id
}

func (t *RemoteTrack) Kind() webrtc.RTPCodecType {
	return t.kind
}

// ReadLoop consumes packets from src until it reports EOF, ctx is done, or
// the track is closed.
func (t *RemoteTrack) ReadLoop(ctx context.Context, src RTPReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.Closed() {
			return ErrRemoteTrackClosed
		}

		pkt, _, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read remote track: %w", err)
		}

		t.Consume(pkt)
	}
}

func (t *RemoteTrack) Consume(pkt *rtp.Packet) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	t.stats.PacketsReceived++
	t.stats.BytesReceived += uint64(pkt.MarshalSize())
	t.stats.LastSequence = pkt.SequenceNumber
	t.stats.LastTimestamp = pkt.Timestamp
}

func (t *RemoteTrack) Stats() RemoteTrackStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

func (t *RemoteTrack) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *RemoteTrack) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// RemoteStream groups the inbound tracks of a call.
type RemoteStream struct {
	id string

	mu     sync.RWMutex
	tracks []*RemoteTrack
}

func NewRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id}
}

func (s *RemoteStream) ID() string {
	return s.id
}

func (s *RemoteStream) AddTrack(track *RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
}

func (s *RemoteStream) Tracks() []*RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RemoteTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *RemoteStream) HasAudio() bool {
	return s.has(webrtc.RTPCodecTypeAudio)
}

func (s *RemoteStream) HasVideo() bool {
	return s.has(webrtc.RTPCodecTypeVideo)
}

func (s *RemoteStream) has(kind webrtc.RTPCodecType) bool {
	for _, t := range s.Tracks() {
		if t.kind == kind {
			return true
		}
	}
	return false
}

func (s *RemoteStream) Close() {
	for _, t := range s.Tracks() {
		t.Close()
	}
}
