package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoConstraints    = errors.New("neither audio nor video requested")
	ErrTrackStopped     = errors.New("track stopped")
)

type MediaConstraints struct {
	Audio bool
	Video bool
}

// MediaDevices acquires local capture. Implementations return an error
// wrapping ErrPermissionDenied when the user or platform refuses access.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints MediaConstraints) (*LocalStream, error)
}

func OpusCodec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}
}

func VP8Codec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}
}

// LocalTrack is one captured track. A disabled track stays negotiated but
// drops every sample written to it.
type LocalTrack struct {
	track   *webrtc.TrackLocalStaticSample
	kind    webrtc.RTPCodecType
	enabled atomic.Bool
	stopped atomic.Bool
}

func NewLocalTrack(kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability, id, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}

	t := &LocalTrack{track: track, kind: kind}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) Track() webrtc.TrackLocal {
	return t.track
}

func (t *LocalTrack) Kind() webrtc.RTPCodecType {
	return t.kind
}

func (t *LocalTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Toggle flips the enabled flag and returns the new value.
func (t *LocalTrack) Toggle() bool {
	for {
		old := t.enabled.Load()
		if t.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (t *LocalTrack) WriteSample(sample media.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(sample)
}

func (t *LocalTrack) Stop() {
	t.stopped.Store(true)
	t.enabled.Store(false)
}

func (t *LocalTrack) Stopped() bool {
	return t.stopped.Load()
}

type LocalStream struct {
	id     string
	tracks []*LocalTrack
}

func NewLocalStream(id string, tracks ...*LocalTrack) *LocalStream {
	return &LocalStream{id: id, tracks: tracks}
}

func (s *LocalStream) ID() string {
	return s.id
}

func (s *LocalStream) Tracks() []*LocalTrack {
	return s.tracks
}

func (s *LocalStream) AudioTrack() *LocalTrack {
	return s.track(webrtc.RTPCodecTypeAudio)
}

func (s *LocalStream) VideoTrack() *LocalTrack {
	return s.track(webrtc.RTPCodecTypeVideo)
}

func (s *LocalStream) track(kind webrtc.RTPCodecType) *LocalTrack {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// Stop stops every track of the stream.
func (s *LocalStream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Active reports whether any track is still running.
func (s *LocalStream) Active() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return true
		}
	}
	return false
}

// SyntheticDevices produces sample-fed tracks instead of capturing hardware.
// The Deny flags simulate a refused permission prompt.
type SyntheticDevices struct {
	DenyAudio bool
	DenyVideo bool
}

var _ MediaDevices = SyntheticDevices{}

func (d SyntheticDevices) GetUserMedia(ctx context.Context, constraints MediaConstraints) (*LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !constraints.Audio && !constraints.Video {
		return nil, ErrNoConstraints
	}
	if constraints.Audio && d.DenyAudio {
		return nil, fmt.Errorf("microphone: %w", ErrPermissionDenied)
	}
	if constraints.Video && d.DenyVideo {
		return nil, fmt.Errorf("camera: %w", ErrPermissionDenied)
	}

	streamID := uuid.NewString()
	var tracks []*LocalTrack

	if constraints.Audio {
		t, err := NewLocalTrack(webrtc.RTPCodecTypeAudio, OpusCodec(), "audio", streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}

	if constraints.Video {
		t, err := NewLocalTrack(webrtc.RTPCodecTypeVideo, VP8Codec(), "video", streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}

	return NewLocalStream(streamID, tracks...), nil
}
