package sdpdebug

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var ErrEmptySDP = errors.New("empty session description")

// Media describes one m= section.
type Media struct {
	Kind      string
	MID       string
	Direction string
	Codecs    []string
}

// Summary is what a session description offers.
type Summary struct {
	Type           webrtc.SDPType
	Audio          bool
	Video          bool
	Media          []Media
	Candidates     int
	EndOfCandidate bool
}

func (s Summary) HasKind(kind string) bool {
	for _, m := range s.Media {
		if m.Kind == kind {
			return true
		}
	}
	return false
}

var directions = []string{"sendrecv", "sendonly", "recvonly", "inactive"}

// Inspect parses sd and reports the media sections it carries. Sections with
// port zero are rejected sections and are skipped.
func Inspect(sd webrtc.SessionDescription) (Summary, error) {
	if sd.SDP == "" {
		return Summary{}, ErrEmptySDP
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(sd.SDP)); err != nil {
		return Summary{}, fmt.Errorf("failed to parse sdp: %w", err)
	}

	summary := Summary{Type: sd.Type}

	for _, md := range parsed.MediaDescriptions {
		if md.MediaName.Port.Value == 0 {
			continue
		}

		m := Media{Kind: md.MediaName.Media, Direction: "sendrecv"}

		for _, attr := range md.Attributes {
			switch {
			case attr.Key == "mid":
				m.MID = attr.Value
			case attr.Key == "candidate":
				summary.Candidates++
			case attr.Key == "end-of-candidates":
				summary.EndOfCandidate = true
			case isDirection(attr.Key):
				m.Direction = attr.Key
			}
		}

		for _, format := range md.MediaName.Formats {
			var payloadType uint8
			if _, err := fmt.Sscanf(format, "%d", &payloadType); err != nil {
				continue
			}
			codec, err := parsed.GetCodecForPayloadType(payloadType)
			if err != nil {
				continue
			}
			m.Codecs = append(m.Codecs, codec.Name)
		}

		switch m.Kind {
		case "audio":
			summary.Audio = true
		case "video":
			summary.Video = true
		}

		summary.Media = append(summary.Media, m)
	}

	return summary, nil
}

func isDirection(key string) bool {
	for _, d := range directions {
		if key == d {
			return true
		}
	}
	return false
}

// Log writes a one-line summary of sd at debug level. Parse failures are
// logged as warnings and otherwise ignored.
func Log(logger *slog.Logger, label string, sd webrtc.SessionDescription) {
	if logger == nil {
		logger = slog.Default()
	}

	summary, err := Inspect(sd)
	if err != nil {
		logger.Warn("failed to inspect sdp", slog.String("label", label), slog.String("error", err.Error()))
		return
	}

	logger.Debug("sdp",
		slog.String("label", label),
		slog.String("type", sd.Type.String()),
		slog.Bool("audio", summary.Audio),
		slog.Bool("video", summary.Video),
		slog.Int("media", len(summary.Media)),
		slog.Int("candidates", summary.Candidates),
	)

	for _, m := range summary.Media {
		logger.Debug("sdp media",
			slog.String("label", label),
			slog.String("kind", m.Kind),
			slog.String("mid", m.MID),
			slog.String("direction", m.Direction),
			slog.Any("codecs", m.Codecs),
		)
	}
}
