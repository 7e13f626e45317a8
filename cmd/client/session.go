package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HMasataka/counsel/internal/call"
	"github.com/HMasataka/counsel/internal/config"
	"github.com/HMasataka/counsel/internal/signaling"
	"github.com/HMasataka/counsel/internal/transcript"
	payload "github.com/HMasataka/counsel/payload/signaling"
	"github.com/HMasataka/counsel/pkg/retry"
	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
)

// observer forwards snapshots to the command loop. It runs on the
// coordinator's loop and must not block.
type observer struct {
	events   chan call.Snapshot
	incoming chan call.Snapshot
}

func (o *observer) OnStateChange(s call.Snapshot) {
	slog.Debug("state changed",
		slog.String("call_id", s.CallID),
		slog.String("state", string(s.State)),
		slog.String("connection", s.ConnectionState.String()))

	select {
	case o.events <- s:
	default:
		slog.Warn("state event dropped", slog.String("state", string(s.State)))
	}
}

func (o *observer) OnIncomingCall(s call.Snapshot) {
	slog.Info("incoming call",
		slog.String("call_id", s.CallID),
		slog.String("from", s.Peer.ID),
		slog.String("call_type", string(s.CallType)))

	select {
	case o.incoming <- s:
	default:
		slog.Warn("incoming call dropped", slog.String("call_id", s.CallID))
	}
}

func (o *observer) OnError(callID string, err error) {
	slog.Error("call error", slog.String("call_id", callID), slog.String("error", err.Error()))
}

type session struct {
	ch          *signaling.WebSocketChannel
	store       *transcript.Store
	coordinator *call.Coordinator
	events      chan call.Snapshot
	incoming    chan call.Snapshot
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.URL != "" {
		cfg.Signaling.URL = opts.URL
	}
	if opts.Token != "" {
		cfg.Signaling.Token = opts.Token
	}

	retryConfig := retry.DefaultConfig()
	if cfg.Signaling.DialAttempts > 0 {
		retryConfig.Attempts = cfg.Signaling.DialAttempts
	}

	connOptions := cfg.ConnectionOptions()
	connOptions.Logger = slog.Default()

	ch, err := signaling.DialWithRetry(ctx, cfg.Signaling.URL, cfg.Signaling.Token, connOptions, retryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	s := &session{
		ch:       ch,
		events:   make(chan call.Snapshot, 64),
		incoming: make(chan call.Snapshot, 4),
	}

	var sink call.TranscriptSink
	if cfg.Transcript.Path != "" {
		store, err := transcript.Open(cfg.Transcript.Path, slog.Default())
		if err != nil {
			ch.Close()
			return nil, err
		}
		s.store = store
		sink = store
	}

	s.coordinator = call.NewCoordinator(call.CoordinatorConfig{
		SelfID:    opts.User,
		Transport: signaling.NewTransport(ch, signaling.TransportOptions{SelfID: opts.User}),
		Devices: pkgwebrtc.SyntheticDevices{
			DenyAudio: opts.DenyMic,
			DenyVideo: opts.DenyCamera,
		},
		NewPeerConnection: call.NewPeerConnectionFactory(cfg.PeerConnectionOptions()),
		Observer:          &observer{events: s.events, incoming: s.incoming},
		Transcript:        sink,
		IncomingTimeout:   cfg.IncomingTimeout(),
		RingTimeout:       cfg.RingTimeout(),
	})
	return s, nil
}

func (s *session) Close() {
	s.coordinator.Close()
	s.ch.Close()
	if s.store != nil {
		s.store.Close()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func logEnded(s call.Snapshot) {
	attrs := []any{
		slog.String("call_id", s.CallID),
		slog.String("reason", s.EndReason),
		slog.String("duration", call.FormatDuration(s.Duration)),
	}
	if s.Err != nil {
		attrs = append(attrs, slog.String("error", s.Err.Error()))
	}
	slog.Info("call ended", attrs...)
}

type CallCommand struct {
	Target      string        `long:"target" short:"t" description:"User ID to call" required:"true"`
	Type        string        `long:"type" description:"Call type" choice:"voice" choice:"video" default:"voice"`
	Chat        string        `long:"chat" description:"Chat ID for the transcript"`
	HangupAfter time.Duration `long:"hangup-after" description:"Hang up this long after connecting; 0 waits for the peer"`
}

func (cmd *CallCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	callID := s.coordinator.Start(call.StartRequest{
		TargetUserID: cmd.Target,
		CallType:     payload.CallType(cmd.Type),
		ChatID:       cmd.Chat,
		Caller:       &payload.Participant{ID: opts.User},
	})
	slog.Info("calling", slog.String("call_id", callID), slog.String("target", cmd.Target))

	var hangup <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			s.coordinator.End()
			return nil
		case <-s.ch.Done():
			return signaling.ErrChannelClosed
		case <-hangup:
			s.coordinator.End()
			hangup = nil
		case snap := <-s.events:
			switch snap.State {
			case call.StateActive:
				if hangup == nil && cmd.HangupAfter > 0 {
					hangup = time.After(cmd.HangupAfter)
				}
			case call.StateEnded:
				logEnded(snap)
				return snap.Err
			}
		}
	}
}

type ListenCommand struct {
	Accept string `long:"accept" description:"Answer with this call type instead of the offered one" choice:"voice" choice:"video"`
	Reject bool   `long:"reject" description:"Decline every call"`
}

func (cmd *ListenCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	slog.Info("listening", slog.String("user", opts.User))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ch.Done():
			return signaling.ErrChannelClosed
		case <-s.incoming:
			if cmd.Reject {
				s.coordinator.Reject()
			} else {
				s.coordinator.Accept(payload.CallType(cmd.Accept))
			}
		case snap := <-s.events:
			switch snap.State {
			case call.StateActive:
				slog.Info("call connected", slog.String("call_id", snap.CallID), slog.String("peer", snap.Peer.ID))
			case call.StateEnded:
				logEnded(snap)
			}
		}
	}
}
