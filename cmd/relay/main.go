package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HMasataka/counsel/internal/config"
	"github.com/HMasataka/counsel/internal/relay"
	"github.com/HMasataka/logging"
	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `long:"config" short:"c" description:"TOML config file" env:"COUNSEL_CONFIG"`
	Debug  bool   `long:"debug" description:"Enable debug logging"`
}

type ServeCommand struct {
	Addr string `long:"addr" description:"Listen address (overrides [relay] addr)"`
}

func (cmd *ServeCommand) Execute(args []string) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Relay.Addr = cmd.Addr
	}
	if cfg.Relay.JWTSecret == "" {
		return errors.New("relay jwt_secret is required")
	}

	server := relay.NewServer(relay.Options{
		Secret:         []byte(cfg.Relay.JWTSecret),
		Rate:           cfg.Relay.Rate,
		Burst:          cfg.Relay.Burst,
		AllowedOrigins: cfg.Relay.AllowedOrigins,
		MaxMessageSize: cfg.Signaling.MaxMessageSize,
	})

	httpServer := &http.Server{
		Addr:    cfg.Relay.Addr,
		Handler: server.Handler(),
	}

	go func() {
		slog.Info("relay starting", slog.String("addr", cfg.Relay.Addr))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down relay...")
	server.Close()
	return httpServer.Close()
}

type TokenCommand struct {
	User string        `long:"user" description:"User ID" required:"true"`
	TTL  time.Duration `long:"ttl" description:"Token lifetime" default:"24h"`
}

func (cmd *TokenCommand) Execute(args []string) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}

	token, err := relay.IssueToken([]byte(cfg.Relay.JWTSecret), cmd.User, cmd.TTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		level := slog.LevelInfo
		if opts.Debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(logging.NewHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))))

		return command.Execute(args)
	}
	parser.AddCommand("serve", "Run the signaling relay", "", &ServeCommand{})
	parser.AddCommand("token", "Issue a token for a user", "", &TokenCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		log.Fatal(err)
	}
}
