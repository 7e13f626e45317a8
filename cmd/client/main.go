package main

import (
	"errors"
	"log"
	"log/slog"
	"os"

	"github.com/HMasataka/logging"
	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config     string `long:"config" short:"c" description:"TOML config file" env:"COUNSEL_CONFIG"`
	URL        string `long:"url" description:"Relay WebSocket URL (overrides [signaling] url)"`
	Token      string `long:"token" description:"Relay token (overrides [signaling] token)"`
	User       string `long:"user" short:"u" description:"Own user ID" required:"true"`
	DenyCamera bool   `long:"deny-camera" description:"Refuse camera access"`
	DenyMic    bool   `long:"deny-mic" description:"Refuse microphone access"`
	Debug      bool   `long:"debug" description:"Enable debug logging"`
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
	parser.AddCommand("call", "Place a call", "", &CallCommand{})
	parser.AddCommand("listen", "Wait for calls and answer them", "", &ListenCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		log.Fatal(err)
	}
}
