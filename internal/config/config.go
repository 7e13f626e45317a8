// Package config loads the TOML configuration shared by the relay and the
// client, with .env and COUNSEL_* environment overrides on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HMasataka/counsel/internal/signaling"
	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

const EnvPrefix = "COUNSEL_"

var (
	ErrTooFewICEServers = errors.New("at least two ICE servers are required")
	ErrInvalidTimeout   = errors.New("invalid timeout")
	ErrInvalidRelay     = errors.New("invalid relay settings")
)

type Config struct {
	Signaling  SignalingConfig  `toml:"signaling"`
	WebRTC     WebRTCConfig     `toml:"webrtc"`
	Call       CallConfig       `toml:"call"`
	Relay      RelayConfig      `toml:"relay"`
	Transcript TranscriptConfig `toml:"transcript"`
}

type SignalingConfig struct {
	URL            string `toml:"url"`
	Token          string `toml:"token"`
	ReadTimeout    int    `toml:"read_timeout"`
	WriteTimeout   int    `toml:"write_timeout"`
	PingInterval   int    `toml:"ping_interval"`
	MaxMessageSize int64  `toml:"max_message_size"`
	DialAttempts   int    `toml:"dial_attempts"`
}

type WebRTCConfig struct {
	ICEServers []ICEServerConfig    `toml:"iceserver"`
	MDNS       bool                 `toml:"mdns"`
	Timeouts   WebRTCTimeoutsConfig `toml:"timeouts"`
}

type ICEServerConfig struct {
	URLs       []string `toml:"urls"`
	Username   string   `toml:"username"`
	Credential string   `toml:"credential"`
}

// WebRTCTimeoutsConfig is in seconds. A zero keeps pion's default for that timeout.
type WebRTCTimeoutsConfig struct {
	ICEDisconnectedTimeout int `toml:"disconnected"`
	ICEFailedTimeout       int `toml:"failed"`
	ICEKeepaliveInterval   int `toml:"keepalive"`
}

// CallConfig is in seconds. A zero RingTimeout disables the ring timer.
type CallConfig struct {
	IncomingTimeout int `toml:"incoming_timeout"`
	RingTimeout     int `toml:"ring_timeout"`
}

type RelayConfig struct {
	Addr           string   `toml:"addr"`
	JWTSecret      string   `toml:"jwt_secret"`
	Rate           float64  `toml:"rate"`
	Burst          int64    `toml:"burst"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type TranscriptConfig struct {
	Path string `toml:"path"`
}

func Default() Config {
	return Config{
		Signaling: SignalingConfig{
			URL:            "ws://localhost:8080/ws",
			ReadTimeout:    90,
			WriteTimeout:   10,
			PingInterval:   15,
			MaxMessageSize: 512 * 1024,
			DialAttempts:   5,
		},
		WebRTC: WebRTCConfig{
			ICEServers: []ICEServerConfig{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
				{URLs: []string{"stun:stun1.l.google.com:19302"}},
			},
		},
		Call: CallConfig{
			IncomingTimeout: 30,
			RingTimeout:     45,
		},
		Relay: RelayConfig{
			Addr:           ":8080",
			Rate:           50,
			Burst:          100,
			AllowedOrigins: []string{"*"},
		},
		Transcript: TranscriptConfig{
			Path: "counsel.db",
		},
	}
}

// Load reads the TOML file at path over Default and applies the environment.
// An empty path skips the file. envFiles default to ".env"; missing env
// files are ignored. Variables already set in the process win over env files.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		// lists in the file replace the defaults instead of extending them
		defaults := cfg
		cfg.WebRTC.ICEServers = nil
		cfg.Relay.AllowedOrigins = nil

		if err := Decode(data, &cfg); err != nil {
			return Config{}, err
		}

		if len(cfg.WebRTC.ICEServers) == 0 {
			cfg.WebRTC.ICEServers = defaults.WebRTC.ICEServers
		}
		if len(cfg.Relay.AllowedOrigins) == 0 {
			cfg.Relay.AllowedOrigins = defaults.Relay.AllowedOrigins
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Decode strictly unmarshals TOML into cfg. Unknown keys are an error.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	env := make(map[string]string)

	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		for k, v := range values {
			if _, ok := env[k]; !ok {
				env[k] = v
			}
		}
	}

	return env, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("SIGNALING_URL", &c.Signaling.URL)
	str("SIGNALING_TOKEN", &c.Signaling.Token)
	str("RELAY_ADDR", &c.Relay.Addr)
	str("RELAY_JWT_SECRET", &c.Relay.JWTSecret)
	str("TRANSCRIPT_PATH", &c.Transcript.Path)

	if err := num("CALL_INCOMING_TIMEOUT", &c.Call.IncomingTimeout); err != nil {
		return err
	}
	if err := num("CALL_RING_TIMEOUT", &c.Call.RingTimeout); err != nil {
		return err
	}

	if v, ok := lookup(EnvPrefix + "WEBRTC_MDNS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sWEBRTC_MDNS: %w", EnvPrefix, err)
		}
		c.WebRTC.MDNS = b
	}

	if v, ok := lookup(EnvPrefix + "RELAY_ALLOWED_ORIGINS"); ok {
		c.Relay.AllowedOrigins = lo.Compact(lo.Map(strings.Split(v, ","), func(s string, _ int) string {
			return strings.TrimSpace(s)
		}))
	}

	return nil
}

func (c Config) Validate() error {
	servers := lo.Filter(c.WebRTC.ICEServers, func(s ICEServerConfig, _ int) bool {
		return len(s.URLs) > 0
	})
	if len(servers) < 2 {
		return fmt.Errorf("%w: have %d", ErrTooFewICEServers, len(servers))
	}

	if c.Call.IncomingTimeout <= 0 {
		return fmt.Errorf("%w: incoming_timeout must be positive", ErrInvalidTimeout)
	}
	if c.Call.RingTimeout < 0 {
		return fmt.Errorf("%w: ring_timeout must not be negative", ErrInvalidTimeout)
	}

	t := c.WebRTC.Timeouts
	if t.ICEDisconnectedTimeout < 0 || t.ICEFailedTimeout < 0 || t.ICEKeepaliveInterval < 0 {
		return fmt.Errorf("%w: webrtc timeouts must not be negative", ErrInvalidTimeout)
	}

	if c.Relay.Rate < 0 || c.Relay.Burst < 0 || (c.Relay.Rate > 0 && c.Relay.Burst == 0) {
		return fmt.Errorf("%w: rate %v burst %d", ErrInvalidRelay, c.Relay.Rate, c.Relay.Burst)
	}

	return nil
}

// PeerConnectionOptions converts the [webrtc] section.
func (c Config) PeerConnectionOptions() pkgwebrtc.PeerConnectionOptions {
	servers := lo.FilterMap(c.WebRTC.ICEServers, func(s ICEServerConfig, _ int) (webrtc.ICEServer, bool) {
		return webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		}, len(s.URLs) > 0
	})

	return pkgwebrtc.PeerConnectionOptions{
		ICEServers:             servers,
		DisableMDNS:            !c.WebRTC.MDNS,
		ICEDisconnectedTimeout: seconds(c.WebRTC.Timeouts.ICEDisconnectedTimeout),
		ICEFailedTimeout:       seconds(c.WebRTC.Timeouts.ICEFailedTimeout),
		ICEKeepaliveInterval:   seconds(c.WebRTC.Timeouts.ICEKeepaliveInterval),
	}
}

// ConnectionOptions converts the [signaling] section.
func (c Config) ConnectionOptions() signaling.ConnectionOptions {
	return signaling.ConnectionOptions{
		ReadTimeout:    seconds(c.Signaling.ReadTimeout),
		WriteTimeout:   seconds(c.Signaling.WriteTimeout),
		PingInterval:   seconds(c.Signaling.PingInterval),
		MaxMessageSize: c.Signaling.MaxMessageSize,
	}
}

func (c Config) IncomingTimeout() time.Duration {
	return seconds(c.Call.IncomingTimeout)
}

// RingTimeout returns -1 when the ring timer is disabled.
func (c Config) RingTimeout() time.Duration {
	if c.Call.RingTimeout == 0 {
		return -1
	}
	return seconds(c.Call.RingTimeout)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
