// Package config reads and writes ~/.chatline/config.toml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/matheus3301/chatline/internal/chat"
)

// Data source kinds.
const (
	SourceFixtures = "fixtures"
	SourceSQLite   = "sqlite"
)

// Duration is a time.Duration written as a string such as "3s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.chatline/config.toml.
type Config struct {
	DefaultProfile string    `toml:"default_profile"`
	User           chat.User `toml:"user"`
	Realtime       Realtime  `toml:"realtime"`
	Typing         Typing    `toml:"typing"`
	AutoReply      AutoReply `toml:"auto_reply"`
	Source         Source    `toml:"source"`
}

// Channel kinds, chosen by the realtime URL scheme.
const (
	RealtimeLoopback  = "loopback"
	RealtimeWebSocket = "websocket"
	RealtimeRedis     = "redis"
)

// Realtime configures the channel. An empty URL selects the in-process
// loopback, ws:// and wss:// a WebSocket server, redis:// and rediss:// a
// Redis pub/sub relay.
type Realtime struct {
	URL string `toml:"url"`
}

// Kind returns the channel kind for URL, or "" if the scheme is unknown.
func (r Realtime) Kind() string {
	if r.URL == "" {
		return RealtimeLoopback
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "ws", "wss":
		return RealtimeWebSocket
	case "redis", "rediss":
		return RealtimeRedis
	}
	return ""
}

type Typing struct {
	Window Duration `toml:"window"`
}

type AutoReply struct {
	Enabled  bool     `toml:"enabled"`
	MinDelay Duration `toml:"min_delay"`
	MaxDelay Duration `toml:"max_delay"`
}

type Source struct {
	Kind string `toml:"kind"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Typing:         Typing{Window: Duration{3 * time.Second}},
		AutoReply: AutoReply{
			Enabled:  true,
			MinDelay: Duration{500 * time.Millisecond},
			MaxDelay: Duration{2 * time.Second},
		},
		Source: Source{Kind: SourceFixtures},
	}
}

// Validate checks value ranges and enums.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceFixtures, SourceSQLite:
	default:
		return fmt.Errorf("source.kind %q: must be %q or %q", c.Source.Kind, SourceFixtures, SourceSQLite)
	}
	if c.Realtime.Kind() == "" {
		return fmt.Errorf("realtime.url %q: scheme must be ws, wss, redis or rediss", c.Realtime.URL)
	}
	if c.Typing.Window.Duration <= 0 {
		return errors.New("typing.window must be positive")
	}
	if c.AutoReply.MinDelay.Duration < 0 || c.AutoReply.MaxDelay.Duration < c.AutoReply.MinDelay.Duration {
		return fmt.Errorf("auto_reply delays [%s, %s] are not a valid range", c.AutoReply.MinDelay, c.AutoReply.MaxDelay)
	}
	return nil
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing or invalid.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
