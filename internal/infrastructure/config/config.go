// Package config loads relay settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"ws-broadcast-relay/internal/infrastructure/logger"
)

type Config struct {
	Host string `env:"RELAY_HOST"`
	Port int    `env:"RELAY_PORT" default:"3000"`

	// ForceText sends every relayed frame as a text frame, whatever type
	// it arrived as.
	ForceText       bool          `env:"RELAY_FORCE_TEXT" default:"false"`
	SendQueueSize   int           `env:"RELAY_SEND_QUEUE" default:"256"`
	MaxMessageBytes int64         `env:"RELAY_MAX_MESSAGE_BYTES" default:"1048576"`
	WriteTimeout    time.Duration `env:"RELAY_WRITE_TIMEOUT" default:"10s"`
	PongTimeout     time.Duration `env:"RELAY_PONG_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" default:"5s"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"console"`
	LogOutput string `env:"LOG_OUTPUT" default:"stdout"`
	LogFile   string `env:"LOG_FILE"`

	GinMode string `env:"GIN_MODE" default:"release"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	// A missing .env file is the normal case outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("RELAY_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.SendQueueSize <= 0 {
		return errors.New("RELAY_SEND_QUEUE must be positive")
	}
	if c.MaxMessageBytes < 0 {
		return errors.New("RELAY_MAX_MESSAGE_BYTES must not be negative")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("RELAY_WRITE_TIMEOUT must be positive")
	}
	if c.PingInterval() <= 0 {
		return errors.New("RELAY_PONG_TIMEOUT is too small to derive a ping interval")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("RELAY_SHUTDOWN_TIMEOUT must be positive")
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.GinMode)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Addr is the listen address; an empty host binds every interface.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PingInterval is how often the server pings a peer. It stays below
// PongTimeout so a healthy peer always answers in time.
func (c *Config) PingInterval() time.Duration {
	return c.PongTimeout * 9 / 10
}

func (c *Config) Logger() *logger.Config {
	lc := logger.NewDefaultConfig()
	lc.Level, _ = logger.ParseLevel(c.LogLevel)
	lc.Format = c.LogFormat
	lc.Output = c.LogOutput
	lc.FilePath = c.LogFile
	return lc
}
