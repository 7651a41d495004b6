package config

import (
	"errors"
	"time"
)

// Config is the top-level configuration struct for dataflock.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds HTTP server knobs.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Defaults applied when neither the config file nor the environment sets
// a value.
const (
	DefaultServerAddr            = "localhost:8998"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 10 * time.Second
	DefaultLogLevel              = "info"
)

// Sentinel errors for configuration validation.
var (
	// ErrEmptyServerAddr indicates the listen address is missing.
	ErrEmptyServerAddr = errors.New("server.addr must not be empty")
	// ErrNegativeTimeout indicates a server timeout is negative.
	ErrNegativeTimeout = errors.New("server timeouts must be non-negative")
	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("log.level must be one of debug, info, warn, error")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return ErrEmptyServerAddr
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return ErrNegativeTimeout
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return ErrInvalidLogLevel
	}
}
