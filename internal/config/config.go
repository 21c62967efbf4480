// Package config handles SDK and CLI configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config holds everything the CLI and examples need to build a client.
type Config struct {
	BaseURL   string        `env:"GLOWBOOK_API_URL" envDefault:"https://api.glowbook.app/v1"`
	Timeout   time.Duration `env:"GLOWBOOK_TIMEOUT" envDefault:"15s"`
	TokenFile string        `env:"GLOWBOOK_TOKEN_FILE"`
	NoCache   bool          `env:"GLOWBOOK_NOCACHE"`
	LogLevel  string        `env:"GLOWBOOK_LOG_LEVEL" envDefault:"info"`
	Email     string        `env:"GLOWBOOK_EMAIL"`
	Password  string        `env:"GLOWBOOK_PASSWORD"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// HasLogin reports whether credentials for a scripted login are set.
func (c *Config) HasLogin() bool {
	return c.Email != "" && c.Password != ""
}
