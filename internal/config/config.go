// Package config loads gardener settings from environment variables, with an
// optional pass through AWS Secrets Manager for the Slack tokens.
package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/netflix/go-env"
)

// Config holds every setting for a gardener run.
type Config struct {
	// Slack credentials. BotToken may instead arrive via Secrets Manager
	// when SecretsID is set.
	BotToken  string `env:"SLACK_BOT_TOKEN"`
	UserToken string `env:"SLACK_USER_TOKEN"`

	// Name of an AWS Secrets Manager secret holding the tokens as JSON.
	SecretsID string `env:"GARDENER_SECRETS_ID"`

	// Channel gardening.
	IdleDays            int    `env:"GARDENER_IDLE_DAYS,default=90"`
	LongIdleDays        int    `env:"GARDENER_LONG_IDLE_DAYS,default=365"`
	LongIdleChannelsStr string `env:"GARDENER_LONG_IDLE_CHANNELS"`
	WarningWaitDays     int    `env:"GARDENER_WARNING_WAIT_DAYS,default=7"`
	WarningMessage      string `env:"GARDENER_WARNING_MESSAGE,default=This channel has been quiet for a while and will be archived soon unless someone posts."`

	// Profile checking.
	ProfileWarningMessage string `env:"PROFILE_WARNING_MESSAGE,default=Hi <@%s> - your Slack profile is missing some recommended fields. Please complete it so people can recognise you."`
	ProfileRewarnDays     int    `env:"PROFILE_REWARN_DAYS,default=7"`

	// Execution.
	DryRun      bool `env:"GARDENER_DRY_RUN,default=false"`
	Concurrency int  `env:"GARDENER_CONCURRENCY,default=4"`

	LongIdleChannels []string `env:"-"`
}

// Load reads configuration from the environment and validates it. Token
// presence is checked later, after the optional Secrets Manager merge.
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.LongIdleChannelsStr != "" {
		for _, name := range strings.Split(cfg.LongIdleChannelsStr, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				cfg.LongIdleChannels = append(cfg.LongIdleChannels, trimmed)
			}
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Concurrency > 20 {
		cfg.Concurrency = 20
	}

	if cfg.IdleDays < 1 {
		return fmt.Errorf("GARDENER_IDLE_DAYS must be positive, got %d", cfg.IdleDays)
	}
	if cfg.LongIdleDays < cfg.IdleDays {
		return fmt.Errorf("GARDENER_LONG_IDLE_DAYS (%d) must not be shorter than GARDENER_IDLE_DAYS (%d)", cfg.LongIdleDays, cfg.IdleDays)
	}
	if cfg.WarningWaitDays < 1 {
		return fmt.Errorf("GARDENER_WARNING_WAIT_DAYS must be positive, got %d", cfg.WarningWaitDays)
	}
	if cfg.WarningMessage == "" {
		return fmt.Errorf("GARDENER_WARNING_MESSAGE must not be empty")
	}
	return nil
}

// RequireTokens verifies the Slack tokens are present once all sources have
// been merged.
func (c *Config) RequireTokens() error {
	if c.BotToken == "" {
		return fmt.Errorf("SLACK_BOT_TOKEN is not set (directly or via GARDENER_SECRETS_ID)")
	}
	return nil
}

// IdlePeriod returns the default idle period.
func (c *Config) IdlePeriod() time.Duration {
	return time.Duration(c.IdleDays) * 24 * time.Hour
}

// LongIdlePeriod returns the extended idle period for allowlisted channels.
func (c *Config) LongIdlePeriod() time.Duration {
	return time.Duration(c.LongIdleDays) * 24 * time.Hour
}

// WarningGracePeriod returns how long a warning must stand before archival.
func (c *Config) WarningGracePeriod() time.Duration {
	return time.Duration(c.WarningWaitDays) * 24 * time.Hour
}

// ProfileRewarnPeriod returns how long to wait before re-warning a user.
func (c *Config) ProfileRewarnPeriod() time.Duration {
	return time.Duration(c.ProfileRewarnDays) * 24 * time.Hour
}
