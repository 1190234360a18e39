// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"voxbox/internal/app/admission"
	"voxbox/internal/app/queue"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Playback PlaybackConfig `yaml:"playback"`
	Queue    QueueConfig    `yaml:"queue"`
	Voice    VoiceConfig    `yaml:"voice"`
	Library  LibraryConfig  `yaml:"library"`
	Notifier NotifierConfig `yaml:"notifier"`

	// Admission lists the checks run against tracks before they join a
	// queue, in order. Empty means everything is admitted.
	Admission []admission.CheckConfig `yaml:"admission,omitempty" validate:"dive"`
}

// ServerConfig represents the status server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// PlaybackConfig represents player-facing configuration.
type PlaybackConfig struct {
	DefaultVolume int `yaml:"default_volume" default:"50" validate:"gte=0,lte=200"`
	PruneDelayMs  int `yaml:"prune_delay_ms" default:"5000" validate:"gte=0,lte=60000"`
}

// QueueConfig represents sequencing configuration.
type QueueConfig struct {
	StaySeconds      int `yaml:"stay_seconds" default:"300" validate:"gte=1"`
	ResolveRetries   int `yaml:"resolve_retries" default:"3" validate:"gte=1,lte=10"`
	ResolveBackoffMs int `yaml:"resolve_backoff_ms" default:"250" validate:"gte=0,lte=10000"`
}

// VoiceConfig represents transport reconnect configuration.
type VoiceConfig struct {
	RejoinMaxAttempts int `yaml:"rejoin_max_attempts" default:"5" validate:"gte=1,lte=20"`
	RejoinBackoffSec  int `yaml:"rejoin_backoff_sec" default:"5" validate:"gte=1,lte=60"`
	ReadyTimeoutSec   int `yaml:"ready_timeout_sec" default:"20" validate:"gte=1,lte=120"`
}

// LibraryConfig represents the track library configuration.
type LibraryConfig struct {
	Path string `yaml:"path" default:"library.db" validate:"required"`
}

// NotifierConfig represents the notice delivery backend configuration.
type NotifierConfig struct {
	Type     string         `yaml:"type" default:"log" validate:"oneof=log webhook"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file. Environment variables take
// precedence over file values for deployment-specific fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("VOXBOX_LIBRARY_PATH"); v != "" {
		c.Library.Path = v
	}
	if v := os.Getenv("VOXBOX_WEBHOOK_URL"); v != "" {
		if c.Notifier.Settings == nil {
			c.Notifier.Settings = make(map[string]any)
		}
		c.Notifier.Type = "webhook"
		c.Notifier.Settings["url"] = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// ControllerConfig builds the queue controller configuration.
func (c *Config) ControllerConfig() queue.Config {
	return queue.Config{
		DefaultVolume:  c.Playback.DefaultVolume,
		StayDuration:   time.Duration(c.Queue.StaySeconds) * time.Second,
		PruneDelay:     time.Duration(c.Playback.PruneDelayMs) * time.Millisecond,
		ResolveRetries: c.Queue.ResolveRetries,
		ResolveBackoff: time.Duration(c.Queue.ResolveBackoffMs) * time.Millisecond,
		RejoinCeiling:  c.Voice.RejoinMaxAttempts,
		RejoinBackoff:  time.Duration(c.Voice.RejoinBackoffSec) * time.Second,
		ReadyTimeout:   time.Duration(c.Voice.ReadyTimeoutSec) * time.Second,
	}
}
