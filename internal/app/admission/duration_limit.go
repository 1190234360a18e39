package admission

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"voxbox/internal/domain/track"
)

// DurationLimitConfig represents the configuration for DurationLimitCheck.
type DurationLimitConfig struct {
	MinMinutes float64 `yaml:"min_minutes" mapstructure:"min_minutes" default:"0" validate:"gte=0"`
	MaxMinutes float64 `yaml:"max_minutes" mapstructure:"max_minutes" validate:"gte=0"`
}

// DurationLimitCheck rejects tracks whose duration falls outside the
// configured bounds. Tracks with unknown duration are accepted.
type DurationLimitCheck struct {
	config *DurationLimitConfig
}

// NewDurationLimitCheck creates a new duration limit check.
func NewDurationLimitCheck() *DurationLimitCheck {
	return &DurationLimitCheck{}
}

func (c *DurationLimitCheck) Name() string {
	return "duration_limit"
}

func (c *DurationLimitCheck) Description() string {
	return "Rejects tracks shorter or longer than the configured bounds"
}

func (c *DurationLimitCheck) ReturnCodes() []string {
	return []string{"duration_limit_exceeded"}
}

func (c *DurationLimitCheck) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	// max_minutes of 0 means no upper bound
	if config.MaxMinutes > 0 && config.MinMinutes > config.MaxMinutes {
		return errors.New("min_minutes cannot be greater than max_minutes")
	}

	c.config = &config
	zlog.Info().Msgf("duration limit check config: %+v", config)
	return nil
}

func (c *DurationLimitCheck) Check(ctx context.Context, candidate track.Track, queued []track.Track) Result {
	// If config is not set, accept all tracks
	if c.config == nil {
		return Accept()
	}
	// Unknown duration: nothing to bound
	if candidate.Duration == 0 {
		return Accept()
	}

	minutes := candidate.Duration.Minutes()

	if minutes < c.config.MinMinutes {
		return Reject("duration_limit_exceeded")
	}
	if c.config.MaxMinutes > 0 && minutes > c.config.MaxMinutes {
		return Reject("duration_limit_exceeded")
	}
	return Accept()
}

func init() {
	Register("duration_limit", func() Check {
		return NewDurationLimitCheck()
	})
}
