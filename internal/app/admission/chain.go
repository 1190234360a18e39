package admission

import (
	"context"

	"github.com/cockroachdb/errors"

	"voxbox/internal/domain/track"
)

// Chain executes checks in sequence.
type Chain struct {
	checks []Check
}

// NewChain creates an empty chain. An empty chain accepts everything.
func NewChain() *Chain {
	return &Chain{
		checks: make([]Check, 0),
	}
}

// Add adds a check to the chain.
func (c *Chain) Add(check Check) {
	c.checks = append(c.checks, check)
}

// Execute runs all checks in sequence. It returns immediately when any
// check rejects the candidate.
func (c *Chain) Execute(ctx context.Context, candidate track.Track, queued []track.Track) Result {
	for _, check := range c.checks {
		result := check.Check(ctx, candidate, queued)
		if !result.Accepted {
			result.Track = candidate
			return result
		}
	}
	return Accept()
}

// Checks returns all checks in the chain.
func (c *Chain) Checks() []Check {
	return c.checks
}

// CheckConfig names one configured check and its settings.
type CheckConfig struct {
	Name     string         `yaml:"name" validate:"required"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// BuildChain instantiates a chain from config entries. Unknown check
// names and invalid settings are errors.
func BuildChain(configs []CheckConfig) (*Chain, error) {
	chain := NewChain()
	for _, cc := range configs {
		factory, ok := registry[cc.Name]
		if !ok {
			return nil, errors.Newf("unknown admission check %q", cc.Name)
		}
		check := factory()
		if err := check.ValidateConfig(cc.Settings); err != nil {
			return nil, errors.Wrapf(err, "configure admission check %q", cc.Name)
		}
		chain.Add(check)
	}
	return chain, nil
}
