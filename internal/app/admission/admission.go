// Package admission provides the check chain run against tracks before
// they enter a session's queue.
package admission

import (
	"context"

	"voxbox/internal/domain/track"
)

// Result represents the outcome of an admission check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "duration_limit_exceeded"
	Track    track.Track
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Check is the interface for admission checks.
type Check interface {
	// Name returns the check name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this check can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the check configuration.
	ValidateConfig(settings map[string]any) error
	// Check evaluates a candidate track against the queue it would join.
	Check(ctx context.Context, candidate track.Track, queued []track.Track) Result
}

// registry holds registered check factories.
var registry = make(map[string]func() Check)

// Register registers a check factory.
func Register(name string, factory func() Check) {
	registry[name] = factory
}

// GetRegistered returns all registered check factories.
func GetRegistered() map[string]func() Check {
	return registry
}
