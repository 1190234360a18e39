// Package player provides the single-slot audio player state machine.
package player

// State represents the player state.
type State int

const (
	StateIdle       State = iota // No resource loaded
	StateBuffering               // Resource accepted, stream not audible yet
	StatePlaying                 // Resource is streaming
	StatePaused                  // Paused by an explicit command
	StateAutoPaused              // Paused because the transport cannot accept audio
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateAutoPaused:
		return "autopaused"
	default:
		return "unknown"
	}
}
