// Package voice defines the port to the streaming voice transport.
//
// The transport implementation (gateway signaling, UDP media, encryption)
// lives outside this module; the queue controller only observes its state
// stream and requests rejoin or destruction.
package voice

import "context"

// State represents the transport connection state.
type State int

const (
	StateSignalling   State = iota // Negotiating with the signaling server
	StateConnecting                // Media channel being established
	StateReady                     // Connected, audio can flow
	StateDisconnected              // Connection lost, may be recoverable
	StateDestroyed                 // Torn down, terminal
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateSignalling:
		return "signalling"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// CloseCodeSessionInvalid is the websocket close code the gateway sends
// when the session was forcibly invalidated (moved or disconnected by an
// operator). Rejoining a session closed with this code is pointless.
const CloseCodeSessionInvalid = 4014

// StateChange is one transition observed on the transport's state stream.
// Code carries the websocket close code for disconnects, zero otherwise.
type StateChange struct {
	Old  State
	New  State
	Code int
}

// Transport is the controller-facing surface of a voice connection.
// Implementations must deliver state changes in emission order.
type Transport interface {
	State() State
	// RejoinAttempts reports how many rejoins were tried since the last
	// successful connect.
	RejoinAttempts() int
	Rejoin() error
	Destroy() error
	// AwaitReady blocks until the transport reaches StateReady or the
	// context expires.
	AwaitReady(ctx context.Context) error
	Events() <-chan StateChange
}
