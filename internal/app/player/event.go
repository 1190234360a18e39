package player

// StateChange is one player state transition. Old and New are never equal;
// same-state commands do not emit an event.
type StateChange struct {
	Old State
	New State
}
