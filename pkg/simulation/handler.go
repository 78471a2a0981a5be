package simulation

// Handler consumes events for one component. A handler is bound to exactly
// one component id via AddHandler; a component without a handler drops
// incoming events, which are logged as undelivered.
type Handler interface {
	On(event Event)
}

// CancelPolicy selects which pending events are cancelled when a handler
// is removed from the simulation.
type CancelPolicy int

const (
	// CancelNone preserves all pending events
	CancelNone CancelPolicy = iota
	// CancelIncoming cancels pending events destined for the component
	CancelIncoming
	// CancelOutgoing cancels pending events emitted by the component
	CancelOutgoing
	// CancelAll cancels pending events in both directions
	CancelAll
)
