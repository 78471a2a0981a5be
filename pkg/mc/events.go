package mc

import (
	"fmt"
	"io"
)

// EventID identifies a pending model-checker event.
type EventID int

// DeliveryOptions describe the network guarantees attached to one in-flight
// message.
type DeliveryOptions struct {
	// Guaranteed marks reliable delivery: the message arrives within
	// MaxDelay of its send time, and timers on the destination scheduled
	// beyond that deadline may not fire before it is consumed.
	Guaranteed bool
	// MaxDelay bounds delivery time for guaranteed messages.
	MaxDelay float64
	// CanDrop permits exploring a branch where the message is lost.
	CanDrop bool
	// CanDuplicate permits exploring a branch where the message arrives twice.
	CanDuplicate bool
	// CanCorrupt permits exploring a branch where the payload is degraded.
	CanCorrupt bool
}

// Event is a pending model-checker event: a message awaiting delivery or a
// timer awaiting its fire time.
type Event interface {
	// Proc returns the node the event belongs to (the destination for
	// messages, the owner for timers).
	Proc() string
	// hashInto writes a stable fingerprint of the event.
	hashInto(w io.Writer)
}

// MessageReceived is a message in flight towards Dst.
type MessageReceived struct {
	Msg     Message
	Src     string
	Dst     string
	Options DeliveryOptions
}

func (e MessageReceived) Proc() string { return e.Dst }

func (e MessageReceived) hashInto(w io.Writer) {
	fmt.Fprintf(w, "msg|%s|%s|%s|%s|%v|%g|%v|%v|%v",
		e.Src, e.Dst, e.Msg.Type, e.Msg.Data,
		e.Options.Guaranteed, e.Options.MaxDelay,
		e.Options.CanDrop, e.Options.CanDuplicate, e.Options.CanCorrupt)
}

// TimerFired is a pending timer on Proc scheduled Duration after the
// node's current local time.
type TimerFired struct {
	Process  string
	Timer    string
	Duration float64
}

func (e TimerFired) Proc() string { return e.Process }

func (e TimerFired) hashInto(w io.Writer) {
	fmt.Fprintf(w, "timer|%s|%s|%g", e.Process, e.Timer, e.Duration)
}
