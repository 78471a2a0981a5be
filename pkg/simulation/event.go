package simulation

import (
	"encoding/json"
	"reflect"
)

// ComponentID identifies a registered simulation component. Ids are dense
// integers assigned at registration and stable for the simulation's lifetime.
type ComponentID int32

// NoComponent marks the absence of a component, e.g. the owner of a detached task.
const NoComponent ComponentID = -1

// EventID identifies an emitted event. Ids are assigned monotonically at
// emission, which makes them the tiebreak for events with equal timestamps.
type EventID uint64

// EventKey is a correlation key extracted from an event payload by a
// registered key getter. It discriminates concurrent awaits on the same
// payload type.
type EventKey uint64

// Event is a timestamped message addressed to a component. Events are
// immutable once queued; the payload is carried opaquely and must not be
// mutated after emission.
type Event struct {
	ID   EventID
	Time float64
	Src  ComponentID
	Dst  ComponentID
	Data any
}

// TypeTag returns the stable runtime type tag of an event payload.
// Pointer payloads are tagged with their element type so that values and
// pointers of the same type share a tag.
func TypeTag(data any) string {
	if data == nil {
		return "<nil>"
	}
	t := reflect.TypeOf(data)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// payloadType returns the reflect type used for promise matching.
func payloadType(data any) reflect.Type {
	return reflect.TypeOf(data)
}

// marshalPayload serializes an event payload for the trace. Serialization
// failures are reported inline rather than aborting the simulation.
func marshalPayload(data any) json.RawMessage {
	b, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage(`{"error":"unserializable payload"}`)
	}
	return b
}
