package mc

import (
	"encoding/json"
	"fmt"
)

// Message is the unit of communication between model-checked processes.
// Type selects the handler logic; Data carries a JSON document.
type Message struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// NewMessage creates a message with a JSON-serialized payload.
func NewMessage(msgType string, payload any) Message {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("mc: unserializable message payload for type %q: %v", msgType, err))
	}
	return Message{Type: msgType, Data: string(data)}
}

// RawMessage creates a message with a preserialized body.
func RawMessage(msgType, data string) Message {
	return Message{Type: msgType, Data: data}
}

// Decode unmarshals the message body into out.
func (m Message) Decode(out any) error {
	return json.Unmarshal([]byte(m.Data), out)
}

// corrupted returns the message with its body degraded, modeling in-flight
// corruption of the payload.
func (m Message) corrupted() Message {
	return Message{Type: m.Type, Data: "{}"}
}
