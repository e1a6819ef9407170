// Package hub fans dashboard events out to websocket clients.
// Slow clients are dropped so a broadcast never blocks the sender.
package hub

import (
	"encoding/json"
	"time"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded event
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, e.g. a JPEG preview frame
	BinaryMessage
)

// Message is one payload queued for every client.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Event is the JSON envelope sent on the dashboard sockets.
type Event struct {
	Kind string    `json:"kind"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// NewEvent encodes an event envelope.
func NewEvent(kind string, data any) (Message, error) {
	b, err := json.Marshal(Event{Kind: kind, Time: time.Now(), Data: data})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(b), nil
}
