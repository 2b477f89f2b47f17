// Package hub fans dashboard updates (status snapshots, log lines and
// camera previews) out to websocket clients.
package hub

import "github.com/gofiber/websocket/v2"

// Kind selects the websocket frame a Message is written as.
type Kind int

const (
	// JSONMessage is written as a text frame.
	JSONMessage Kind = iota
	// BinaryMessage is written as a binary frame, e.g. a JPEG preview.
	BinaryMessage
)

// Message is one payload queued for delivery.
type Message struct {
	Type Kind
	Data []byte
}

// NewJSONMessage wraps already encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

func (m Message) frameType() int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
