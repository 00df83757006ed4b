package router

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNoDiscriminator = errors.New("frame missing type discriminator")
)

// Message is a normalized feed update, immutable once dispatched.
type Message struct {
	Type       string          // Discriminator, e.g. "earthquake_update"
	Data       json.RawMessage // Payload; interpretation belongs to the consumer
	Timestamp  string          // Wire timestamp, empty when the frame carried none
	ReceivedAt time.Time       // Local timestamp when the frame arrived
}

// Handler consumes dispatched messages. Exactly one handler is
// registered per router; consumers switch on Message.Type.
type Handler func(Message)

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived int64
	Dispatched     int64
	ParseErrors    int64
	Dropped        int64 // Valid frames received before a handler was registered
}
