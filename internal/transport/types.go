package transport

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrPullRunning     = errors.New("pull transport already running")
)

// Frame is one raw payload delivered by a transport, push or pull.
type Frame struct {
	Data       []byte    // Raw frame bytes
	ReceivedAt time.Time // Local timestamp when the frame arrived
}

// CloseEvent describes how a push connection ended. Emitted at most once
// per connection.
type CloseEvent struct {
	Code int   // WebSocket close code; CodeNoStatus if none was received
	Err  error // Underlying error, nil for a clean local close
}

// CodeNoStatus marks a connection that terminated without a close frame
// (abrupt network-level termination).
const CodeNoStatus = websocket.CloseNoStatusReceived

// Deliberate reports whether the closure was a normal shutdown: close
// code 1000 or an explicit local Close. Anything else is retriable.
func (e CloseEvent) Deliberate() bool {
	return e.Code == websocket.CloseNormalClosure
}

// PushConfig configures a single push connection.
type PushConfig struct {
	URL          string        // Endpoint address (ws:// or wss://)
	WriteTimeout time.Duration // Write deadline for sends
	PingInterval time.Duration // Keepalive ping interval
	PingTimeout  time.Duration // Max time without ping/pong before the connection is stale
	BufferSize   int           // Frame channel buffer size
}

// DefaultPushConfig returns sensible defaults.
func DefaultPushConfig(url string) PushConfig {
	return PushConfig{
		URL:          url,
		WriteTimeout: 5 * time.Second,
		PingInterval: 15 * time.Second,
		PingTimeout:  60 * time.Second,
		BufferSize:   256,
	}
}
