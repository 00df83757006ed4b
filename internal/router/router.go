package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Router parses raw frames and dispatches them to one consumer callback.
type Router struct {
	logger *slog.Logger

	mu      sync.RWMutex
	handler Handler

	statsMu     sync.Mutex
	received    int64
	dispatched  int64
	parseErrors int64
	dropped     int64
}

// New creates a Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger}
}

// SetHandler registers the consumer callback, replacing any previous one.
func (r *Router) SetHandler(h Handler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Route parses a raw frame and dispatches it. Malformed frames are
// logged and dropped; they never affect the connection. The returned
// error reports a parse failure and is informational only.
func (r *Router) Route(data []byte, receivedAt time.Time) error {
	r.statsMu.Lock()
	r.received++
	r.statsMu.Unlock()

	msg, err := Parse(data, receivedAt)
	if err != nil {
		r.logger.Warn("dropping malformed frame", "error", err)
		r.statsMu.Lock()
		r.parseErrors++
		r.statsMu.Unlock()
		return err
	}

	r.mu.RLock()
	handler := r.handler
	r.mu.RUnlock()

	if handler == nil {
		r.statsMu.Lock()
		r.dropped++
		r.statsMu.Unlock()
		return nil
	}

	handler(msg)

	r.statsMu.Lock()
	r.dispatched++
	r.statsMu.Unlock()
	return nil
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return Stats{
		FramesReceived: r.received,
		Dispatched:     r.dispatched,
		ParseErrors:    r.parseErrors,
		Dropped:        r.dropped,
	}
}

// Parse normalizes one wire frame. The payload lives under "data" or an
// entity-specific "<entity>_data" key; "data" wins when both appear.
func Parse(data []byte, receivedAt time.Time) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("parse frame: %w", err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return Message{}, ErrNoDiscriminator
	}
	var msgType string
	if err := json.Unmarshal(rawType, &msgType); err != nil || msgType == "" {
		return Message{}, ErrNoDiscriminator
	}

	payload, ok := fields["data"]
	if !ok {
		// Deterministic pick when several *_data keys are present.
		keys := make([]string, 0, len(fields))
		for k := range fields {
			if strings.HasSuffix(k, "_data") {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			payload = fields[keys[0]]
		}
	}

	var timestamp string
	if rawTS, ok := fields["timestamp"]; ok {
		json.Unmarshal(rawTS, &timestamp)
	}

	return Message{
		Type:       msgType,
		Data:       payload,
		Timestamp:  timestamp,
		ReceivedAt: receivedAt,
	}, nil
}
