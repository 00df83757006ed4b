package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Push is a single push-style connection attempt to one endpoint.
type Push interface {
	// Open establishes the connection. The caller bounds the attempt via ctx.
	Open(ctx context.Context) error

	// Close shuts the connection down deliberately (close code 1000).
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Frames returns the channel of received frames.
	Frames() <-chan Frame

	// Closed returns a channel delivering the single close event for this
	// connection. Nothing is ever delivered before Open succeeds.
	Closed() <-chan CloseEvent
}

// Factory builds a fresh Push for an endpoint. Injected so the feed
// manager and probe can be tested without a network, and so the probe
// never shares transport instances with a live manager.
type Factory func(endpoint string) Push

// NewPush creates a WebSocket-backed Push.
func NewPush(cfg PushConfig, logger *slog.Logger) Push {
	if logger == nil {
		logger = slog.Default()
	}
	return &push{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		closed: make(chan CloseEvent, 1),
		done:   make(chan struct{}),
	}
}

// push implements Push over gorilla/websocket.
type push struct {
	cfg    PushConfig
	logger *slog.Logger

	conn *websocket.Conn

	frames chan Frame
	closed chan CloseEvent
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	emitOnce sync.Once

	mu         sync.RWMutex
	connected  bool
	shutdown   bool
	lastPingAt time.Time
}

func (p *push) Open(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return ErrAlreadyClosed
	}
	p.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, p.cfg.URL, nil)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	p.conn = conn
	p.connected = true
	p.lastPingAt = time.Now()
	p.mu.Unlock()

	// Server-initiated pings refresh the staleness clock.
	conn.SetPingHandler(func(data string) error {
		p.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		p.touch()
		return nil
	})

	go p.readLoop()
	go p.heartbeatLoop()

	p.logger.Debug("push channel opened", "url", p.cfg.URL)
	return nil
}

func (p *push) Close() error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	wasConnected := p.connected
	p.connected = false
	conn := p.conn
	p.mu.Unlock()

	close(p.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err := conn.Close()
		if wasConnected {
			p.emit(CloseEvent{Code: websocket.CloseNormalClosure})
		}
		return err
	}
	return nil
}

func (p *push) Send(data []byte) error {
	p.mu.RLock()
	if !p.connected {
		p.mu.RUnlock()
		return ErrNotConnected
	}
	p.mu.RUnlock()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *push) Frames() <-chan Frame {
	return p.frames
}

func (p *push) Closed() <-chan CloseEvent {
	return p.closed
}

func (p *push) touch() {
	p.mu.Lock()
	p.lastPingAt = time.Now()
	p.mu.Unlock()
}

// emit delivers the single close event for this connection.
func (p *push) emit(ev CloseEvent) {
	p.emitOnce.Do(func() {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		p.closed <- ev
	})
}

// readLoop reads frames until the connection ends, then emits the close
// event with the observed close code.
func (p *push) readLoop() {
	for {
		select {
		case <-p.done:
			return
		default:
		}

		_, data, err := p.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// A read error racing a local Close is still a deliberate
			// shutdown; Close emits its own event.
			select {
			case <-p.done:
				return
			default:
			}

			code := CodeNoStatus
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			p.emit(CloseEvent{Code: code, Err: err})
			return
		}

		select {
		case p.frames <- Frame{Data: data, ReceivedAt: receivedAt}:
		case <-p.done:
			return
		default:
			p.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// heartbeatLoop sends keepalive pings and tears the connection down when
// the peer goes silent past PingTimeout.
func (p *push) heartbeatLoop() {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.mu.RLock()
			conn := p.conn
			lastPing := p.lastPingAt
			p.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(p.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					p.logger.Debug("failed to send ping", "error", err)
				}
			}

			if time.Since(lastPing) > p.cfg.PingTimeout {
				p.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", p.cfg.PingTimeout,
				)
				p.emit(CloseEvent{Code: websocket.CloseAbnormalClosure, Err: ErrStaleConnection})
				p.conn.Close()
				return
			}
		}
	}
}
