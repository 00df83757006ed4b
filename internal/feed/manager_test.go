package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Epic-SX/Disaster-info-System-sub000/internal/router"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/transport"
)

// fakePush is an in-memory Push for driving the manager state machine.
type fakePush struct {
	endpoint string
	openErr  error
	openGate chan struct{} // when non-nil, Open blocks until closed

	frames chan transport.Frame
	events chan transport.CloseEvent

	mu     sync.Mutex
	opened bool
	closed bool
	sent   [][]byte
}

func newFakePush(endpoint string) *fakePush {
	return &fakePush{
		endpoint: endpoint,
		frames:   make(chan transport.Frame, 16),
		events:   make(chan transport.CloseEvent, 1),
	}
}

func (f *fakePush) Open(ctx context.Context) error {
	if f.openGate != nil {
		select {
		case <-f.openGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.openErr != nil {
		return f.openErr
	}
	f.mu.Lock()
	f.opened = true
	f.mu.Unlock()
	return nil
}

func (f *fakePush) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakePush) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.opened || f.closed {
		return transport.ErrNotConnected
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakePush) Frames() <-chan transport.Frame      { return f.frames }
func (f *fakePush) Closed() <-chan transport.CloseEvent { return f.events }

func (f *fakePush) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePush) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeDialer hands out fakePush instances and counts constructions.
type fakeDialer struct {
	mu      sync.Mutex
	openErr error
	gate    chan struct{}
	pushes  []*fakePush
}

func (d *fakeDialer) dial(endpoint string) transport.Push {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := newFakePush(endpoint)
	p.openErr = d.openErr
	p.openGate = d.gate
	d.pushes = append(d.pushes, p)
	return p
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pushes)
}

func (d *fakeDialer) at(i int) *fakePush {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pushes[i]
}

func (d *fakeDialer) endpoints() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	eps := make([]string, len(d.pushes))
	for i, p := range d.pushes {
		eps[i] = p.endpoint
	}
	return eps
}

// recorder collects dispatched messages.
type recorder struct {
	mu   sync.Mutex
	msgs []router.Message
}

func (r *recorder) handle(msg router.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) last() router.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1]
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(opts)
	require.NoError(t, err)
	t.Cleanup(m.Disconnect)
	return m
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestNewManager_RequiresEndpoints(t *testing.T) {
	_, err := NewManager(Options{Name: "empty"})
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestManager_OpensFirstEndpoint(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, Options{
		Name:      "earthquake",
		Endpoints: []string{"ws://a", "ws://b"},
		Dial:      d.dial,
	})

	m.Connect()
	eventually(t, func() bool { return m.State() == StateOpen }, "manager should open")

	assert.Equal(t, 1, d.count())
	assert.Equal(t, "ws://a", m.CurrentEndpoint())
	assert.Equal(t, TransportPush, m.Transport())
	assert.Empty(t, m.LastError())
}

func TestManager_ConnectIdempotentWhileOpen(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, Options{
		Name:      "wind",
		Endpoints: []string{"ws://a"},
		Dial:      d.dial,
	})

	m.Connect()
	eventually(t, func() bool { return m.State() == StateOpen }, "manager should open")

	// A second Connect must not create a second transport instance.
	m.Connect()
	m.Connect()
	assert.Equal(t, 1, d.count())
}

func TestManager_FullCycleCountsOneFailure(t *testing.T) {
	fc := clockwork.NewFakeClock()
	d := &fakeDialer{openErr: errors.New("connection refused")}
	m := newTestManager(t, Options{
		Name:      "earthquake",
		Endpoints: []string{"ws://a", "ws://b", "ws://c"},
		Dial:      d.dial,
		Clock:     fc,
	})

	m.Connect()

	// Endpoints are attempted in order, one inter-endpoint delay apart.
	for i := 1; i < 3; i++ {
		fc.BlockUntil(1)
		require.Equal(t, i, d.count())
		require.Equal(t, 0, m.FailedCycles())
		fc.Advance(DefaultEndpointDelay)
	}

	// Exactly N attempts for N endpoints, then the cycle counter bumps.
	fc.BlockUntil(1)
	assert.Equal(t, 3, d.count())
	assert.Equal(t, 1, m.FailedCycles())
	assert.Equal(t, []string{"ws://a", "ws://b", "ws://c"}, d.endpoints())
}

func TestManager_BreakerDisablesAfterThreshold(t *testing.T) {
	fc := clockwork.NewFakeClock()
	d := &fakeDialer{openErr: errors.New("connection refused")}
	m := newTestManager(t, Options{
		Name:             "chat",
		Endpoints:        []string{"ws://a", "ws://b"},
		Dial:             d.dial,
		Clock:            fc,
		BreakerThreshold: 3,
	})

	m.Connect()

	// Drive three full cycles of two endpoints each.
	for cycle := 0; cycle < 3; cycle++ {
		fc.BlockUntil(1)
		fc.Advance(DefaultEndpointDelay)
		if cycle < 2 {
			fc.BlockUntil(1)
			fc.Advance(DefaultCycleDelay)
		}
	}

	eventually(t, func() bool { return m.State() == StateDisabled }, "breaker should disable the feed")
	require.Equal(t, 6, d.count())
	assert.Equal(t, 3, m.FailedCycles())
	assert.NotEmpty(t, m.LastError())

	// Connect without Reset stays a no-op: no new transport attempts.
	m.Connect()
	assert.Equal(t, 6, d.count())
	assert.Equal(t, StateDisabled, m.State())

	// Manual reset re-attempts from the primary endpoint.
	m.Reset()
	m.Connect()
	eventually(t, func() bool { return d.count() == 7 }, "reset+connect should dial again")
	assert.Equal(t, "ws://a", d.at(6).endpoint)
}

func TestManager_DisconnectDuringConnecting(t *testing.T) {
	gate := make(chan struct{})
	d := &fakeDialer{gate: gate}
	m := newTestManager(t, Options{
		Name:      "camera",
		Endpoints: []string{"ws://a"},
		Dial:      d.dial,
	})

	m.Connect()
	eventually(t, func() bool { return d.count() == 1 }, "dial should start")
	assert.Equal(t, StateConnecting, m.State())

	m.Disconnect()
	assert.Equal(t, StateIdle, m.State())

	// The open completes after Disconnect returned; the stale callback
	// must not flip the state, and the late connection gets closed.
	close(gate)
	eventually(t, func() bool { return d.at(0).isClosed() }, "late connection should be closed")
	assert.Equal(t, StateIdle, m.State())
}

func TestManager_PullFallbackAfterExhaustedCycle(t *testing.T) {
	fc := clockwork.NewFakeClock()
	d := &fakeDialer{openErr: errors.New("connect timeout")}
	rec := &recorder{}

	var fetches sync.WaitGroup
	fetches.Add(1)
	var once sync.Once
	fetch := func(ctx context.Context) ([]byte, error) {
		once.Do(fetches.Done)
		return []byte(`{"type":"earthquake_update","earthquake_data":{"magnitude":5.5},"timestamp":"2026-08-29T10:00:00Z"}`), nil
	}

	m := newTestManager(t, Options{
		Name:      "earthquake",
		Endpoints: []string{"ws://a", "ws://b"},
		Dial:      d.dial,
		Fetch:     fetch,
		Clock:     fc,
	})
	m.OnMessage(rec.handle)

	m.Connect()
	fc.BlockUntil(1)
	fc.Advance(DefaultEndpointDelay)

	// Both endpoints failed: the pull fallback engages and the first
	// fetch delivers through the same callback path immediately.
	eventually(t, func() bool { return rec.count() >= 1 }, "pull fallback should deliver")

	msg := rec.last()
	assert.Equal(t, "earthquake_update", msg.Type)
	assert.JSONEq(t, `{"magnitude":5.5}`, string(msg.Data))

	// Logically live via pull, not closed.
	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, TransportPull, m.Transport())
	fetches.Wait()
}

func TestManager_PullStopsWhenPushRecovers(t *testing.T) {
	fc := clockwork.NewFakeClock()
	d := &fakeDialer{openErr: errors.New("connection refused")}
	rec := &recorder{}
	fetch := func(ctx context.Context) ([]byte, error) {
		return []byte(`{"type":"wind_data_update","wind_data":{}}`), nil
	}

	m := newTestManager(t, Options{
		Name:      "wind",
		Endpoints: []string{"ws://a"},
		Dial:      d.dial,
		Fetch:     fetch,
		Clock:     fc,
	})
	m.OnMessage(rec.handle)

	m.Connect()
	eventually(t, func() bool { return m.Transport() == TransportPull }, "fallback should engage")

	// Let the next push cycle succeed.
	d.mu.Lock()
	d.openErr = nil
	d.mu.Unlock()

	fc.BlockUntil(2) // cycle retry timer + pull ticker
	fc.Advance(DefaultCycleDelay)

	eventually(t, func() bool { return m.Transport() == TransportPush }, "push should recover")
	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, 0, m.FailedCycles())
}

func TestManager_AbnormalCloseAdvancesEndpoint(t *testing.T) {
	fc := clockwork.NewFakeClock()
	d := &fakeDialer{}
	m := newTestManager(t, Options{
		Name:      "analytics",
		Endpoints: []string{"ws://a", "ws://b"},
		Dial:      d.dial,
		Clock:     fc,
	})

	m.Connect()
	eventually(t, func() bool { return m.State() == StateOpen }, "manager should open")

	d.at(0).events <- transport.CloseEvent{
		Code: websocket.CloseAbnormalClosure,
		Err:  errors.New("abnormal closure"),
	}

	fc.BlockUntil(1)
	fc.Advance(DefaultEndpointDelay)

	eventually(t, func() bool { return d.count() == 2 }, "next endpoint should be attempted")
	assert.Equal(t, "ws://b", d.at(1).endpoint)
	eventually(t, func() bool { return m.State() == StateOpen }, "failover should reopen")
	assert.Equal(t, "ws://b", m.CurrentEndpoint())
}

func TestManager_ClosesDeadTransportBeforeRetry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	d := &fakeDialer{}
	m := newTestManager(t, Options{
		Name:      "camera",
		Endpoints: []string{"ws://a", "ws://b"},
		Dial:      d.dial,
		Clock:     fc,
	})

	m.Connect()
	eventually(t, func() bool { return m.State() == StateOpen }, "manager should open")

	d.at(0).events <- transport.CloseEvent{
		Code: websocket.CloseGoingAway,
		Err:  errors.New("going away"),
	}

	// The dead transport is released as soon as the closure is handled;
	// its heartbeat must not linger until stale detection.
	eventually(t, func() bool { return d.at(0).isClosed() }, "dead transport should be closed")

	fc.BlockUntil(1)
	fc.Advance(DefaultEndpointDelay)
	eventually(t, func() bool { return d.count() == 2 }, "failover should continue")
}

func TestManager_DeliberateCloseDoesNotRetry(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, Options{
		Name:      "chat",
		Endpoints: []string{"ws://a", "ws://b"},
		Dial:      d.dial,
	})

	m.Connect()
	eventually(t, func() bool { return m.State() == StateOpen }, "manager should open")

	d.at(0).events <- transport.CloseEvent{Code: websocket.CloseNormalClosure}

	eventually(t, func() bool { return m.State() == StateIdle }, "normal close should settle idle")
	eventually(t, func() bool { return d.at(0).isClosed() }, "transport resources should be released")
	assert.Equal(t, 1, d.count())
}

func TestManager_MalformedFrameDroppedWellFormedDelivered(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	m := newTestManager(t, Options{
		Name:      "earthquake",
		Endpoints: []string{"ws://a"},
		Dial:      d.dial,
	})
	m.OnMessage(rec.handle)

	m.Connect()
	eventually(t, func() bool { return m.State() == StateOpen }, "manager should open")

	p := d.at(0)
	p.frames <- transport.Frame{Data: []byte(`{not json`), ReceivedAt: time.Now()}
	p.frames <- transport.Frame{Data: []byte(`{"type":"chat_message","data":{"text":"hi"}}`), ReceivedAt: time.Now()}

	eventually(t, func() bool { return rec.count() == 1 }, "only the well-formed frame dispatches")
	assert.Equal(t, "chat_message", rec.last().Type)
	assert.Equal(t, StateOpen, m.State(), "parse errors never affect the connection")
}

func TestManager_SendOnlyWhileOpen(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, Options{
		Name:      "chat",
		Endpoints: []string{"ws://a"},
		Dial:      d.dial,
	})

	// Dropped silently before connect.
	m.Send([]byte(`{"type":"ping"}`))

	m.Connect()
	eventually(t, func() bool { return m.State() == StateOpen }, "manager should open")

	m.Send([]byte(`{"type":"ping"}`))
	eventually(t, func() bool { return d.at(0).sentCount() == 1 }, "send should reach the transport")

	m.Disconnect()
	m.Send([]byte(`{"type":"ping"}`))
	assert.Equal(t, 1, d.at(0).sentCount())
}

func TestManager_DisconnectIdempotent(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, Options{
		Name:      "wind",
		Endpoints: []string{"ws://a"},
		Dial:      d.dial,
	})

	m.Connect()
	eventually(t, func() bool { return m.State() == StateOpen }, "manager should open")

	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, TransportNone, m.Transport())

	// A fresh connect starts over at the primary endpoint.
	m.Connect()
	eventually(t, func() bool { return d.count() == 2 }, "reconnect should dial")
	assert.Equal(t, "ws://a", d.at(1).endpoint)
}
