package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Epic-SX/Disaster-info-System-sub000/internal/metrics"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/router"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/transport"
)

// Manager keeps one logical feed alive: push attempts across the
// endpoint set under the reconnect policy, pull fallback after an
// exhausted cycle, fail-stop once the breaker trips.
type Manager struct {
	id      uuid.UUID
	opts    Options
	clk     clockwork.Clock
	logger  *slog.Logger
	met     *metrics.Metrics
	rtr     *router.Router
	policy  *Policy
	breaker *Breaker

	mu             sync.Mutex
	gen            uint64 // generation token; bumped by Connect and Disconnect
	phase          State
	index          int // endpoint index for the current cycle
	current        string
	push           transport.Push
	pull           *transport.Pull
	pulling        bool
	lastErr        string
	retry          clockwork.Timer
	attemptIdx     int
	attemptStarted time.Time
}

// NewManager creates a Manager for one feed. The endpoint set must not
// be empty.
func NewManager(opts Options) (*Manager, error) {
	if len(opts.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	opts = opts.withDefaults()

	id := uuid.New()
	logger := opts.Logger.With("feed", opts.Name, "manager_id", id.String()[:8])

	m := &Manager{
		id:      id,
		opts:    opts,
		clk:     opts.Clock,
		logger:  logger,
		met:     opts.Metrics,
		rtr:     router.New(logger),
		policy:  NewPolicy(opts.EndpointDelay, opts.CycleDelay),
		breaker: NewBreaker(opts.BreakerThreshold),
		phase:   StateIdle,
	}
	return m, nil
}

// ID returns the manager's instance ID, used for log correlation.
func (m *Manager) ID() uuid.UUID { return m.id }

// Name returns the logical feed name.
func (m *Manager) Name() string { return m.opts.Name }

// OnMessage registers the single consumer callback. Messages from push
// and pull arrive through the same path.
func (m *Manager) OnMessage(h router.Handler) {
	m.rtr.SetHandler(h)
}

// Connect starts driving the feed. Idempotent: a manager that is
// already connecting or open is left alone, and a tripped breaker makes
// this a no-op until Reset is called.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.phase == StateConnecting || m.phase == StateOpen {
		m.mu.Unlock()
		return
	}
	if m.breaker.Tripped() {
		m.setPhaseLocked(StateDisabled)
		m.mu.Unlock()
		m.logger.Warn("connect ignored: breaker tripped, reset required")
		return
	}

	m.gen++
	gen := m.gen
	m.stopRetryLocked()
	m.policy.Reset()
	m.setPhaseLocked(StateConnecting)
	m.mu.Unlock()

	m.attempt(gen)
}

// Disconnect tears the feed down: invalidates the generation, cancels
// the pending retry timer, closes the push channel, and stops the pull
// fallback before returning. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopRetryLocked()
	stopPull := m.detachPullLocked()
	p := m.push
	m.push = nil
	m.index = 0
	m.policy.Reset()
	m.lastErr = ""
	closing := m.phase == StateOpen || m.phase == StateConnecting || m.phase == StateClosed
	if closing {
		m.setPhaseLocked(StateClosing)
	}
	m.mu.Unlock()

	if p != nil {
		p.Close()
	}
	if stopPull != nil {
		stopPull.Stop()
	}

	m.mu.Lock()
	if m.phase == StateClosing {
		m.setPhaseLocked(StateIdle)
	}
	m.mu.Unlock()
}

// Reset manually re-enables a disabled manager. It does not reconnect;
// pair it with Connect.
func (m *Manager) Reset() {
	m.breaker.Reset()
	m.mu.Lock()
	if m.phase == StateDisabled {
		m.setPhaseLocked(StateIdle)
	}
	m.lastErr = ""
	m.mu.Unlock()
}

// Send writes to the push channel. Only valid while Open via push;
// silently dropped otherwise, since no delivery guarantee is implied.
func (m *Manager) Send(data []byte) {
	m.mu.Lock()
	p := m.push
	ok := m.phase == StateOpen && p != nil
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := p.Send(data); err != nil {
		m.logger.Debug("send failed", "error", err)
	}
}

// State reports the current connection state. A feed kept live by the
// pull fallback reports Open: the panel is receiving data, whichever
// transport carries it.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pulling && (m.phase == StateClosed || m.phase == StateConnecting) {
		return StateOpen
	}
	return m.phase
}

// Transport reports which transport is currently delivering.
func (m *Manager) Transport() TransportKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == StateOpen && m.push != nil {
		return TransportPush
	}
	if m.pulling {
		return TransportPull
	}
	return TransportNone
}

// CurrentEndpoint returns the endpoint of the live or most recent
// attempt.
func (m *Manager) CurrentEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// LastError returns the most recent failure text, for the panel's
// disabled/retry affordance. Empty while healthy.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// FailedCycles returns the breaker's consecutive failed cycle count.
func (m *Manager) FailedCycles() int {
	return m.breaker.ConsecutiveFailedCycles()
}

// attempt opens a push connection to the endpoint at the current cycle
// index. Runs the blocking dial off the caller's goroutine.
func (m *Manager) attempt(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	idx := m.index
	ep := m.opts.Endpoints[idx]
	p := m.opts.Dial(ep)
	m.push = p
	m.current = ep
	m.attemptIdx = idx
	m.attemptStarted = m.clk.Now()
	started := m.attemptStarted
	m.mu.Unlock()

	if m.met != nil {
		m.met.ConnectAttempts.WithLabelValues(m.opts.Name, ep).Inc()
	}
	m.logger.Info("connecting", "endpoint", ep, "endpoint_index", idx)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
		defer cancel()

		if err := p.Open(ctx); err != nil {
			outcome := OutcomeDialFailed
			if ctx.Err() == context.DeadlineExceeded {
				outcome = OutcomeConnectTimeout
			}
			m.onAttemptFailed(gen, p, AttemptRecord{
				EndpointIndex: idx,
				StartedAt:     started,
				Outcome:       outcome,
			}, err)
			return
		}
		m.onOpened(gen, p, ep)
	}()
}

// onOpened handles a successful push open. A stale generation means
// Disconnect or a newer Connect raced the dial; the late connection is
// closed and nothing else happens.
func (m *Manager) onOpened(gen uint64, p transport.Push, ep string) {
	m.mu.Lock()
	if gen != m.gen || m.push != p {
		m.mu.Unlock()
		p.Close()
		return
	}
	m.setPhaseLocked(StateOpen)
	m.current = ep
	m.lastErr = ""
	m.policy.Reset()
	m.breaker.RecordSuccess()
	m.stopRetryLocked()
	stopPull := m.detachPullLocked()
	m.mu.Unlock()

	if stopPull != nil {
		stopPull.Stop()
	}
	m.logger.Info("push channel open", "endpoint", ep)

	go m.readLoop(gen, p)
}

// readLoop forwards frames from an open push connection until it ends.
func (m *Manager) readLoop(gen uint64, p transport.Push) {
	for {
		select {
		case f, ok := <-p.Frames():
			if !ok {
				return
			}
			m.mu.Lock()
			live := gen == m.gen && m.push == p
			m.mu.Unlock()
			if live {
				m.route(f, TransportPush)
			}
		case ev := <-p.Closed():
			m.onClosed(gen, p, ev)
			return
		}
	}
}

// onClosed handles the end of an open push connection.
func (m *Manager) onClosed(gen uint64, p transport.Push, ev transport.CloseEvent) {
	m.mu.Lock()
	if gen != m.gen || m.push != p {
		m.mu.Unlock()
		return
	}
	m.push = nil

	if ev.Deliberate() {
		// Normal shutdown; no retry is scheduled.
		m.setPhaseLocked(StateIdle)
		m.mu.Unlock()
		p.Close()
		m.logger.Info("push channel closed", "code", ev.Code)
		return
	}

	if ev.Err != nil {
		m.lastErr = ev.Err.Error()
	} else {
		m.lastErr = fmt.Sprintf("abnormal closure (code %d)", ev.Code)
	}
	rec := AttemptRecord{
		EndpointIndex: m.attemptIdx,
		StartedAt:     m.attemptStarted,
		Outcome:       OutcomeAbnormalClosure,
	}
	m.mu.Unlock()

	// Release the dead transport now rather than waiting for its stale
	// detection; emitOnce keeps Close from delivering a second event.
	p.Close()

	m.logger.Warn("push channel lost", "code", ev.Code, "error", ev.Err)
	m.onAttemptFailed(gen, nil, rec, ev.Err)
}

// onAttemptFailed records a failure and advances the cycle: next
// endpoint after the intra-cycle delay, or on exhaustion the breaker is
// consulted and either the pull fallback plus a delayed next cycle
// start, or the feed goes Disabled.
func (m *Manager) onAttemptFailed(gen uint64, p transport.Push, rec AttemptRecord, err error) {
	m.mu.Lock()
	if gen != m.gen || (p != nil && m.push != p) {
		m.mu.Unlock()
		return
	}
	m.push = nil
	if err != nil {
		m.lastErr = err.Error()
	}

	m.policy.Record(rec)
	d := m.policy.Next(len(m.opts.Endpoints))

	if !d.CycleExhausted {
		m.index = d.NextIndex
		m.setPhaseLocked(StateConnecting)
		m.scheduleLocked(gen, d.Delay)
		m.mu.Unlock()
		m.logger.Debug("advancing to next endpoint",
			"next_index", d.NextIndex,
			"delay", d.Delay,
			"outcome", rec.Outcome.String(),
		)
		return
	}

	// Every endpoint failed this cycle.
	m.index = 0
	m.policy.Reset()
	tripped := m.breaker.RecordCycleFailure()
	failed := m.breaker.ConsecutiveFailedCycles()

	if m.met != nil {
		m.met.CyclesExhausted.WithLabelValues(m.opts.Name).Inc()
	}

	if tripped {
		m.setPhaseLocked(StateDisabled)
		m.stopRetryLocked()
		stopPull := m.detachPullLocked()
		m.mu.Unlock()

		if m.met != nil {
			m.met.BreakerTrips.WithLabelValues(m.opts.Name).Inc()
		}
		if stopPull != nil {
			stopPull.Stop()
		}
		m.logger.Error("breaker tripped, feed disabled until manual reset",
			"failed_cycles", failed,
		)
		return
	}

	m.setPhaseLocked(StateClosed)
	m.startPullLocked()
	m.scheduleLocked(gen, d.Delay)
	m.mu.Unlock()

	m.logger.Warn("endpoint cycle exhausted",
		"failed_cycles", failed,
		"next_cycle_in", d.Delay,
	)
}

// scheduleLocked arms the single pending retry timer. The callback
// re-checks the generation, so a timer that outlives a Disconnect is a
// no-op.
func (m *Manager) scheduleLocked(gen uint64, delay time.Duration) {
	m.stopRetryLocked()
	m.retry = m.clk.AfterFunc(delay, func() {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.retry = nil
		m.setPhaseLocked(StateConnecting)
		m.mu.Unlock()
		m.attempt(gen)
	})
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// startPullLocked starts the pull fallback if one is configured and not
// already running.
func (m *Manager) startPullLocked() {
	if m.pulling || m.opts.Fetch == nil {
		return
	}

	sink := func(f transport.Frame) {
		m.mu.Lock()
		live := m.pulling
		m.mu.Unlock()
		if live {
			m.route(f, TransportPull)
		}
	}

	m.pull = transport.NewPull(transport.PullConfig{
		Interval: m.opts.PollInterval,
		Timeout:  m.opts.PollTimeout,
	}, m.opts.Fetch, sink, m.clk, m.logger)
	m.pulling = true
	if err := m.pull.Start(); err != nil {
		m.logger.Warn("pull fallback failed to start", "error", err)
	}

	if m.met != nil {
		m.met.PullActive.WithLabelValues(m.opts.Name).Set(1)
	}
	m.logger.Info("pull fallback engaged", "interval", m.opts.PollInterval)
}

// detachPullLocked clears the fallback and returns the instance so the
// caller can Stop it outside the lock (Stop waits for the fetch loop,
// which may be delivering through the sink).
func (m *Manager) detachPullLocked() *transport.Pull {
	if !m.pulling {
		return nil
	}
	m.pulling = false
	p := m.pull
	m.pull = nil
	if m.met != nil {
		m.met.PullActive.WithLabelValues(m.opts.Name).Set(0)
	}
	return p
}

// route normalizes one frame through the router.
func (m *Manager) route(f transport.Frame, kind TransportKind) {
	err := m.rtr.Route(f.Data, f.ReceivedAt)
	if m.met == nil {
		return
	}
	if err != nil {
		m.met.ParseErrors.WithLabelValues(m.opts.Name).Inc()
	} else {
		m.met.MessagesRouted.WithLabelValues(m.opts.Name, string(kind)).Inc()
	}
}

func (m *Manager) setPhaseLocked(s State) {
	m.phase = s
	if m.met != nil {
		m.met.ConnectionState.WithLabelValues(m.opts.Name).Set(float64(s))
	}
}

// RouterStats exposes the router's counters for diagnostics.
func (m *Manager) RouterStats() router.Stats {
	return m.rtr.Stats()
}
