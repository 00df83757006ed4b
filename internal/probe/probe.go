// Package probe implements the one-shot connection diagnostic.
//
// A probe attempts every candidate endpoint serially with its own fresh
// transport instances, so it never interferes with a live manager's
// attempts against the same endpoints.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/Epic-SX/Disaster-info-System-sub000/internal/transport"
)

// DefaultTimeout bounds each endpoint attempt.
const DefaultTimeout = 5 * time.Second

// Result is the outcome for one endpoint.
type Result struct {
	Endpoint string
	Success  bool
	Latency  time.Duration
	Err      error
}

// Probe tests endpoint reachability.
type Probe struct {
	timeout time.Duration
	dial    transport.Factory
	logger  *slog.Logger
}

// Option configures a Probe.
type Option func(*Probe)

// WithTimeout sets the per-endpoint timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithDialer sets the transport factory, for tests.
func WithDialer(f transport.Factory) Option {
	return func(p *Probe) {
		p.dial = f
	}
}

// New creates a Probe.
func New(logger *slog.Logger, opts ...Option) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Probe{
		timeout: DefaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dial == nil {
		p.dial = func(endpoint string) transport.Push {
			return transport.NewPush(transport.DefaultPushConfig(endpoint), logger)
		}
	}
	return p
}

// TestAll attempts each endpoint in order and reports per-endpoint
// success or failure. The connection is closed as soon as it opens; the
// probe only measures reachability.
func (p *Probe) TestAll(ctx context.Context, endpoints []string) []Result {
	results := make([]Result, 0, len(endpoints))

	for _, ep := range endpoints {
		results = append(results, p.testOne(ctx, ep))
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

func (p *Probe) testOne(ctx context.Context, endpoint string) Result {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn := p.dial(endpoint)
	start := time.Now()
	err := conn.Open(attemptCtx)
	latency := time.Since(start)

	if err != nil {
		p.logger.Warn("probe failed", "endpoint", endpoint, "error", err)
		return Result{Endpoint: endpoint, Latency: latency, Err: err}
	}

	conn.Close()
	p.logger.Info("probe succeeded", "endpoint", endpoint, "latency", latency)
	return Result{Endpoint: endpoint, Success: true, Latency: latency}
}
