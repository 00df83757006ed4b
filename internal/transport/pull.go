package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Fetcher issues one pull request and returns the raw response body.
type Fetcher func(ctx context.Context) ([]byte, error)

// NewHTTPFetcher returns a Fetcher that GETs the given URL. A nil client
// uses http.DefaultClient.
func NewHTTPFetcher(url string, client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build pull request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("pull request: unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read pull response: %w", err)
		}
		return body, nil
	}
}

// PullConfig configures a pull transport.
type PullConfig struct {
	Interval time.Duration // Time between fetches
	Timeout  time.Duration // Per-fetch timeout
}

// Pull issues periodic one-shot fetches and forwards each successful
// response to a sink, substituting for an unavailable push channel.
type Pull struct {
	cfg     PullConfig
	fetcher Fetcher
	sink    func(Frame)
	clock   clockwork.Clock
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPull creates a pull transport. A nil clock uses the real clock.
func NewPull(cfg PullConfig, fetcher Fetcher, sink func(Frame), clock clockwork.Clock, logger *slog.Logger) *Pull {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pull{
		cfg:     cfg,
		fetcher: fetcher,
		sink:    sink,
		clock:   clock,
		logger:  logger,
	}
}

// Start begins the fetch loop. The first fetch fires immediately so the
// consumer is not left blind for a full interval.
func (p *Pull) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPullRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(ctx, p.done)

	p.logger.Info("pull transport started", "interval", p.cfg.Interval)
	return nil
}

// Stop cancels the fetch loop and waits for it to exit. Idempotent.
func (p *Pull) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.logger.Info("pull transport stopped")
}

// Running reports whether the fetch loop is active.
func (p *Pull) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pull) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.fetchOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.fetchOnce(ctx)
		}
	}
}

// fetchOnce issues a single fetch. Failures are logged and skipped; the
// loop keeps going until Stop.
func (p *Pull) fetchOnce(ctx context.Context) {
	fetchCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.Timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	body, err := p.fetcher(fetchCtx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("pull fetch failed", "error", err)
		}
		return
	}

	if ctx.Err() != nil {
		return
	}
	p.sink(Frame{Data: body, ReceivedAt: p.clock.Now()})
}
