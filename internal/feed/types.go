package feed

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Epic-SX/Disaster-info-System-sub000/internal/metrics"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/transport"
)

// Errors
var (
	ErrNoEndpoints = errors.New("endpoint set is empty")
)

// Design defaults. All of these are externally overridable via Options.
const (
	DefaultConnectTimeout   = 5 * time.Second
	DefaultEndpointDelay    = 1 * time.Second
	DefaultCycleDelay       = 3 * time.Second
	DefaultPollInterval     = 10 * time.Second
	DefaultPollTimeout      = 10 * time.Second
	DefaultBreakerThreshold = 3
)

// Options configures a Manager. Endpoints is the ordered EndpointSet:
// one primary plus any number of fallbacks, walked in order within a
// failover cycle.
type Options struct {
	Name      string   // Logical feed name, e.g. "earthquake"
	Endpoints []string // Push-channel addresses, primary first
	PollURL   string   // HTTP resource for the pull fallback; empty disables it

	ConnectTimeout   time.Duration // Push open window (default 5s)
	EndpointDelay    time.Duration // Delay between endpoints within a cycle (default 1s)
	CycleDelay       time.Duration // Delay between cycles (default 3s)
	PollInterval     time.Duration // Pull fallback interval (default 10s)
	PollTimeout      time.Duration // Per-fetch timeout (default 10s)
	BreakerThreshold int           // Consecutive failed cycles before tripping (default 3)

	// Dial builds the push transport for one endpoint. Defaults to the
	// WebSocket transport. Injected for tests and for probes that must
	// not share transport instances with a live manager.
	Dial transport.Factory

	// Fetch is the pull capability. Defaults to an HTTP GET against
	// PollURL when one is configured.
	Fetch transport.Fetcher

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// withDefaults resolves zero-valued options.
func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.EndpointDelay <= 0 {
		o.EndpointDelay = DefaultEndpointDelay
	}
	if o.CycleDelay <= 0 {
		o.CycleDelay = DefaultCycleDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = DefaultBreakerThreshold
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Dial == nil {
		logger := o.Logger
		o.Dial = func(endpoint string) transport.Push {
			return transport.NewPush(transport.DefaultPushConfig(endpoint), logger)
		}
	}
	if o.Fetch == nil && o.PollURL != "" {
		o.Fetch = transport.NewHTTPFetcher(o.PollURL, &http.Client{Timeout: o.PollTimeout})
	}
	return o
}
