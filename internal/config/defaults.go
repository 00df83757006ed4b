package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout   = 5 * time.Second
	DefaultEndpointDelay    = 1 * time.Second
	DefaultCycleDelay       = 3 * time.Second
	DefaultBreakerThreshold = 3
	DefaultPollInterval     = 10 * time.Second
	DefaultPollTimeout      = 10 * time.Second
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Connection.EndpointDelay == 0 {
		c.Connection.EndpointDelay = DefaultEndpointDelay
	}
	if c.Connection.CycleDelay == 0 {
		c.Connection.CycleDelay = DefaultCycleDelay
	}
	if c.Connection.BreakerThreshold == 0 {
		c.Connection.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.Connection.PollInterval == 0 {
		c.Connection.PollInterval = DefaultPollInterval
	}
	if c.Connection.PollTimeout == 0 {
		c.Connection.PollTimeout = DefaultPollTimeout
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
