package config

import "time"

// Config is the root configuration for a feedwatch instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Connection ConnectionConfig `yaml:"connection"`
	Feeds      []FeedConfig     `yaml:"feeds"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// InstanceConfig identifies this feedwatch process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ConnectionConfig holds the resilience settings shared by all feeds.
type ConnectionConfig struct {
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	EndpointDelay    time.Duration `yaml:"endpoint_delay"`
	CycleDelay       time.Duration `yaml:"cycle_delay"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollTimeout      time.Duration `yaml:"poll_timeout"`
}

// FeedConfig holds one logical feed: an ordered endpoint set (primary
// first) and an optional pull-fallback URL.
type FeedConfig struct {
	Name      string   `yaml:"name"`
	Endpoints []string `yaml:"endpoints"`
	PollURL   string   `yaml:"poll_url"`
	Disabled  bool     `yaml:"disabled"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
