package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Feeds) == 0 {
		return errors.New("at least one feed is required")
	}

	seen := make(map[string]struct{}, len(c.Feeds))
	for i, feed := range c.Feeds {
		prefix := fmt.Sprintf("feeds[%d]", i)
		if feed.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if _, dup := seen[feed.Name]; dup {
			return fmt.Errorf("%s.name %q is duplicated", prefix, feed.Name)
		}
		seen[feed.Name] = struct{}{}

		if len(feed.Endpoints) == 0 {
			return fmt.Errorf("%s.endpoints must have at least one entry", prefix)
		}
		for j, ep := range feed.Endpoints {
			if err := validateEndpoint(ep); err != nil {
				return fmt.Errorf("%s.endpoints[%d]: %w", prefix, j, err)
			}
		}
		if feed.PollURL != "" {
			if err := validatePollURL(feed.PollURL); err != nil {
				return fmt.Errorf("%s.poll_url: %w", prefix, err)
			}
		}
	}

	if c.Connection.BreakerThreshold < 1 {
		return errors.New("connection.breaker_threshold must be >= 1")
	}
	if c.Connection.ConnectTimeout <= 0 {
		return errors.New("connection.connect_timeout must be positive")
	}
	if c.Connection.PollInterval <= 0 {
		return errors.New("connection.poll_interval must be positive")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func validateEndpoint(ep string) error {
	u, err := url.Parse(ep)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func validatePollURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !strings.HasPrefix(u.Scheme, "http") {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
