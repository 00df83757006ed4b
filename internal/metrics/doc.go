// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state and push connect attempts per feed
//   - Exhausted failover cycles and circuit breaker trips
//   - Message dispatch rates by transport (push vs pull fallback)
//   - Router parse error counts
package metrics
