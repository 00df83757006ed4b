package feed

import "sync"

// Breaker counts consecutive fully-exhausted failover cycles and trips
// to a disabled state at a threshold. Tripping is a deliberate
// fail-stop: a panel stuck retrying forever against a dead backend is
// worse than a visibly disabled panel with a manual retry affordance,
// so only an explicit Reset re-enables automatic activity.
type Breaker struct {
	mu           sync.Mutex
	threshold    int
	failedCycles int
	tripped      bool
}

// NewBreaker creates a Breaker. A non-positive threshold falls back to
// DefaultBreakerThreshold.
func NewBreaker(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	return &Breaker{threshold: threshold}
}

// RecordCycleFailure notes one fully-exhausted cycle and reports whether
// the breaker is now tripped.
func (b *Breaker) RecordCycleFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failedCycles++
	if b.failedCycles >= b.threshold {
		b.tripped = true
	}
	return b.tripped
}

// RecordSuccess resets the consecutive-failure counter. It does not
// un-trip the breaker; that takes a manual Reset.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failedCycles = 0
}

// Tripped reports whether the breaker has tripped.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Reset clears the counter and the tripped state (manual re-enable).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failedCycles = 0
	b.tripped = false
}

// ConsecutiveFailedCycles returns the current counter value.
func (b *Breaker) ConsecutiveFailedCycles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failedCycles
}
