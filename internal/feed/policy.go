package feed

import "time"

// Outcome classifies a failed connection attempt.
type Outcome int

const (
	// OutcomeConnectTimeout means the attempt did not open within the
	// configured window.
	OutcomeConnectTimeout Outcome = iota
	// OutcomeDialFailed means the attempt was refused outright.
	OutcomeDialFailed
	// OutcomeAbnormalClosure means an open connection closed with a
	// non-deliberate code.
	OutcomeAbnormalClosure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConnectTimeout:
		return "connect_timeout"
	case OutcomeDialFailed:
		return "dial_failed"
	case OutcomeAbnormalClosure:
		return "abnormal_closure"
	default:
		return "unknown"
	}
}

// AttemptRecord is the bookkeeping for one failed attempt in the current
// cycle. Records are discarded once the cycle completes or an attempt
// succeeds.
type AttemptRecord struct {
	EndpointIndex int
	StartedAt     time.Time
	Outcome       Outcome
}

// Decision is the policy's answer after a failed attempt.
type Decision struct {
	NextIndex      int           // Endpoint index for the next attempt
	Delay          time.Duration // Wait before that attempt
	CycleExhausted bool          // Every endpoint failed this cycle
}

// Policy decides the next reconnect step from the attempt history of the
// current cycle. Delays are fixed and bounded rather than exponential:
// feed staleness matters more than politeness toward a dead backend,
// and the circuit breaker caps the total effort anyway. No I/O; the
// manager owns all timers.
type Policy struct {
	endpointDelay time.Duration
	cycleDelay    time.Duration

	attempts []AttemptRecord
}

// NewPolicy creates a Policy with the given intra-cycle and inter-cycle
// delays. Non-positive values fall back to the defaults.
func NewPolicy(endpointDelay, cycleDelay time.Duration) *Policy {
	if endpointDelay <= 0 {
		endpointDelay = DefaultEndpointDelay
	}
	if cycleDelay <= 0 {
		cycleDelay = DefaultCycleDelay
	}
	return &Policy{
		endpointDelay: endpointDelay,
		cycleDelay:    cycleDelay,
	}
}

// Record adds one failed attempt to the current cycle.
func (p *Policy) Record(rec AttemptRecord) {
	p.attempts = append(p.attempts, rec)
}

// Next returns the decision for the attempt history recorded so far.
func (p *Policy) Next(endpointCount int) Decision {
	n := len(p.attempts)
	if n >= endpointCount {
		return Decision{
			NextIndex:      0,
			Delay:          p.cycleDelay,
			CycleExhausted: true,
		}
	}
	return Decision{
		NextIndex: n,
		Delay:     p.endpointDelay,
	}
}

// Attempts returns the number of failed attempts in the current cycle.
func (p *Policy) Attempts() int {
	return len(p.attempts)
}

// Reset discards the attempt history; called when a cycle completes or
// an attempt succeeds.
func (p *Policy) Reset() {
	p.attempts = nil
}
