package delivery

import (
	"sync"
	"time"

	"github.com/capsight/go-valuation/core"
)

// CircuitBreaker guards one destination endpoint. State transitions are
// atomic with respect to concurrent senders; only one caller may run the
// HALF_OPEN trial at a time.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu                  sync.Mutex
	state               core.CircuitStateName
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     core.CircuitClosed,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Allow reports whether a call may proceed and whether it is the single
// HALF_OPEN trial. Concurrent arrivals during an unresolved trial are
// short-circuited.
func (b *CircuitBreaker) Allow() (allowed bool, trial bool) {
	if b == nil {
		return true, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case core.CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		b.state = core.CircuitHalfOpen
		b.trialInFlight = true
		return true, true
	case core.CircuitHalfOpen:
		if b.trialInFlight {
			return false, false
		}
		b.trialInFlight = true
		return true, true
	default:
		return true, false
	}
}

func (b *CircuitBreaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = core.CircuitClosed
	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
	b.trialInFlight = false
}

func (b *CircuitBreaker) RecordFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.state == core.CircuitHalfOpen || b.consecutiveFailures >= b.threshold {
		b.state = core.CircuitOpen
		b.openedAt = b.now()
	}
	b.trialInFlight = false
}

// ReleaseTrial frees the HALF_OPEN trial slot without recording an outcome.
// Used when a trial is canceled before it resolves.
func (b *CircuitBreaker) ReleaseTrial() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

func (b *CircuitBreaker) Snapshot() core.CircuitSnapshot {
	if b == nil {
		return core.CircuitSnapshot{State: core.CircuitClosed}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := core.CircuitSnapshot{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
	}
	if !b.openedAt.IsZero() {
		openedAt := b.openedAt
		snapshot.OpenedAt = &openedAt
	}
	return snapshot
}
