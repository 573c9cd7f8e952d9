// Package breaker implements the circuit breaker that gates calls to
// the L2 tier: closed (calls pass through), open (calls short-circuit
// with cacheerr.ErrCircuitOpen until Timeout elapses), and half-open
// (a trial window that closes the circuit again after SuccessThreshold
// consecutive successes, or reopens it on the first failure).
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/auth-platform/rescache/cacheerr"
)

// State is one of Closed, Open, or HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker. A zero Config is valid and behaves as
// disabled: Execute becomes a transparent pass-through.
type Config struct {
	Enabled          bool
	FailureThreshold int           // consecutive failures before tripping open
	SuccessThreshold int           // consecutive half-open successes before closing
	Timeout          time.Duration // how long Open holds before trying half-open
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Breaker is a single-circuit breaker protecting one downstream
// dependency (the L2 backend).
type Breaker struct {
	mu      sync.Mutex
	cfg     Config
	state   State
	fails   int
	succs   int
	openAt  time.Time
	changed time.Time

	// probeInFlight gates HalfOpen admission to exactly one in-flight
	// call at a time: the first caller to see HalfOpen with no probe
	// running claims it and proceeds; every other concurrent caller is
	// short-circuited until that probe's outcome is recorded.
	probeInFlight bool
}

// New creates a Breaker. If cfg.Enabled is false, Execute always
// invokes op directly and State always reports Closed.
func New(cfg Config) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{cfg: cfg, state: Closed, changed: time.Now()}
}

// Execute runs op if the circuit allows it, recording the outcome.
// When the circuit is open it returns cacheerr.ErrCircuitOpen without
// invoking op.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if !b.cfg.Enabled {
		return op(ctx)
	}

	if !b.allowRequest() {
		return cacheerr.ErrCircuitOpen
	}

	err := op(ctx)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// allowRequest decides whether a call may proceed, transitioning Open
// to HalfOpen once the timeout has elapsed. HalfOpen admits exactly
// one caller at a time: whichever goroutine claims probeInFlight runs
// the real op, and every other concurrent caller short-circuits until
// recordSuccess/recordFailure clears it.
func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openAt) >= b.cfg.Timeout {
			b.transitionTo(HalfOpen)
			b.probeInFlight = true
			return true
		}
		return false
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// recordSuccess is called after a successful op.
func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.fails = 0
	case HalfOpen:
		b.probeInFlight = false
		b.succs++
		if b.succs >= b.cfg.SuccessThreshold {
			b.transitionTo(Closed)
		}
	}
}

// recordFailure is called after a failed op.
func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.fails++
		if b.fails >= b.cfg.FailureThreshold {
			b.transitionTo(Open)
		}
	case HalfOpen:
		// A single failure during the trial window reopens the circuit.
		b.probeInFlight = false
		b.transitionTo(Open)
	}
}

// transitionTo changes state. Caller must hold b.mu.
func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}
	b.state = next
	b.changed = time.Now()

	switch next {
	case Open:
		b.openAt = time.Now()
		b.probeInFlight = false
	case Closed:
		b.fails = 0
		b.succs = 0
		b.probeInFlight = false
	case HalfOpen:
		b.succs = 0
		b.probeInFlight = false
	}
}

// State returns the current circuit state. Always Closed when the
// breaker is disabled. An Open circuit whose Timeout has elapsed is
// reported as HalfOpen, since the next call will be admitted as the
// probe.
func (b *Breaker) State() State {
	if !b.cfg.Enabled {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openAt) >= b.cfg.Timeout {
		return HalfOpen
	}
	return b.state
}

// Reset forces the circuit back to closed, clearing counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(Closed)
}
