package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/logging"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed allows calls; consecutive transient failures are counted.
	StateClosed State = iota
	// StateOpen blocks calls with core.ErrCircuitOpen until the recovery
	// timeout elapses.
	StateOpen
	// StateHalfOpen allows exactly one probe call; its outcome decides
	// CLOSED or OPEN.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "unknown"
	}
}

// Default breaker tuning.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
)

// BreakerOptions configures a Breaker.
type BreakerOptions struct {
	// FailureThreshold is the consecutive transient failure count that
	// trips CLOSED to OPEN.
	FailureThreshold int
	// RecoveryTimeout is how long an OPEN breaker waits (since the last
	// transition) before allowing a HALF_OPEN probe.
	RecoveryTimeout time.Duration
	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
	// Logger records state transitions. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Breaker guards one external-call category. It is safe for concurrent use;
// state is shared across all callers of the category for the process
// lifetime (or until Reset).
type Breaker struct {
	category string
	opts     BreakerOptions

	mu             sync.Mutex
	state          State
	failures       int
	lastTransition time.Time
	probing        bool
}

// NewBreaker creates a closed breaker for the given call category.
func NewBreaker(category string, optFns ...func(o *BreakerOptions)) *Breaker {
	opts := BreakerOptions{
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		Clock:            time.Now,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Breaker{category: category, opts: opts, state: StateClosed, lastTransition: opts.Clock()}
}

// Category returns the external-call category this breaker guards.
func (b *Breaker) Category() string { return b.category }

// Allow reports whether a call may proceed. While OPEN (recovery timeout not
// elapsed) it fails immediately with core.ErrCircuitOpen without the
// underlying call being attempted; this is intentional fail-fast, not a
// fallback to degraded output. After the recovery timeout, exactly one
// caller is let through as the HALF_OPEN probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.opts.Clock().Sub(b.lastTransition) < b.opts.RecoveryTimeout {
			return fmt.Errorf("%s: %w", b.category, core.ErrCircuitOpen)
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%s: probe in flight: %w", b.category, core.ErrCircuitOpen)
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record feeds a call outcome back into the breaker. Only transient
// failures count toward opening; success resets the consecutive-failure
// counter (and closes a half-open breaker). Non-transient errors are
// invisible to the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.failures = 0
		if b.state == StateHalfOpen {
			b.probing = false
			b.transition(StateClosed)
		}
	case core.IsTransient(err):
		b.failures++
		if b.state == StateHalfOpen {
			b.probing = false
			b.transition(StateOpen)
			return
		}
		if b.state == StateClosed && b.failures >= b.opts.FailureThreshold {
			b.transition(StateOpen)
		}
	default:
		// Programmer/validation errors do not count. A half-open probe
		// ending this way is inconclusive; free the probe slot.
		if b.state == StateHalfOpen {
			b.probing = false
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive transient failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker back to CLOSED with a clean counter.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.transition(StateClosed)
}

// transition moves to next, stamping the time. Caller holds the lock.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.opts.Logger.Warn("circuit breaker transition", "category", b.category, "from", b.state.String(), "to", next.String(), "failures", b.failures)
	b.state = next
	b.lastTransition = b.opts.Clock()
}

// BreakerSet lazily manages one Breaker per call category with shared
// options. It is safe for concurrent use.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	optFns   []func(o *BreakerOptions)
}

// NewBreakerSet creates an empty set; optFns apply to every breaker it
// creates.
func NewBreakerSet(optFns ...func(o *BreakerOptions)) *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*Breaker), optFns: optFns}
}

// Get returns the breaker for category, creating it on first use.
func (s *BreakerSet) Get(category string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[category]
	if !ok {
		b = NewBreaker(category, s.optFns...)
		s.breakers[category] = b
	}
	return b
}

// ResetAll resets every breaker in the set.
func (s *BreakerSet) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.breakers {
		b.Reset()
	}
}
