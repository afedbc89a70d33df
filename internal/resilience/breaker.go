package resilience

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/payflow/payflow/internal/shared"
)

// State is the circuit breaker state.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// BreakerConfig tunes one downstream's circuit breaker.
type BreakerConfig struct {
	// WindowSize is the rolling outcome window length.
	WindowSize int
	// MinimumCalls gates rate evaluation until enough observations exist.
	MinimumCalls int
	// FailureRateThreshold in [0,1] trips the breaker.
	FailureRateThreshold float64
	// WaitDuration is how long OPEN lasts before probing.
	WaitDuration time.Duration
	// TrialCalls is the number of permitted HALF_OPEN probes.
	TrialCalls int
}

// DefaultBreakerConfig returns conservative defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:           20,
		MinimumCalls:         10,
		FailureRateThreshold: 0.5,
		WaitDuration:         30 * time.Second,
		TrialCalls:           3,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = d.MinimumCalls
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = d.FailureRateThreshold
	}
	if c.WaitDuration <= 0 {
		c.WaitDuration = d.WaitDuration
	}
	if c.TrialCalls <= 0 {
		c.TrialCalls = d.TrialCalls
	}
	return c
}

// TransitionListener observes breaker state changes.
type TransitionListener func(downstream string, from, to State)

// CircuitBreaker guards one downstream. State transitions are single
// compare-and-swap operations so racing goroutines cannot both win a
// transition; the rolling window sits behind a narrow mutex.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	state    atomic.Int32
	openedAt atomic.Int64 // unix nanos of the OPEN transition

	mu       sync.Mutex
	window   []bool // true = failure
	idx      int
	filled   int
	failures int

	trialPermits   atomic.Int32
	trialSuccesses atomic.Int32

	listeners []TransitionListener
	now       func() time.Time
}

// NewCircuitBreaker constructs a breaker in CLOSED state.
func NewCircuitBreaker(name string, cfg BreakerConfig, listeners ...TransitionListener) *CircuitBreaker {
	cfg = cfg.withDefaults()
	return &CircuitBreaker{
		name:      name,
		cfg:       cfg,
		window:    make([]bool, cfg.WindowSize),
		listeners: listeners,
		now:       time.Now,
	}
}

// State returns the current state, transparently moving OPEN to HALF_OPEN when
// the wait has elapsed. Inspection never returns an error.
func (b *CircuitBreaker) State() State {
	state := State(b.state.Load())
	if state == StateOpen && b.waitElapsed() {
		if b.transition(StateOpen, StateHalfOpen) {
			return StateHalfOpen
		}
		return State(b.state.Load())
	}
	return state
}

// Name returns the downstream name.
func (b *CircuitBreaker) Name() string { return b.name }

// Allow reports whether a call may proceed. In HALF_OPEN it consumes one trial
// permit per allowed call.
func (b *CircuitBreaker) Allow() error {
	switch b.State() {
	case StateClosed:
		return nil
	case StateHalfOpen:
		for {
			permits := b.trialPermits.Load()
			if permits <= 0 {
				return shared.ErrCircuitOpen
			}
			if b.trialPermits.CompareAndSwap(permits, permits-1) {
				return nil
			}
		}
	default:
		return shared.ErrCircuitOpen
	}
}

// Record feeds one call outcome into the breaker.
func (b *CircuitBreaker) Record(success bool) {
	switch State(b.state.Load()) {
	case StateHalfOpen:
		b.recordTrial(success)
	case StateClosed:
		b.recordClosed(success)
	default:
		// Outcomes of calls that started before the trip are dropped.
	}
}

func (b *CircuitBreaker) recordClosed(success bool) {
	b.mu.Lock()
	if b.filled == len(b.window) {
		if b.window[b.idx] {
			b.failures--
		}
	} else {
		b.filled++
	}
	b.window[b.idx] = !success
	if !success {
		b.failures++
	}
	b.idx = (b.idx + 1) % len(b.window)
	observed, failures := b.filled, b.failures
	b.mu.Unlock()

	if observed >= b.cfg.MinimumCalls {
		rate := float64(failures) / float64(observed)
		if rate >= b.cfg.FailureRateThreshold {
			b.transition(StateClosed, StateOpen)
		}
	}
}

func (b *CircuitBreaker) recordTrial(success bool) {
	if !success {
		// Any trial failure re-opens and restarts the wait timer.
		b.transition(StateHalfOpen, StateOpen)
		return
	}
	if b.trialSuccesses.Add(1) >= int32(b.cfg.TrialCalls) {
		b.transition(StateHalfOpen, StateClosed)
	}
}

func (b *CircuitBreaker) waitElapsed() bool {
	openedAt := b.openedAt.Load()
	return openedAt > 0 && b.now().Sub(time.Unix(0, openedAt)) >= b.cfg.WaitDuration
}

// transition attempts a CAS state change, resetting per-state bookkeeping for
// the winner only.
func (b *CircuitBreaker) transition(from, to State) bool {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	switch to {
	case StateOpen:
		b.openedAt.Store(b.now().UnixNano())
	case StateHalfOpen:
		b.trialPermits.Store(int32(b.cfg.TrialCalls))
		b.trialSuccesses.Store(0)
	case StateClosed:
		b.openedAt.Store(0)
		b.resetWindow()
	}
	for _, listener := range b.listeners {
		listener(b.name, from, to)
	}
	return true
}

func (b *CircuitBreaker) resetWindow() {
	b.mu.Lock()
	for i := range b.window {
		b.window[i] = false
	}
	b.idx = 0
	b.filled = 0
	b.failures = 0
	b.mu.Unlock()
}
