package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/payflow/payflow/internal/shared"
)

// Fallback produces a degraded result when the guarded call path fails.
type Fallback func(ctx context.Context, cause error) (any, error)

// Config tunes one downstream's full policy pipeline.
type Config struct {
	Breaker        BreakerConfig
	Retry          RetryPolicy
	BulkheadLimit  int64
	AttemptTimeout time.Duration
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		Breaker:        DefaultBreakerConfig(),
		Retry:          DefaultRetryPolicy(),
		BulkheadLimit:  10,
		AttemptTimeout: 10 * time.Second,
	}
}

// Executor guards calls to one downstream with an explicit ordered pipeline:
// bulkhead, then circuit breaker, then retry, then per-attempt timeout, then
// fallback. Each policy is independent so the composition stays testable.
type Executor struct {
	name     string
	breaker  *CircuitBreaker
	bulkhead *Bulkhead
	retry    RetryPolicy
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	fallback Fallback
}

// NewExecutor constructs the executor for a downstream name.
func NewExecutor(name string, cfg Config, logger *slog.Logger, listeners ...TransitionListener) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	return &Executor{
		name:     name,
		breaker:  NewCircuitBreaker(name, cfg.Breaker, listeners...),
		bulkhead: NewBulkhead(name, cfg.BulkheadLimit),
		retry:    cfg.Retry.withDefaults(),
		timeout:  cfg.AttemptTimeout,
		logger:   logger,
	}
}

// SetFallback registers the degraded path for this downstream.
func (e *Executor) SetFallback(fb Fallback) {
	e.mu.Lock()
	e.fallback = fb
	e.mu.Unlock()
}

// BreakerState exposes the breaker state for health reporting. Never errors.
func (e *Executor) BreakerState() State {
	return e.breaker.State()
}

// Execute runs op through the policy pipeline. On exhaustion the registered
// fallback is invoked; without one the cause propagates wrapped in
// ErrFallbackUnavailable semantics.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	result, err := e.guarded(ctx, op)
	if err == nil {
		return result, nil
	}
	return e.degrade(ctx, err)
}

func (e *Executor) guarded(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	if err := e.bulkhead.Acquire(); err != nil {
		return nil, err
	}
	defer e.bulkhead.Release()

	if err := e.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrCircuitOpen, e.name)
	}

	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		if err := sleep(ctx, e.retry.backoff(attempt)); err != nil {
			e.breaker.Record(false)
			return nil, err
		}

		result, err := e.attempt(ctx, op)
		e.breaker.Record(err == nil)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// Caller is gone; no point retrying.
			return nil, err
		}
		if !e.attemptRetryable(err) {
			return nil, err
		}
		e.logger.Warn("retrying downstream call",
			slog.String("downstream", e.name),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	return nil, lastErr
}

// attempt bounds a single call with the per-attempt timeout.
func (e *Executor) attempt(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return op(attemptCtx)
}

// attemptRetryable treats an attempt timeout as transient when the caller's
// context is still live, alongside adapter-marked retryable errors.
func (e *Executor) attemptRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return IsRetryable(err)
}

func (e *Executor) degrade(ctx context.Context, cause error) (any, error) {
	e.mu.RLock()
	fb := e.fallback
	e.mu.RUnlock()
	if fb == nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrFallbackUnavailable, e.name, cause)
	}
	e.logger.Warn("invoking fallback",
		slog.String("downstream", e.name),
		slog.Any("cause", cause),
	)
	result, err := fb(ctx, cause)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrFallbackUnavailable, e.name, err)
	}
	return result, nil
}

// Manager owns one executor per downstream name, created on first use and
// shared by all callers for the process lifetime.
type Manager struct {
	mu        sync.RWMutex
	executors map[string]*Executor
	defaults  Config
	overrides map[string]Config
	logger    *slog.Logger
	listeners []TransitionListener
}

// NewManager constructs the manager. overrides tune individual downstreams.
func NewManager(defaults Config, overrides map[string]Config, logger *slog.Logger, listeners ...TransitionListener) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		executors: make(map[string]*Executor),
		defaults:  defaults,
		overrides: overrides,
		logger:    logger,
		listeners: listeners,
	}
}

// Executor returns the executor for a downstream, creating it on first use.
func (m *Manager) Executor(name string) *Executor {
	m.mu.RLock()
	e, ok := m.executors[name]
	m.mu.RUnlock()
	if ok {
		return e
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.executors[name]; ok {
		return e
	}
	cfg := m.defaults
	if override, ok := m.overrides[name]; ok {
		cfg = override
	}
	e = NewExecutor(name, cfg, m.logger, m.listeners...)
	m.executors[name] = e
	return e
}

// RegisterFallback installs the degraded path for a downstream.
func (m *Manager) RegisterFallback(name string, fb Fallback) {
	m.Executor(name).SetFallback(fb)
}

// States snapshots every breaker state for health reporting.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.executors))
	for name, e := range m.executors {
		out[name] = e.BreakerState()
	}
	return out
}
