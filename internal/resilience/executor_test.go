package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payflow/payflow/internal/shared"
)

func fastConfig() Config {
	return Config{
		Breaker: BreakerConfig{
			WindowSize:           10,
			MinimumCalls:         10,
			FailureRateThreshold: 0.5,
			WaitDuration:         time.Minute,
			TrialCalls:           1,
		},
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			Multiplier:     2,
			MaxBackoff:     5 * time.Millisecond,
		},
		BulkheadLimit:  2,
		AttemptTimeout: 50 * time.Millisecond,
	}
}

func TestExecutorSuccess(t *testing.T) {
	e := NewExecutor("payment-service", fastConfig(), nil)

	result, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
}

func TestExecutorRetriesTransientErrors(t *testing.T) {
	e := NewExecutor("payment-service", fastConfig(), nil)

	var calls atomic.Int32
	result, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, &shared.ProviderError{Provider: "stratus", Code: "http_502", Retryable: true}
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", result)
	require.EqualValues(t, 3, calls.Load())
}

func TestExecutorDoesNotRetryPermanentErrors(t *testing.T) {
	e := NewExecutor("payment-service", fastConfig(), nil)

	var calls atomic.Int32
	_, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, &shared.ProviderError{Provider: "stratus", Code: "card_declined", Retryable: false}
	})
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load(), "non-retryable errors must not retry")
	require.ErrorIs(t, err, shared.ErrFallbackUnavailable)
}

func TestExecutorCircuitOpenSkipsDownstream(t *testing.T) {
	cfg := fastConfig()
	cfg.Breaker.MinimumCalls = 10
	cfg.Retry.MaxAttempts = 1
	e := NewExecutor("payment-service", cfg, nil)

	fail := func(ctx context.Context) (any, error) {
		return nil, &shared.ProviderError{Provider: "stratus", Code: "http_503", Retryable: false}
	}
	// Ten consecutive failures at 100% rate trip the breaker.
	for i := 0; i < 10; i++ {
		_, err := e.Execute(context.Background(), fail)
		require.Error(t, err)
	}
	require.Equal(t, StateOpen, e.BreakerState())

	// Eleventh call is rejected without contacting the adapter.
	var called atomic.Bool
	_, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		called.Store(true)
		return nil, nil
	})
	require.ErrorIs(t, err, shared.ErrCircuitOpen)
	require.False(t, called.Load())
}

func TestExecutorBulkheadFailsFast(t *testing.T) {
	cfg := fastConfig()
	cfg.BulkheadLimit = 1
	cfg.AttemptTimeout = time.Second
	e := NewExecutor("payment-service", cfg, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "slow", nil
		})
	}()

	<-started
	_, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return "fast", nil
	})
	require.ErrorIs(t, err, ErrBulkheadFull)
	close(release)
	wg.Wait()
}

func TestExecutorAttemptTimeoutCountsAsFailure(t *testing.T) {
	cfg := fastConfig()
	cfg.AttemptTimeout = 10 * time.Millisecond
	cfg.Retry.MaxAttempts = 2
	e := NewExecutor("payment-service", cfg, nil)

	var calls atomic.Int32
	_, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.Error(t, err)
	// Timed-out attempts retry while the caller context is live.
	require.EqualValues(t, 2, calls.Load())
}

func TestExecutorFallback(t *testing.T) {
	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	e := NewExecutor("payment-service", cfg, nil)
	e.SetFallback(func(ctx context.Context, cause error) (any, error) {
		return "degraded", nil
	})

	result, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, &shared.ProviderError{Provider: "stratus", Code: "http_500", Retryable: false}
	})
	require.NoError(t, err)
	require.Equal(t, "degraded", result)
}

func TestExecutorFallbackUnavailable(t *testing.T) {
	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	e := NewExecutor("payment-service", cfg, nil)

	cause := errors.New("boom")
	_, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, &shared.ProviderError{Provider: "stratus", Code: "x", Message: cause.Error()}
	})
	require.ErrorIs(t, err, shared.ErrFallbackUnavailable)
}

func TestManagerOneExecutorPerDownstream(t *testing.T) {
	m := NewManager(fastConfig(), nil, nil)

	e1 := m.Executor("payment-service")
	e2 := m.Executor("payment-service")
	e3 := m.Executor("payout-service")
	require.Same(t, e1, e2)
	require.NotSame(t, e1, e3)

	states := m.States()
	require.Len(t, states, 2)
	require.Equal(t, StateClosed, states["payment-service"])
}

func TestManagerOverrides(t *testing.T) {
	override := fastConfig()
	override.Breaker.MinimumCalls = 2
	override.Retry.MaxAttempts = 1
	m := NewManager(fastConfig(), map[string]Config{"flaky": override}, nil)

	e := m.Executor("flaky")
	fail := func(ctx context.Context) (any, error) {
		return nil, &shared.ProviderError{Provider: "x", Code: "y"}
	}
	_, _ = e.Execute(context.Background(), fail)
	_, _ = e.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, e.BreakerState())
}

func TestManagerRegisterFallback(t *testing.T) {
	m := NewManager(fastConfig(), nil, nil)
	m.RegisterFallback("payment-service", func(ctx context.Context, cause error) (any, error) {
		return "cached", nil
	})

	result, err := m.Executor("payment-service").Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, &shared.ProviderError{Provider: "x", Code: "y"}
	})
	require.NoError(t, err)
	require.Equal(t, "cached", result)
}
