package payments

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/payflow/payflow/internal/authz"
	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/rbac"
	"github.com/payflow/payflow/internal/resilience"
	"github.com/payflow/payflow/internal/routing"
	"github.com/payflow/payflow/internal/shared"
)

type fakePerms struct {
	perms  map[string]bool
	owners map[string]string
}

func (f *fakePerms) HasPermission(ctx context.Context, principalID, permName string) (bool, error) {
	return f.perms[principalID+"/"+permName], nil
}

func (f *fakePerms) IsOwner(ctx context.Context, principalID, transactionID string) (bool, error) {
	return f.owners[transactionID] == principalID, nil
}

type fakeAdapter struct {
	id        gateway.ProviderID
	available bool

	payErr    error
	payCalls  int
	payoutErr map[string]error
	status    gateway.Status
	statusErr error
}

func (f *fakeAdapter) ID() gateway.ProviderID { return f.id }

func (f *fakeAdapter) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
	f.payCalls++
	if f.payErr != nil {
		return nil, f.payErr
	}
	return &gateway.Response{
		Success:       true,
		TransactionID: "txn_" + req.OrderID,
		Reference:     req.OrderID,
		Provider:      f.id,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        gateway.StatusSucceeded,
	}, nil
}

func (f *fakeAdapter) RefundPayment(ctx context.Context, req gateway.RefundRequest) (*gateway.Response, error) {
	return &gateway.Response{
		Success:       true,
		TransactionID: req.TransactionID,
		Provider:      f.id,
		Status:        gateway.StatusRefunded,
	}, nil
}

func (f *fakeAdapter) CapturePayment(ctx context.Context, transactionID string, amount decimal.Decimal) (*gateway.Response, error) {
	return &gateway.Response{
		Success:       true,
		TransactionID: transactionID,
		Provider:      f.id,
		Status:        gateway.StatusSucceeded,
	}, nil
}

func (f *fakeAdapter) VerifyWebhookSignature(payload []byte, signature string) bool { return false }

func (f *fakeAdapter) ProcessWebhook(ctx context.Context, payload []byte) (*gateway.WebhookEvent, error) {
	return nil, shared.ErrUnsupportedOperation
}

func (f *fakeAdapter) GetPaymentStatus(ctx context.Context, transactionID string) (gateway.Status, error) {
	if f.statusErr != nil {
		return gateway.StatusUnknown, f.statusErr
	}
	return f.status, nil
}

func (f *fakeAdapter) CreateToken(ctx context.Context, card gateway.CardDetails) (*gateway.Token, error) {
	return nil, shared.ErrUnsupportedOperation
}

func (f *fakeAdapter) InitiatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Response, error) {
	if err, ok := f.payoutErr[req.Reference]; ok {
		return nil, err
	}
	return &gateway.Response{
		Success:       true,
		TransactionID: "po_" + req.Reference,
		Reference:     req.Reference,
		Provider:      f.id,
		Status:        gateway.StatusPending,
	}, nil
}

func (f *fakeAdapter) SupportedPaymentMethods() []string { return nil }

func (f *fakeAdapter) SupportedCurrencies() []string { return nil }

func (f *fakeAdapter) IsAvailable(ctx context.Context) bool { return f.available }

type testEnv struct {
	service  *Service
	stratus  *fakeAdapter
	paystack *fakeAdapter
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.Default()
	evaluator := authz.NewEvaluator(
		rbac.MustDefaultHierarchy(),
		rbac.DefaultMonetaryLimits(),
		&fakePerms{},
		nil,
		nil,
		logger,
	)

	stratus := &fakeAdapter{id: gateway.ProviderStratus, available: true}
	paystack := &fakeAdapter{id: gateway.ProviderPaystack, available: true}
	registry := gateway.NewRegistry()
	registry.Register(stratus)
	registry.Register(paystack)

	guard := resilience.NewManager(resilience.Config{
		Breaker: resilience.BreakerConfig{
			WindowSize:           10,
			MinimumCalls:         10,
			FailureRateThreshold: 0.5,
			WaitDuration:         time.Minute,
			TrialCalls:           1,
		},
		Retry: resilience.RetryPolicy{
			MaxAttempts:    1,
			InitialBackoff: time.Millisecond,
			Multiplier:     2,
			MaxBackoff:     time.Millisecond,
		},
		BulkheadLimit:  4,
		AttemptTimeout: time.Second,
	}, nil, logger)

	service := NewService(
		logger,
		evaluator,
		routing.NewDefault(),
		registry,
		guard,
		NewStatusCache(client, time.Hour),
		shared.NewIdempotencyStore(client, time.Hour),
		nil,
	)
	return &testEnv{service: service, stratus: stratus, paystack: paystack, redis: mr}
}

func asCustomer(id string) context.Context {
	return shared.ContextWithPrincipal(context.Background(), &shared.Principal{
		ID:    id,
		Roles: []string{rbac.RoleCustomer},
	})
}

func asFinanceAdmin(id string) context.Context {
	return shared.ContextWithPrincipal(context.Background(), &shared.Principal{
		ID:    id,
		Roles: []string{rbac.RoleFinanceAdmin},
	})
}

func paymentRequest(orderID, country, currency string, amount string) CreatePaymentRequest {
	return CreatePaymentRequest{
		Amount:        decimal.RequireFromString(amount),
		Currency:      currency,
		OrderID:       orderID,
		CustomerID:    "cust_1",
		CustomerEmail: "buyer@example.com",
		CountryCode:   country,
	}
}

func TestProcessPaymentRoutesToDefaultProvider(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.ProcessPayment(asCustomer("u1"), paymentRequest("ORD-1", "US", "USD", "50"))
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, gateway.ProviderStratus, resp.Provider)
	require.Equal(t, 1, env.stratus.payCalls)
	require.Equal(t, 0, env.paystack.payCalls)
}

func TestProcessPaymentRoutesRegionalCountries(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.ProcessPayment(asCustomer("u1"), paymentRequest("ORD-2", "NG", "NGN", "100"))
	require.NoError(t, err)
	require.Equal(t, gateway.ProviderPaystack, resp.Provider)
	require.Equal(t, 1, env.paystack.payCalls)
}

func TestProcessPaymentUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ProcessPayment(context.Background(), paymentRequest("ORD-3", "US", "USD", "50"))
	require.ErrorIs(t, err, shared.ErrAuthorizationDenied)
	require.Equal(t, 0, env.stratus.payCalls)
}

func TestProcessPaymentOverRoleCeiling(t *testing.T) {
	env := newTestEnv(t)

	// Customer payment ceiling is 5000.
	_, err := env.service.ProcessPayment(asCustomer("u1"), paymentRequest("ORD-4", "US", "USD", "5000.01"))
	require.ErrorIs(t, err, shared.ErrAuthorizationDenied)
	require.Equal(t, 0, env.stratus.payCalls)
}

func TestProcessPaymentRejectsThreeDecimalPlaces(t *testing.T) {
	env := newTestEnv(t)

	req := paymentRequest("ORD-5", "US", "USD", "10.555")
	_, err := env.service.ProcessPayment(asCustomer("u1"), req)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestProcessPaymentRejectsUnknownCurrency(t *testing.T) {
	env := newTestEnv(t)

	req := paymentRequest("ORD-6", "US", "ZZZ", "10")
	_, err := env.service.ProcessPayment(asCustomer("u1"), req)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestProcessPaymentDuplicateOrder(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ProcessPayment(asCustomer("u1"), paymentRequest("ORD-7", "US", "USD", "50"))
	require.NoError(t, err)

	_, err = env.service.ProcessPayment(asCustomer("u1"), paymentRequest("ORD-7", "US", "USD", "50"))
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, 1, env.stratus.payCalls)
}

func TestProcessPaymentReleasesKeyOnFailure(t *testing.T) {
	env := newTestEnv(t)
	env.stratus.payErr = &shared.ProviderError{Provider: "stratus", Code: "http_500", Message: "boom"}

	_, err := env.service.ProcessPayment(asCustomer("u1"), paymentRequest("ORD-8", "US", "USD", "50"))
	require.Error(t, err)

	// The order can be retried once the provider recovers.
	env.stratus.payErr = nil
	resp, err := env.service.ProcessPayment(asCustomer("u1"), paymentRequest("ORD-8", "US", "USD", "50"))
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestRefundRoutesByCurrency(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.RefundPayment(asFinanceAdmin("fa1"), CreateRefundRequest{
		TransactionID: "txn_1",
		Amount:        decimal.RequireFromString("25"),
		Currency:      "NGN",
		Reason:        "customer request",
	})
	require.NoError(t, err)
	require.Equal(t, gateway.ProviderPaystack, resp.Provider)
	require.Equal(t, gateway.StatusRefunded, resp.Status)
}

func TestCapturePayment(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.CapturePayment(asFinanceAdmin("fa1"), CreateCaptureRequest{
		TransactionID: "txn_9",
		Amount:        decimal.RequireFromString("120.50"),
		Currency:      "USD",
	})
	require.NoError(t, err)
	require.Equal(t, gateway.ProviderStratus, resp.Provider)
}

func TestInitiatePayoutDeniedForCustomer(t *testing.T) {
	env := newTestEnv(t)

	// Customers have no payout ceiling at all.
	_, err := env.service.InitiatePayout(asCustomer("u1"), CreatePayoutRequest{
		Amount:        decimal.RequireFromString("10"),
		Currency:      "USD",
		Reference:     "PO-1",
		RecipientName: "Jane Vendor",
		AccountNumber: "0123456789",
	})
	require.ErrorIs(t, err, shared.ErrAuthorizationDenied)
}

func TestBatchPayoutPartialSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.paystack.payoutErr = map[string]error{
		"PO-2": &shared.ProviderError{Provider: "paystack", Code: "insufficient_balance", Message: "balance too low"},
	}

	payout := func(ref string) CreatePayoutRequest {
		return CreatePayoutRequest{
			Amount:        decimal.RequireFromString("200"),
			Currency:      "NGN",
			Reference:     ref,
			RecipientName: "Ade Vendor",
			BankCode:      "058",
			AccountNumber: "0123456789",
		}
	}
	result, err := env.service.BatchPayout(asFinanceAdmin("fa1"), BatchPayoutRequest{
		Payouts: []CreatePayoutRequest{payout("PO-1"), payout("PO-2"), payout("PO-3")},
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 2, result.Succeeded)
	require.Equal(t, 1, result.Failed)

	require.True(t, result.Results[0].Success)
	require.False(t, result.Results[1].Success)
	require.Equal(t, "provider_error", result.Results[1].ErrorCode)
	require.True(t, result.Results[2].Success)
}

func TestBatchPayoutRejectsDuplicateReferences(t *testing.T) {
	env := newTestEnv(t)

	payout := CreatePayoutRequest{
		Amount:        decimal.RequireFromString("200"),
		Currency:      "NGN",
		Reference:     "PO-1",
		RecipientName: "Ade Vendor",
		AccountNumber: "0123456789",
	}
	_, err := env.service.BatchPayout(asFinanceAdmin("fa1"), BatchPayoutRequest{
		Payouts: []CreatePayoutRequest{payout, payout},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetPaymentStatusServedFromProvider(t *testing.T) {
	env := newTestEnv(t)
	env.stratus.status = gateway.StatusSucceeded

	result, err := env.service.GetPaymentStatus(asCustomer("u1"), gateway.ProviderStratus, "txn_42")
	require.NoError(t, err)
	require.Equal(t, gateway.StatusSucceeded, result.Status)
	require.False(t, result.Degraded)
}

func TestGetPaymentStatusFallsBackToCache(t *testing.T) {
	env := newTestEnv(t)
	env.stratus.status = gateway.StatusAuthorized

	// Prime the cache with a successful read.
	_, err := env.service.GetPaymentStatus(asCustomer("u1"), gateway.ProviderStratus, "txn_42")
	require.NoError(t, err)

	env.stratus.statusErr = &shared.ProviderError{Provider: "stratus", Code: "http_503", Message: "down", Retryable: false}
	result, err := env.service.GetPaymentStatus(asCustomer("u1"), gateway.ProviderStratus, "txn_42")
	require.NoError(t, err)
	require.Equal(t, gateway.StatusAuthorized, result.Status)
	require.True(t, result.Degraded)
}

func TestGetPaymentStatusNoCacheEntry(t *testing.T) {
	env := newTestEnv(t)
	env.stratus.statusErr = &shared.ProviderError{Provider: "stratus", Code: "http_503", Message: "down"}

	_, err := env.service.GetPaymentStatus(asCustomer("u1"), gateway.ProviderStratus, "txn_missing")
	require.Error(t, err)
}

func TestErrorCodeMapping(t *testing.T) {
	require.Equal(t, "validation_error", ErrorCode(&shared.ValidationError{Field: "amount", Message: "bad"}))
	require.Equal(t, "duplicate_request", ErrorCode(shared.ErrIdempotencyConflict))
	require.Equal(t, "circuit_open", ErrorCode(shared.ErrCircuitOpen))
	require.Equal(t, "provider_error", ErrorCode(&shared.ProviderError{Provider: "x", Code: "y"}))
	require.Equal(t, "internal_error", ErrorCode(errors.New("boom")))
}
