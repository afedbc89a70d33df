package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/payments"
	"github.com/payflow/payflow/internal/shared"
)

type stubAdapter struct {
	id     gateway.ProviderID
	event  *gateway.WebhookEvent
	err    error
	status gateway.Status
}

func (s *stubAdapter) ID() gateway.ProviderID { return s.id }

func (s *stubAdapter) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
	return nil, shared.ErrUnsupportedOperation
}

func (s *stubAdapter) RefundPayment(ctx context.Context, req gateway.RefundRequest) (*gateway.Response, error) {
	return nil, shared.ErrUnsupportedOperation
}

func (s *stubAdapter) CapturePayment(ctx context.Context, transactionID string, amount decimal.Decimal) (*gateway.Response, error) {
	return nil, shared.ErrUnsupportedOperation
}

func (s *stubAdapter) VerifyWebhookSignature(payload []byte, signature string) bool { return true }

func (s *stubAdapter) ProcessWebhook(ctx context.Context, payload []byte) (*gateway.WebhookEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.event, nil
}

func (s *stubAdapter) GetPaymentStatus(ctx context.Context, transactionID string) (gateway.Status, error) {
	return s.status, nil
}

func (s *stubAdapter) CreateToken(ctx context.Context, card gateway.CardDetails) (*gateway.Token, error) {
	return nil, shared.ErrUnsupportedOperation
}

func (s *stubAdapter) InitiatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Response, error) {
	return nil, shared.ErrUnsupportedOperation
}

func (s *stubAdapter) SupportedPaymentMethods() []string { return nil }

func (s *stubAdapter) SupportedCurrencies() []string { return nil }

func (s *stubAdapter) IsAvailable(ctx context.Context) bool { return true }

func newProcessor(t *testing.T, adapter gateway.Adapter) (*Processor, *payments.StatusCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry := gateway.NewRegistry()
	registry.Register(adapter)
	cache := payments.NewStatusCache(client, time.Hour)
	return NewProcessor(registry, cache, nil), cache
}

func TestHandleWebhookTaskStoresStatus(t *testing.T) {
	adapter := &stubAdapter{
		id: gateway.ProviderStratus,
		event: &gateway.WebhookEvent{
			Provider:      gateway.ProviderStratus,
			Type:          "payment.succeeded",
			TransactionID: "txn_1",
			Status:        gateway.StatusSucceeded,
		},
	}
	p, cache := newProcessor(t, adapter)

	task, err := NewWebhookTask(WebhookPayload{
		Provider:   "stratus",
		Body:       []byte(`{"id":"txn_1"}`),
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, p.HandleWebhookTask(context.Background(), task))

	status, ok, err := cache.Get(context.Background(), gateway.ProviderStratus, "txn_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, gateway.StatusSucceeded, status)
}

func TestHandleWebhookTaskUnknownProviderSkipsRetry(t *testing.T) {
	p, _ := newProcessor(t, &stubAdapter{id: gateway.ProviderStratus})

	task, err := NewWebhookTask(WebhookPayload{Provider: "quickpay", Body: []byte(`{}`)})
	require.NoError(t, err)
	require.Error(t, p.HandleWebhookTask(context.Background(), task))
}

func TestHandleWebhookTaskParseFailureSkipsRetry(t *testing.T) {
	p, _ := newProcessor(t, &stubAdapter{
		id:  gateway.ProviderStratus,
		err: &shared.ProviderError{Provider: "stratus", Code: "bad_payload", Message: "unparseable"},
	})

	task, err := NewWebhookTask(WebhookPayload{Provider: "stratus", Body: []byte(`???`)})
	require.NoError(t, err)
	require.Error(t, p.HandleWebhookTask(context.Background(), task))
}

func TestHandlePayoutReconcileTask(t *testing.T) {
	adapter := &stubAdapter{id: gateway.ProviderPaystack, status: gateway.StatusSucceeded}
	p, cache := newProcessor(t, adapter)

	task, err := NewPayoutReconcileTask(PayoutReconcilePayload{
		Provider:      "paystack",
		TransactionID: "po_9",
	})
	require.NoError(t, err)
	require.NoError(t, p.HandlePayoutReconcileTask(context.Background(), task))

	status, ok, err := cache.Get(context.Background(), gateway.ProviderPaystack, "po_9")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, gateway.StatusSucceeded, status)
}
