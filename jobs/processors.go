package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/payments"
)

// Processor executes queued webhook and reconciliation work against the
// provider adapters.
type Processor struct {
	registry *gateway.Registry
	cache    *payments.StatusCache
	logger   *slog.Logger
}

// NewProcessor constructs the processor.
func NewProcessor(registry *gateway.Registry, cache *payments.StatusCache, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{registry: registry, cache: cache, logger: logger}
}

// HandleWebhookTask parses a verified webhook body and records the status it
// carries. Malformed payloads are dropped, not retried.
func (p *Processor) HandleWebhookTask(ctx context.Context, t *asynq.Task) error {
	var payload WebhookPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	adapter, err := p.registry.Lookup(gateway.ProviderID(payload.Provider))
	if err != nil {
		p.logger.Error("webhook for unknown provider", slog.String("provider", payload.Provider))
		return asynq.SkipRetry
	}
	event, err := adapter.ProcessWebhook(ctx, payload.Body)
	if err != nil {
		p.logger.Warn("webhook parse failed",
			slog.String("provider", payload.Provider),
			slog.Any("error", err),
		)
		return asynq.SkipRetry
	}
	if event.TransactionID != "" {
		if err := p.cache.Store(ctx, event.Provider, event.TransactionID, event.Status); err != nil {
			// Transient cache trouble; let asynq retry the delivery.
			return err
		}
	}
	p.logger.Info("webhook processed",
		slog.String("provider", payload.Provider),
		slog.String("type", event.Type),
		slog.String("transaction", event.TransactionID),
		slog.String("status", string(event.Status)),
	)
	return nil
}

// HandlePayoutReconcileTask re-queries a payout and refreshes the cached
// status.
func (p *Processor) HandlePayoutReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload PayoutReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	provider := gateway.ProviderID(payload.Provider)
	adapter, err := p.registry.Lookup(provider)
	if err != nil {
		return asynq.SkipRetry
	}
	status, err := adapter.GetPaymentStatus(ctx, payload.TransactionID)
	if err != nil {
		return err
	}
	if err := p.cache.Store(ctx, provider, payload.TransactionID, status); err != nil {
		return err
	}
	p.logger.Info("payout reconciled",
		slog.String("provider", payload.Provider),
		slog.String("transaction", payload.TransactionID),
		slog.String("status", string(status)),
	)
	return nil
}
