// Package webhooks receives provider notifications. Signatures are verified
// against the raw body before any parsing; unverified payloads cause no side
// effects at all.
package webhooks

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/jobs"
)

const maxBodyBytes = 1 << 20

// signatureHeaders maps each provider to the header carrying its signature.
var signatureHeaders = map[gateway.ProviderID]string{
	gateway.ProviderStratus:  "Stratus-Signature",
	gateway.ProviderPaystack: "X-Paystack-Signature",
}

// Enqueuer queues verified deliveries for asynchronous processing.
type Enqueuer interface {
	EnqueueWebhook(ctx context.Context, payload jobs.WebhookPayload) (*asynq.TaskInfo, error)
}

// Handler is the webhook intake endpoint.
type Handler struct {
	logger   *slog.Logger
	registry *gateway.Registry
	queue    Enqueuer
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, registry *gateway.Registry, queue Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, registry: registry, queue: queue}
}

// MountRoutes attaches the intake endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{provider}", h.receive)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	provider := gateway.ProviderID(chi.URLParam(r, "provider"))
	adapter, err := h.registry.Lookup(provider)
	if err != nil {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(signatureHeaders[provider])
	if signature == "" || !adapter.VerifyWebhookSignature(body, signature) {
		h.logger.Warn("webhook signature rejected",
			slog.String("provider", string(provider)),
			slog.Int("bytes", len(body)),
		)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	_, err = h.queue.EnqueueWebhook(r.Context(), jobs.WebhookPayload{
		Provider:   string(provider),
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("webhook enqueue failed",
			slog.String("provider", string(provider)),
			slog.Any("error", err),
		)
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}
