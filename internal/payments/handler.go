package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/resilience"
	"github.com/payflow/payflow/internal/shared"
)

// Handler exposes the payment dispatch API over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes attaches the payment endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.processPayment)
	r.Post("/refunds", h.refundPayment)
	r.Post("/captures", h.capturePayment)
	r.Post("/payouts", h.initiatePayout)
	r.Post("/payouts/batch", h.batchPayout)
	r.Get("/payments/{transactionID}/status", h.paymentStatus)
}

func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.ProcessPayment(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, resp)
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	var req CreateRefundRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.RefundPayment(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) capturePayment(w http.ResponseWriter, r *http.Request) {
	var req CreateCaptureRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.CapturePayment(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) initiatePayout(w http.ResponseWriter, r *http.Request) {
	var req CreatePayoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.InitiatePayout(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, resp)
}

func (h *Handler) batchPayout(w http.ResponseWriter, r *http.Request) {
	var req BatchPayoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.BatchPayout(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	// Partial failure is still a successful batch submission.
	status := http.StatusOK
	if result.Failed > 0 && result.Succeeded > 0 {
		status = http.StatusMultiStatus
	} else if result.Failed > 0 {
		status = http.StatusUnprocessableEntity
	}
	h.respond(w, status, result)
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	provider := gateway.ProviderID(r.URL.Query().Get("provider"))
	if provider == "" {
		provider = gateway.ProviderStratus
	}
	result, err := h.service.GetPaymentStatus(r.Context(), provider, transactionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

// decode parses and tag-validates the request body. Responds on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respond(w, http.StatusBadRequest, errorBody("invalid_json", "request body is not valid JSON"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respond(w, http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.Any("error", err))
	}
	h.respond(w, status, errorBody(code, err.Error()))
}

func errorBody(code, message string) map[string]any {
	return map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
}

// httpStatus maps service errors to response codes. Authorization failures
// are always 403, never detailed enough to probe the role model.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resilience.ErrBulkheadFull):
		return http.StatusTooManyRequests
	case errors.Is(err, shared.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrUnsupportedOperation):
		return http.StatusNotImplemented
	case errors.Is(err, shared.ErrUnsupportedGateway),
		errors.Is(err, shared.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrFallbackUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
