package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/payflow/payflow/internal/authz"
	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/rbac"
	"github.com/payflow/payflow/internal/resilience"
	"github.com/payflow/payflow/internal/routing"
	"github.com/payflow/payflow/internal/shared"
)

const (
	moduleKey = "payments"

	defaultBatchConcurrency = 8
)

// DispatchObserver records dispatch outcomes for monitoring. Implemented by
// the observability package; nil disables recording.
type DispatchObserver interface {
	ObserveDispatch(provider, operation, outcome string)
}

// StatusResult is a status read, flagged when served from the cache because
// the provider was unreachable.
type StatusResult struct {
	TransactionID string         `json:"transactionId"`
	Status        gateway.Status `json:"status"`
	Degraded      bool           `json:"degraded"`
}

// PayoutOutcome is one entry of a batch payout result.
type PayoutOutcome struct {
	Reference     string `json:"reference"`
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	Message       string `json:"message,omitempty"`
}

// BatchResult summarizes a batch payout dispatch. Entries keep input order.
type BatchResult struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Results   []PayoutOutcome `json:"results"`
}

// Service orchestrates payment dispatch: authorize, deduplicate, route,
// then call the selected provider through the resilience pipeline.
type Service struct {
	logger           *slog.Logger
	evaluator        *authz.Evaluator
	router           *routing.Router
	registry         *gateway.Registry
	guard            *resilience.Manager
	cache            *StatusCache
	idempotency      *shared.IdempotencyStore
	observer         DispatchObserver
	batchConcurrency int
}

// NewService constructs the service. cache, idempotency and observer may be
// nil; the corresponding behavior is skipped.
func NewService(
	logger *slog.Logger,
	evaluator *authz.Evaluator,
	router *routing.Router,
	registry *gateway.Registry,
	guard *resilience.Manager,
	cache *StatusCache,
	idempotency *shared.IdempotencyStore,
	observer DispatchObserver,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:           logger,
		evaluator:        evaluator,
		router:           router,
		registry:         registry,
		guard:            guard,
		cache:            cache,
		idempotency:      idempotency,
		observer:         observer,
		batchConcurrency: defaultBatchConcurrency,
	}
}

// downstream names one provider's API surface for breaker bookkeeping. Status
// reads get their own breaker so a flapping status endpoint cannot trip the
// dispatch path.
func downstream(provider gateway.ProviderID) string { return string(provider) + "-api" }
func statusDown(provider gateway.ProviderID) string { return string(provider) + "-status" }

func (s *Service) observe(provider gateway.ProviderID, operation string, err error) {
	if s.observer == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = ErrorCode(err)
	}
	s.observer.ObserveDispatch(string(provider), operation, outcome)
}

// ProcessPayment authorizes, deduplicates and dispatches a payment.
func (s *Service) ProcessPayment(ctx context.Context, req CreatePaymentRequest) (*gateway.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	principal := shared.PrincipalFromContext(ctx)
	decision := s.evaluator.AuthorizePayment(ctx, principal, authz.Request{
		Amount:   req.Amount,
		Currency: req.Currency,
		OrderID:  req.OrderID,
		Domain:   rbac.Domain(req.Domain),
	})
	if !decision.Granted {
		return nil, fmt.Errorf("%w: %s", shared.ErrAuthorizationDenied, decision.Reason)
	}

	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, req.OrderID, moduleKey); err != nil {
			return nil, err
		}
	}

	provider := s.router.SelectGateway(req.CountryCode)
	resp, err := s.dispatch(ctx, provider, "payment", func(ctx context.Context, adapter gateway.Adapter) (*gateway.Response, error) {
		return adapter.ProcessPayment(ctx, req.toDomain())
	})
	if err != nil {
		// Release the key so the caller can retry the same order.
		if s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, req.OrderID, moduleKey); delErr != nil {
				s.logger.Warn("idempotency rollback failed", slog.Any("error", delErr), slog.String("order", req.OrderID))
			}
		}
		return nil, err
	}
	return resp, nil
}

// RefundPayment authorizes and dispatches a refund. Routing follows the
// transaction currency since refunds carry no country.
func (s *Service) RefundPayment(ctx context.Context, req CreateRefundRequest) (*gateway.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	principal := shared.PrincipalFromContext(ctx)
	decision := s.evaluator.AuthorizeRefund(ctx, principal, authz.Request{
		Amount:        req.Amount,
		Currency:      req.Currency,
		TransactionID: req.TransactionID,
		Domain:        rbac.Domain(req.Domain),
	})
	if !decision.Granted {
		return nil, fmt.Errorf("%w: %s", shared.ErrAuthorizationDenied, decision.Reason)
	}

	provider := s.router.SelectGatewayByCurrency(req.Currency)
	return s.dispatch(ctx, provider, "refund", func(ctx context.Context, adapter gateway.Adapter) (*gateway.Response, error) {
		return adapter.RefundPayment(ctx, req.toDomain())
	})
}

// CapturePayment authorizes and dispatches a capture of an authorized payment.
func (s *Service) CapturePayment(ctx context.Context, req CreateCaptureRequest) (*gateway.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	principal := shared.PrincipalFromContext(ctx)
	decision := s.evaluator.AuthorizeCapture(ctx, principal, authz.Request{
		Amount:        req.Amount,
		Currency:      req.Currency,
		TransactionID: req.TransactionID,
		Domain:        rbac.Domain(req.Domain),
	})
	if !decision.Granted {
		return nil, fmt.Errorf("%w: %s", shared.ErrAuthorizationDenied, decision.Reason)
	}

	provider := s.router.SelectGatewayByCurrency(req.Currency)
	return s.dispatch(ctx, provider, "capture", func(ctx context.Context, adapter gateway.Adapter) (*gateway.Response, error) {
		return adapter.CapturePayment(ctx, req.TransactionID, req.Amount)
	})
}

// InitiatePayout authorizes, deduplicates and dispatches a single payout.
func (s *Service) InitiatePayout(ctx context.Context, req CreatePayoutRequest) (*gateway.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	principal := shared.PrincipalFromContext(ctx)
	decision := s.evaluator.AuthorizePayout(ctx, principal, authz.Request{
		Amount:   req.Amount,
		Currency: req.Currency,
		OrderID:  req.Reference,
		Domain:   rbac.Domain(req.Domain),
	})
	if !decision.Granted {
		return nil, fmt.Errorf("%w: %s", shared.ErrAuthorizationDenied, decision.Reason)
	}

	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, req.Reference, "payouts"); err != nil {
			return nil, err
		}
	}

	provider := s.routePayout(req)
	resp, err := s.dispatch(ctx, provider, "payout", func(ctx context.Context, adapter gateway.Adapter) (*gateway.Response, error) {
		return adapter.InitiatePayout(ctx, req.toDomain())
	})
	if err != nil {
		if s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, req.Reference, "payouts"); delErr != nil {
				s.logger.Warn("idempotency rollback failed", slog.Any("error", delErr), slog.String("reference", req.Reference))
			}
		}
		return nil, err
	}
	return resp, nil
}

// BatchPayout dispatches every payout independently. One failing entry never
// aborts the rest; the result reports per-entry outcomes in input order.
func (s *Service) BatchPayout(ctx context.Context, req BatchPayoutRequest) (*BatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	results := make([]PayoutOutcome, len(req.Payouts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, payout := range req.Payouts {
		i, payout := i, payout
		g.Go(func() error {
			resp, err := s.InitiatePayout(gctx, payout)
			outcome := PayoutOutcome{Reference: payout.Reference}
			if err != nil {
				outcome.ErrorCode = ErrorCode(err)
				outcome.Message = err.Error()
			} else {
				outcome.Success = true
				outcome.TransactionID = resp.TransactionID
			}
			mu.Lock()
			results[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &BatchResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

// GetPaymentStatus queries the provider, falling back to the last-known
// cached status when the provider is unreachable.
func (s *Service) GetPaymentStatus(ctx context.Context, provider gateway.ProviderID, transactionID string) (*StatusResult, error) {
	if transactionID == "" {
		return nil, &shared.ValidationError{Field: "transactionId", Message: "required"}
	}

	adapter, err := s.registry.Get(ctx, provider)
	if err == nil {
		exec := s.guard.Executor(statusDown(provider))
		result, execErr := exec.Execute(ctx, func(ctx context.Context) (any, error) {
			return adapter.GetPaymentStatus(ctx, transactionID)
		})
		if execErr == nil {
			status := result.(gateway.Status)
			if cacheErr := s.cache.Store(ctx, provider, transactionID, status); cacheErr != nil {
				s.logger.Warn("status cache write failed", slog.Any("error", cacheErr))
			}
			s.observe(provider, "status", nil)
			return &StatusResult{TransactionID: transactionID, Status: status}, nil
		}
		err = execErr
	}

	cached, ok, cacheErr := s.cache.Get(ctx, provider, transactionID)
	if cacheErr != nil {
		s.logger.Warn("status cache read failed", slog.Any("error", cacheErr))
	}
	if ok {
		s.logger.Warn("serving last-known payment status",
			slog.String("provider", string(provider)),
			slog.String("transaction", transactionID),
			slog.Any("cause", err),
		)
		s.observe(provider, "status", nil)
		return &StatusResult{TransactionID: transactionID, Status: cached, Degraded: true}, nil
	}
	s.observe(provider, "status", err)
	return nil, err
}

// dispatch resolves the adapter and runs the call through the provider's
// resilience pipeline.
func (s *Service) dispatch(ctx context.Context, provider gateway.ProviderID, operation string, call func(ctx context.Context, adapter gateway.Adapter) (*gateway.Response, error)) (*gateway.Response, error) {
	adapter, err := s.registry.Get(ctx, provider)
	if err != nil {
		s.observe(provider, operation, err)
		return nil, err
	}

	exec := s.guard.Executor(downstream(provider))
	result, err := exec.Execute(ctx, func(ctx context.Context) (any, error) {
		return call(ctx, adapter)
	})
	s.observe(provider, operation, err)
	if err != nil {
		s.logger.Error("dispatch failed",
			slog.String("provider", string(provider)),
			slog.String("operation", operation),
			slog.Any("error", err),
		)
		return nil, err
	}

	resp := result.(*gateway.Response)
	if resp.TransactionID != "" {
		if cacheErr := s.cache.Store(ctx, provider, resp.TransactionID, resp.Status); cacheErr != nil {
			s.logger.Warn("status cache write failed", slog.Any("error", cacheErr))
		}
	}
	return resp, nil
}

// routePayout routes by country when the request names one, else by currency.
func (s *Service) routePayout(req CreatePayoutRequest) gateway.ProviderID {
	if req.CountryCode != "" {
		return s.router.SelectGateway(req.CountryCode)
	}
	return s.router.SelectGatewayByCurrency(req.Currency)
}

// ErrorCode maps an error chain to a stable machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, shared.ErrValidation):
		return "validation_error"
	case errors.Is(err, shared.ErrAuthorizationDenied):
		return "authorization_denied"
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return "duplicate_request"
	case errors.Is(err, shared.ErrUnsupportedGateway):
		return "unsupported_gateway"
	case errors.Is(err, shared.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, resilience.ErrBulkheadFull):
		return "too_many_requests"
	case errors.Is(err, shared.ErrUnsupportedOperation):
		return "unsupported_operation"
	case errors.Is(err, shared.ErrProvider):
		return "provider_error"
	case errors.Is(err, shared.ErrFallbackUnavailable):
		return "downstream_unavailable"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
