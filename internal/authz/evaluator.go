package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payflow/payflow/internal/rbac"
	"github.com/payflow/payflow/internal/shared"
)

// Operation identifies the action being authorized.
type Operation string

const (
	OpProcessPayment Operation = "payment.process"
	OpRefundPayment  Operation = "payment.refund"
	OpCapturePayment Operation = "payment.capture"
	OpInitiatePayout Operation = "payout.initiate"
)

// Reason codes attached to decisions.
const (
	ReasonGranted            = "granted"
	ReasonSuperAdmin         = "super_admin"
	ReasonExplicitPermission = "explicit_permission"
	ReasonUnauthenticated    = "unauthenticated"
	ReasonInvalidAmount      = "invalid_amount"
	ReasonAmountExceedsLimit = "amount_exceeds_limit"
	ReasonDomainDenied       = "domain_denied"
	ReasonNotResourceOwner   = "not_resource_owner"
	ReasonEvaluationError    = "evaluation_error"
)

// SuperAdminPermission short-circuits every check when held.
const SuperAdminPermission = "PERM_SUPER_ADMIN"

// Decision is the outcome of an authorization evaluation.
type Decision struct {
	Granted bool
	Reason  string
}

func deny(reason string) Decision  { return Decision{Granted: false, Reason: reason} }
func grant(reason string) Decision { return Decision{Granted: true, Reason: reason} }

// Request carries the operation facts the evaluator needs.
type Request struct {
	Operation     Operation
	Amount        decimal.Decimal
	Currency      string
	OrderID       string
	TransactionID string
	// Domain, when set, overrides prefix-based classification.
	Domain rbac.Domain
}

// PermissionReader is the subset of the permission store the evaluator uses.
type PermissionReader interface {
	HasPermission(ctx context.Context, principalID, permName string) (bool, error)
	IsOwner(ctx context.Context, principalID, transactionID string) (bool, error)
}

// AuditSink receives one structured event per evaluation.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Evaluator combines the role hierarchy, monetary limits and permission facts
// into grant/deny decisions. Evaluation is fail-closed: any internal error or
// panic yields a denial, never a grant.
type Evaluator struct {
	hierarchy  *rbac.Hierarchy
	limits     *rbac.MonetaryLimits
	perms      PermissionReader
	classifier *DomainClassifier
	audit      AuditSink
	logger     *slog.Logger
}

// NewEvaluator constructs the evaluator. audit may be nil in tests.
func NewEvaluator(hierarchy *rbac.Hierarchy, limits *rbac.MonetaryLimits, perms PermissionReader, classifier *DomainClassifier, audit AuditSink, logger *slog.Logger) *Evaluator {
	if classifier == nil {
		classifier = NewDomainClassifier(DefaultPrefixes(), rbac.DomainSocialCommerce)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		hierarchy:  hierarchy,
		limits:     limits,
		perms:      perms,
		classifier: classifier,
		audit:      audit,
		logger:     logger,
	}
}

// AuthorizePayment evaluates a payment operation.
func (e *Evaluator) AuthorizePayment(ctx context.Context, principal *shared.Principal, req Request) Decision {
	req.Operation = OpProcessPayment
	return e.authorize(ctx, principal, req, rbac.ClassPayment)
}

// AuthorizeRefund evaluates a refund against an existing transaction.
func (e *Evaluator) AuthorizeRefund(ctx context.Context, principal *shared.Principal, req Request) Decision {
	req.Operation = OpRefundPayment
	return e.authorize(ctx, principal, req, rbac.ClassPayment)
}

// AuthorizeCapture evaluates a capture against an existing transaction.
func (e *Evaluator) AuthorizeCapture(ctx context.Context, principal *shared.Principal, req Request) Decision {
	req.Operation = OpCapturePayment
	return e.authorize(ctx, principal, req, rbac.ClassPayment)
}

// AuthorizePayout evaluates a payout operation.
func (e *Evaluator) AuthorizePayout(ctx context.Context, principal *shared.Principal, req Request) Decision {
	req.Operation = OpInitiatePayout
	return e.authorize(ctx, principal, req, rbac.ClassPayout)
}

func (e *Evaluator) authorize(ctx context.Context, principal *shared.Principal, req Request, class rbac.OperationClass) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("authorization panic", slog.Any("panic", r), slog.String("operation", string(req.Operation)))
			decision = deny(ReasonEvaluationError)
		}
		e.emit(ctx, principal, req, decision)
	}()

	if !principal.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if !req.Amount.IsPositive() {
		return deny(ReasonInvalidAmount)
	}
	if req.Amount.GreaterThan(rbac.GlobalCeiling) {
		return deny(ReasonAmountExceedsLimit)
	}

	// Super-admin capability short-circuits everything else.
	if ok, err := e.perms.HasPermission(ctx, principal.ID, SuperAdminPermission); err == nil && ok {
		return grant(ReasonSuperAdmin)
	} else if err != nil {
		e.logger.Warn("permission lookup failed", slog.Any("error", err), slog.String("principal", principal.ID))
	}

	domain := e.classifier.Classify(req.Domain, req.OrderID, req.TransactionID)

	// Authorization is the OR of the explicit-permission path and the
	// role-hierarchy path.
	if e.explicitPermission(ctx, principal, req, domain) {
		return grant(ReasonExplicitPermission)
	}
	return e.rolePath(ctx, principal, req, domain, class)
}

// explicitPermission checks the direct and domain-qualified capability names.
// Errors deny the path rather than surfacing.
func (e *Evaluator) explicitPermission(ctx context.Context, principal *shared.Principal, req Request, domain rbac.Domain) bool {
	for _, name := range []string{
		directPermission(req.Operation),
		qualifiedPermission(domain, req.Operation),
	} {
		ok, err := e.perms.HasPermission(ctx, principal.ID, name)
		if err != nil {
			e.logger.Warn("permission lookup failed", slog.Any("error", err), slog.String("permission", name))
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func (e *Evaluator) rolePath(ctx context.Context, principal *shared.Principal, req Request, domain rbac.Domain, class rbac.OperationClass) Decision {
	ceiling := e.limits.EffectiveCeiling(principal.Roles, class)
	if req.Amount.GreaterThan(ceiling) {
		return deny(ReasonAmountExceedsLimit)
	}

	if !e.domainAccess(principal.Roles, domain) {
		return deny(ReasonDomainDenied)
	}

	if req.TransactionID != "" {
		allowed, err := e.resourceAccess(ctx, principal, req.TransactionID, domain)
		if err != nil {
			e.logger.Warn("ownership lookup failed", slog.Any("error", err), slog.String("transaction", req.TransactionID))
			return deny(ReasonEvaluationError)
		}
		if !allowed {
			return deny(ReasonNotResourceOwner)
		}
	}
	return grant(ReasonGranted)
}

// domainAccess requires a GLOBAL role or membership in the request's domain.
func (e *Evaluator) domainAccess(roles []string, domain rbac.Domain) bool {
	for _, role := range roles {
		if e.hierarchy.HasDomainRole(role, domain) {
			return true
		}
	}
	return false
}

// resourceAccess grants when the principal owns the transaction or holds a
// manager/admin role for its owning domain.
func (e *Evaluator) resourceAccess(ctx context.Context, principal *shared.Principal, transactionID string, domain rbac.Domain) (bool, error) {
	owner, err := e.perms.IsOwner(ctx, principal.ID, transactionID)
	if err != nil {
		return false, err
	}
	if owner {
		return true, nil
	}
	for _, role := range principal.Roles {
		if e.hierarchy.IsDomainAdmin(role, domain) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) emit(ctx context.Context, principal *shared.Principal, req Request, decision Decision) {
	principalID := ""
	if principal != nil {
		principalID = principal.ID
	}
	e.logger.Info("authorization decision",
		slog.String("principal", principalID),
		slog.String("operation", string(req.Operation)),
		slog.String("amount", req.Amount.String()),
		slog.String("currency", req.Currency),
		slog.Bool("granted", decision.Granted),
		slog.String("reason", decision.Reason),
	)
	if e.audit == nil {
		return
	}
	entityID := req.TransactionID
	if entityID == "" {
		entityID = req.OrderID
	}
	if entityID == "" {
		entityID = "-"
	}
	err := e.audit.Record(ctx, shared.AuditLog{
		PrincipalID: principalID,
		Action:      string(req.Operation),
		Entity:      "payment_operation",
		EntityID:    entityID,
		Meta: map[string]any{
			"amount":   req.Amount.String(),
			"currency": req.Currency,
			"granted":  decision.Granted,
			"reason":   decision.Reason,
		},
		At: time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

func directPermission(op Operation) string {
	switch op {
	case OpProcessPayment:
		return "PERM_PAYMENT_PROCESS"
	case OpRefundPayment:
		return "PERM_PAYMENT_REFUND"
	case OpCapturePayment:
		return "PERM_PAYMENT_CAPTURE"
	case OpInitiatePayout:
		return "PERM_PAYOUT_INITIATE"
	}
	return fmt.Sprintf("PERM_%s", op)
}

func qualifiedPermission(domain rbac.Domain, op Operation) string {
	switch op {
	case OpProcessPayment:
		return fmt.Sprintf("PERM_%s_PAYMENT_PROCESS", domain)
	case OpRefundPayment:
		return fmt.Sprintf("PERM_%s_PAYMENT_REFUND", domain)
	case OpCapturePayment:
		return fmt.Sprintf("PERM_%s_PAYMENT_CAPTURE", domain)
	case OpInitiatePayout:
		return fmt.Sprintf("PERM_%s_PAYOUT_INITIATE", domain)
	}
	return fmt.Sprintf("PERM_%s_%s", domain, op)
}
