package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates API key authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation indicates a malformed request field.
	ErrValidation = errors.New("validation failed")
	// ErrAuthorizationDenied indicates a role/permission/limit failure. Always fail-closed.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrUnsupportedGateway indicates an unknown or unavailable payment provider.
	ErrUnsupportedGateway = errors.New("unsupported gateway")
	// ErrCircuitOpen indicates the downstream circuit is currently tripped.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrProvider indicates the downstream call failed after retries.
	ErrProvider = errors.New("provider error")
	// ErrFallbackUnavailable indicates no degraded path is registered for the downstream.
	ErrFallbackUnavailable = errors.New("fallback not available")
	// ErrWebhookVerification indicates a webhook payload failed signature verification.
	ErrWebhookVerification = errors.New("webhook verification failed")
	// ErrUnsupportedOperation indicates the provider does not implement the operation.
	ErrUnsupportedOperation = errors.New("operation not supported by provider")
)

// ValidationError carries the offending field alongside ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Unwrap links the error into the ErrValidation chain.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// ProviderError wraps a downstream failure with provider context.
type ProviderError struct {
	Provider  string
	Code      string
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s (%s)", e.Provider, e.Message, e.Code)
}

// Unwrap links the error into the ErrProvider chain.
func (e *ProviderError) Unwrap() error { return ErrProvider }

// IsRetryable reports whether the provider marked the failure transient.
func (e *ProviderError) IsRetryable() bool { return e.Retryable }
