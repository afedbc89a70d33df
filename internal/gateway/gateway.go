package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProviderID names a payment provider backend.
type ProviderID string

const (
	// ProviderStratus is the global card provider.
	ProviderStratus ProviderID = "stratus"
	// ProviderPaystack is the African regional provider.
	ProviderPaystack ProviderID = "paystack"
)

// Status is the normalized transaction state across providers.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
	StatusUnknown    Status = "UNKNOWN"
)

// Address is a billing or shipping address.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// PaymentRequest is the provider-agnostic payment input.
type PaymentRequest struct {
	Amount          decimal.Decimal
	Currency        string
	OrderID         string
	CustomerID      string
	CustomerEmail   string
	CountryCode     string
	PaymentMethod   string
	Description     string
	Metadata        map[string]string
	BillingAddress  *Address
	ShippingAddress *Address
}

// RefundRequest reverses all or part of an existing transaction.
type RefundRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Reason        string
}

// PayoutRequest moves funds to an external recipient.
type PayoutRequest struct {
	Amount        decimal.Decimal
	Currency      string
	Reference     string
	RecipientID   string
	RecipientName string
	BankCode      string
	AccountNumber string
	Narration     string
}

// CardDetails is the tokenization input. Raw card data never appears in logs.
type CardDetails struct {
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CVV         string
	HolderName  string
}

// Token is an opaque reusable payment credential.
type Token struct {
	Value    string
	Provider ProviderID
	Last4    string
}

// Response is the normalized provider result.
type Response struct {
	Success       bool
	TransactionID string
	Reference     string
	Provider      ProviderID
	Amount        decimal.Decimal
	Currency      string
	Status        Status
	Message       string
}

// WebhookEvent is a provider notification after verification and parsing.
type WebhookEvent struct {
	Provider      ProviderID
	Type          string
	TransactionID string
	Reference     string
	Status        Status
}

// Adapter is the capability contract every provider backend implements.
type Adapter interface {
	ID() ProviderID
	ProcessPayment(ctx context.Context, req PaymentRequest) (*Response, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*Response, error)
	CapturePayment(ctx context.Context, transactionID string, amount decimal.Decimal) (*Response, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
	ProcessWebhook(ctx context.Context, payload []byte) (*WebhookEvent, error)
	GetPaymentStatus(ctx context.Context, transactionID string) (Status, error)
	CreateToken(ctx context.Context, card CardDetails) (*Token, error)
	InitiatePayout(ctx context.Context, req PayoutRequest) (*Response, error)
	SupportedPaymentMethods() []string
	SupportedCurrencies() []string
	IsAvailable(ctx context.Context) bool
}
