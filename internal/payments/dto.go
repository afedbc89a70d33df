package payments

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/rbac"
	"github.com/payflow/payflow/internal/shared"
)

// AddressRequest is a billing or shipping address on an inbound request.
type AddressRequest struct {
	Line1      string `json:"line1" validate:"required,max=100"`
	Line2      string `json:"line2,omitempty" validate:"max=100"`
	City       string `json:"city" validate:"required,max=50"`
	State      string `json:"state,omitempty" validate:"max=50"`
	PostalCode string `json:"postalCode,omitempty" validate:"max=20"`
	Country    string `json:"country" validate:"required,min=2,max=3"`
}

// CreatePaymentRequest is the inbound payload for POST /api/payments.
type CreatePaymentRequest struct {
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency" validate:"required,len=3,uppercase"`
	OrderID         string            `json:"orderId" validate:"required,max=64"`
	CustomerID      string            `json:"customerId" validate:"required,max=64"`
	CustomerEmail   string            `json:"customerEmail" validate:"required,email"`
	CountryCode     string            `json:"countryCode" validate:"required,min=2,max=3,uppercase"`
	PaymentMethod   string            `json:"paymentMethod,omitempty" validate:"max=40"`
	Description     string            `json:"description,omitempty" validate:"max=500"`
	Domain          string            `json:"domain,omitempty" validate:"omitempty,oneof=SOCIAL_COMMERCE WAREHOUSING COURIER_SERVICES"`
	Metadata        map[string]string `json:"metadata,omitempty" validate:"omitempty,max=10,dive,keys,max=50,endkeys,max=200"`
	BillingAddress  *AddressRequest   `json:"billingAddress,omitempty"`
	ShippingAddress *AddressRequest   `json:"shippingAddress,omitempty"`
}

// CreateRefundRequest reverses all or part of an existing transaction.
type CreateRefundRequest struct {
	TransactionID string          `json:"transactionId" validate:"required,max=128"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3,uppercase"`
	Reason        string          `json:"reason,omitempty" validate:"max=500"`
	Domain        string          `json:"domain,omitempty" validate:"omitempty,oneof=SOCIAL_COMMERCE WAREHOUSING COURIER_SERVICES"`
}

// CreateCaptureRequest settles a previously authorized payment.
type CreateCaptureRequest struct {
	TransactionID string          `json:"transactionId" validate:"required,max=128"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3,uppercase"`
	Domain        string          `json:"domain,omitempty" validate:"omitempty,oneof=SOCIAL_COMMERCE WAREHOUSING COURIER_SERVICES"`
}

// CreatePayoutRequest moves funds to an external recipient.
type CreatePayoutRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3,uppercase"`
	Reference     string          `json:"reference" validate:"required,max=64"`
	CountryCode   string          `json:"countryCode,omitempty" validate:"omitempty,min=2,max=3,uppercase"`
	RecipientID   string          `json:"recipientId,omitempty" validate:"max=64"`
	RecipientName string          `json:"recipientName" validate:"required,max=100"`
	BankCode      string          `json:"bankCode,omitempty" validate:"max=20"`
	AccountNumber string          `json:"accountNumber" validate:"required,max=34"`
	Narration     string          `json:"narration,omitempty" validate:"max=200"`
	Domain        string          `json:"domain,omitempty" validate:"omitempty,oneof=SOCIAL_COMMERCE WAREHOUSING COURIER_SERVICES"`
}

// BatchPayoutRequest carries up to 100 payouts dispatched independently.
type BatchPayoutRequest struct {
	Payouts []CreatePayoutRequest `json:"payouts" validate:"required,min=1,max=100,dive"`
}

// validateAmount enforces the shared monetary constraints: strictly positive,
// at most two decimal places, within the global ceiling.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &shared.ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if amount.Exponent() < -2 {
		return &shared.ValidationError{Field: "amount", Message: "at most two decimal places"}
	}
	if amount.GreaterThan(rbac.GlobalCeiling) {
		return &shared.ValidationError{Field: "amount", Message: "exceeds the global transaction ceiling"}
	}
	return nil
}

// validateCurrency requires a known ISO 4217 code.
func validateCurrency(code string) error {
	if _, err := currency.ParseISO(code); err != nil {
		return &shared.ValidationError{Field: "currency", Message: "unknown ISO 4217 currency"}
	}
	return nil
}

// validateCountry requires a known ISO 3166-1 alpha-2 or alpha-3 region.
func validateCountry(field, code string) error {
	if code == "" {
		return nil
	}
	if _, err := language.ParseRegion(code); err != nil {
		return &shared.ValidationError{Field: field, Message: "unknown ISO 3166-1 country code"}
	}
	return nil
}

// Validate runs the semantic checks the struct tags cannot express.
func (r CreatePaymentRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if err := validateCurrency(r.Currency); err != nil {
		return err
	}
	if err := validateCountry("countryCode", r.CountryCode); err != nil {
		return err
	}
	if r.BillingAddress != nil {
		if err := validateCountry("billingAddress.country", r.BillingAddress.Country); err != nil {
			return err
		}
	}
	if r.ShippingAddress != nil {
		if err := validateCountry("shippingAddress.country", r.ShippingAddress.Country); err != nil {
			return err
		}
	}
	return nil
}

// Validate runs the semantic checks the struct tags cannot express.
func (r CreateRefundRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	return validateCurrency(r.Currency)
}

// Validate runs the semantic checks the struct tags cannot express.
func (r CreateCaptureRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	return validateCurrency(r.Currency)
}

// Validate runs the semantic checks the struct tags cannot express.
func (r CreatePayoutRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if err := validateCurrency(r.Currency); err != nil {
		return err
	}
	return validateCountry("countryCode", r.CountryCode)
}

// Validate checks every payout in the batch. References must be unique so
// partial-failure reporting can name each entry unambiguously.
func (r BatchPayoutRequest) Validate() error {
	seen := make(map[string]struct{}, len(r.Payouts))
	for _, p := range r.Payouts {
		if err := p.Validate(); err != nil {
			return &shared.ValidationError{
				Field:   "payouts",
				Message: "entry " + p.Reference + " invalid: " + err.Error(),
			}
		}
		ref := strings.TrimSpace(p.Reference)
		if _, dup := seen[ref]; dup {
			return &shared.ValidationError{Field: "payouts", Message: "duplicate reference " + ref}
		}
		seen[ref] = struct{}{}
	}
	return nil
}

func (a *AddressRequest) toDomain() *gateway.Address {
	if a == nil {
		return nil
	}
	return &gateway.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    strings.ToUpper(a.Country),
	}
}

func (r CreatePaymentRequest) toDomain() gateway.PaymentRequest {
	return gateway.PaymentRequest{
		Amount:          r.Amount,
		Currency:        strings.ToUpper(r.Currency),
		OrderID:         r.OrderID,
		CustomerID:      r.CustomerID,
		CustomerEmail:   r.CustomerEmail,
		CountryCode:     strings.ToUpper(r.CountryCode),
		PaymentMethod:   r.PaymentMethod,
		Description:     r.Description,
		Metadata:        r.Metadata,
		BillingAddress:  r.BillingAddress.toDomain(),
		ShippingAddress: r.ShippingAddress.toDomain(),
	}
}

func (r CreateRefundRequest) toDomain() gateway.RefundRequest {
	return gateway.RefundRequest{
		TransactionID: r.TransactionID,
		Amount:        r.Amount,
		Currency:      strings.ToUpper(r.Currency),
		Reason:        r.Reason,
	}
}

func (r CreatePayoutRequest) toDomain() gateway.PayoutRequest {
	return gateway.PayoutRequest{
		Amount:        r.Amount,
		Currency:      strings.ToUpper(r.Currency),
		Reference:     r.Reference,
		RecipientID:   r.RecipientID,
		RecipientName: r.RecipientName,
		BankCode:      r.BankCode,
		AccountNumber: r.AccountNumber,
		Narration:     r.Narration,
	}
}
