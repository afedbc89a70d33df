// Package paystack implements the African regional provider backend.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/shared"
)

// Config holds provider credentials and endpoints.
type Config struct {
	BaseURL   string
	SecretKey string
}

// Adapter talks to the Paystack-style REST API.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// New constructs the adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ID implements gateway.Adapter.
func (a *Adapter) ID() gateway.ProviderID { return gateway.ProviderPaystack }

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transactionData struct {
	ID          int64  `json:"id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// ProcessPayment initializes a transaction. The order id doubles as the
// provider reference, which makes provider-side retries idempotent.
func (a *Adapter) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
	body := map[string]any{
		"amount":    gateway.ToMinorUnit(req.Amount, req.Currency),
		"currency":  strings.ToUpper(req.Currency),
		"reference": req.OrderID,
		"email":     req.CustomerEmail,
		"metadata":  req.Metadata,
	}
	if req.PaymentMethod != "" {
		body["channels"] = []string{req.PaymentMethod}
	}
	data, err := a.post(ctx, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}
	return a.toResponse(data)
}

// RefundPayment issues a refund for a settled transaction.
func (a *Adapter) RefundPayment(ctx context.Context, req gateway.RefundRequest) (*gateway.Response, error) {
	body := map[string]any{
		"transaction":   req.TransactionID,
		"amount":        gateway.ToMinorUnit(req.Amount, req.Currency),
		"currency":      strings.ToUpper(req.Currency),
		"merchant_note": req.Reason,
	}
	data, err := a.post(ctx, "/refund", body)
	if err != nil {
		return nil, err
	}
	return a.toResponse(data)
}

// CapturePayment is not a separate step on this provider; charges settle on
// authorization. A capture call verifies the transaction state instead.
func (a *Adapter) CapturePayment(ctx context.Context, transactionID string, amount decimal.Decimal) (*gateway.Response, error) {
	data, err := a.get(ctx, fmt.Sprintf("/transaction/verify/%s", transactionID))
	if err != nil {
		return nil, err
	}
	return a.toResponse(data)
}

// VerifyWebhookSignature checks the hex HMAC-SHA512 of the raw payload keyed
// by the secret key, byte-exact and before any deserialization. Any
// malformation rejects.
func (a *Adapter) VerifyWebhookSignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(a.cfg.SecretKey))
	mac.Write(payload)
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), expected)
}

type webhookPayload struct {
	Event string          `json:"event"`
	Data  transactionData `json:"data"`
}

// ProcessWebhook parses a verified payload into a normalized event.
func (a *Adapter) ProcessWebhook(ctx context.Context, payload []byte) (*gateway.WebhookEvent, error) {
	var event webhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrWebhookVerification, err)
	}
	return &gateway.WebhookEvent{
		Provider:      gateway.ProviderPaystack,
		Type:          event.Event,
		TransactionID: fmt.Sprintf("%d", event.Data.ID),
		Reference:     event.Data.Reference,
		Status:        mapStatus(event.Data.Status),
	}, nil
}

// GetPaymentStatus verifies the transaction by reference.
func (a *Adapter) GetPaymentStatus(ctx context.Context, transactionID string) (gateway.Status, error) {
	data, err := a.get(ctx, fmt.Sprintf("/transaction/verify/%s", transactionID))
	if err != nil {
		return gateway.StatusUnknown, err
	}
	var tx transactionData
	if err := json.Unmarshal(data, &tx); err != nil {
		return gateway.StatusUnknown, err
	}
	return mapStatus(tx.Status), nil
}

// CreateToken is not offered by this provider.
func (a *Adapter) CreateToken(ctx context.Context, card gateway.CardDetails) (*gateway.Token, error) {
	return nil, fmt.Errorf("%w: paystack tokenization", shared.ErrUnsupportedOperation)
}

// InitiatePayout creates a bank transfer to the recipient.
func (a *Adapter) InitiatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Response, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    gateway.ToMinorUnit(req.Amount, req.Currency),
		"currency":  strings.ToUpper(req.Currency),
		"reference": req.Reference,
		"recipient": req.RecipientID,
		"reason":    req.Narration,
	}
	data, err := a.post(ctx, "/transfer", body)
	if err != nil {
		return nil, err
	}
	return a.toResponse(data)
}

// SupportedPaymentMethods implements gateway.Adapter.
func (a *Adapter) SupportedPaymentMethods() []string {
	return []string{"card", "bank", "ussd", "mobile_money", "bank_transfer"}
}

// SupportedCurrencies implements gateway.Adapter.
func (a *Adapter) SupportedCurrencies() []string {
	return []string{"NGN", "GHS", "ZAR", "KES", "XOF", "EGP"}
}

// IsAvailable probes the provider with a lightweight authenticated call.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/bank?perPage=1", a.cfg.BaseURL), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode < 400
}

func (a *Adapter) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	return a.do(req)
}

func (a *Adapter) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	return a.do(req)
}

func (a *Adapter) do(req *http.Request) (json.RawMessage, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &shared.ProviderError{
			Provider:  string(gateway.ProviderPaystack),
			Code:      "network_error",
			Message:   err.Error(),
			Retryable: true,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &shared.ProviderError{
			Provider:  string(gateway.ProviderPaystack),
			Code:      "read_error",
			Message:   err.Error(),
			Retryable: true,
		}
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		envelope.Message = string(data)
	}
	if resp.StatusCode >= 400 || !envelope.Status {
		return nil, &shared.ProviderError{
			Provider:  string(gateway.ProviderPaystack),
			Code:      fmt.Sprintf("http_%d", resp.StatusCode),
			Message:   envelope.Message,
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	return envelope.Data, nil
}

func (a *Adapter) toResponse(data json.RawMessage) (*gateway.Response, error) {
	var tx transactionData
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, &shared.ProviderError{
			Provider: string(gateway.ProviderPaystack),
			Code:     "decode_error",
			Message:  err.Error(),
		}
	}
	status := mapStatus(tx.Status)
	return &gateway.Response{
		Success:       status == gateway.StatusSucceeded || status == gateway.StatusPending,
		TransactionID: fmt.Sprintf("%d", tx.ID),
		Reference:     tx.Reference,
		Provider:      gateway.ProviderPaystack,
		Amount:        gateway.FromMinorUnit(tx.AmountMinor, tx.Currency),
		Currency:      strings.ToUpper(tx.Currency),
		Status:        status,
	}, nil
}

func mapStatus(s string) gateway.Status {
	switch strings.ToLower(s) {
	case "pending", "ongoing", "send_otp":
		return gateway.StatusPending
	case "success", "paid":
		return gateway.StatusSucceeded
	case "failed", "abandoned", "reversed_pending":
		return gateway.StatusFailed
	case "reversed", "refunded", "processed_refund":
		return gateway.StatusRefunded
	}
	return gateway.StatusUnknown
}
