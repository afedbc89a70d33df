// Package stratus implements the global card provider backend.
package stratus

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/shared"
)

// signatureTolerance bounds webhook timestamp skew.
const signatureTolerance = 5 * time.Minute

// Config holds provider credentials and endpoints.
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
}

// Adapter talks to the Stratus REST API.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// New constructs the adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// ID implements gateway.Adapter.
func (a *Adapter) ID() gateway.ProviderID { return gateway.ProviderStratus }

type chargeRequest struct {
	AmountMinor   int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Reference     string            `json:"reference"`
	CustomerID    string            `json:"customer_id"`
	CustomerEmail string            `json:"customer_email"`
	Method        string            `json:"method,omitempty"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type apiResponse struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
}

// ProcessPayment charges the customer. The idempotency key is derived from the
// order id so provider-side retries are safe.
func (a *Adapter) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
	body := chargeRequest{
		AmountMinor:   gateway.ToMinorUnit(req.Amount, req.Currency),
		Currency:      strings.ToLower(req.Currency),
		Reference:     req.OrderID,
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		Method:        req.PaymentMethod,
		Description:   req.Description,
		Metadata:      req.Metadata,
	}
	var out apiResponse
	if err := a.post(ctx, "/v1/charges", body, idempotencyKey(req.OrderID), &out); err != nil {
		return nil, err
	}
	return a.toResponse(out), nil
}

// RefundPayment reverses a charge, fully or partially.
func (a *Adapter) RefundPayment(ctx context.Context, req gateway.RefundRequest) (*gateway.Response, error) {
	body := map[string]any{
		"charge_id": req.TransactionID,
		"amount":    gateway.ToMinorUnit(req.Amount, req.Currency),
		"currency":  strings.ToLower(req.Currency),
		"reason":    req.Reason,
	}
	var out apiResponse
	if err := a.post(ctx, "/v1/refunds", body, idempotencyKey("refund:"+req.TransactionID), &out); err != nil {
		return nil, err
	}
	return a.toResponse(out), nil
}

// CapturePayment settles a previously authorized charge.
func (a *Adapter) CapturePayment(ctx context.Context, transactionID string, amount decimal.Decimal) (*gateway.Response, error) {
	// The charge currency lives provider-side, so the amount is sent in major
	// units and scaled by the provider.
	body := map[string]any{
		"amount": amount.String(),
	}
	var out apiResponse
	path := fmt.Sprintf("/v1/charges/%s/capture", transactionID)
	if err := a.post(ctx, path, body, idempotencyKey("capture:"+transactionID), &out); err != nil {
		return nil, err
	}
	return a.toResponse(out), nil
}

// VerifyWebhookSignature checks the "t=<unix>,v1=<hex>" signature header
// against HMAC-SHA256 of "<t>.<payload>" keyed by the webhook secret. The
// check runs on byte-exact payload content before any deserialization and
// rejects on any malformation.
func (a *Adapter) VerifyWebhookSignature(payload []byte, signature string) bool {
	var ts, v1 string
	for _, part := range strings.Split(signature, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return false
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if d := a.now().Sub(time.Unix(unix, 0)); d > signatureTolerance || d < -signatureTolerance {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected, err := hex.DecodeString(v1)
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), expected)
}

type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// ProcessWebhook parses a verified payload into a normalized event.
func (a *Adapter) ProcessWebhook(ctx context.Context, payload []byte) (*gateway.WebhookEvent, error) {
	var event webhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrWebhookVerification, err)
	}
	return &gateway.WebhookEvent{
		Provider:      gateway.ProviderStratus,
		Type:          event.Type,
		TransactionID: event.Data.ID,
		Reference:     event.Data.Reference,
		Status:        mapStatus(event.Data.Status),
	}, nil
}

// GetPaymentStatus fetches the current charge state.
func (a *Adapter) GetPaymentStatus(ctx context.Context, transactionID string) (gateway.Status, error) {
	var out apiResponse
	if err := a.get(ctx, fmt.Sprintf("/v1/charges/%s", transactionID), &out); err != nil {
		return gateway.StatusUnknown, err
	}
	return mapStatus(out.Status), nil
}

// CreateToken exchanges card details for a reusable token.
func (a *Adapter) CreateToken(ctx context.Context, card gateway.CardDetails) (*gateway.Token, error) {
	body := map[string]string{
		"number":    card.Number,
		"exp_month": card.ExpiryMonth,
		"exp_year":  card.ExpiryYear,
		"cvv":       card.CVV,
		"name":      card.HolderName,
	}
	var out struct {
		Token string `json:"token"`
		Last4 string `json:"last4"`
	}
	if err := a.post(ctx, "/v1/tokens", body, "", &out); err != nil {
		return nil, err
	}
	return &gateway.Token{Value: out.Token, Provider: gateway.ProviderStratus, Last4: out.Last4}, nil
}

// InitiatePayout transfers funds to an external account.
func (a *Adapter) InitiatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Response, error) {
	body := map[string]any{
		"amount":    gateway.ToMinorUnit(req.Amount, req.Currency),
		"currency":  strings.ToLower(req.Currency),
		"reference": req.Reference,
		"recipient": req.RecipientID,
	}
	var out apiResponse
	if err := a.post(ctx, "/v1/payouts", body, idempotencyKey("payout:"+req.Reference), &out); err != nil {
		return nil, err
	}
	return a.toResponse(out), nil
}

// SupportedPaymentMethods implements gateway.Adapter.
func (a *Adapter) SupportedPaymentMethods() []string {
	return []string{"card", "bank_transfer", "wallet"}
}

// SupportedCurrencies implements gateway.Adapter.
func (a *Adapter) SupportedCurrencies() []string {
	return []string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY", "SGD", "CHF", "SEK", "NOK"}
}

// IsAvailable probes the provider health endpoint.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", a.cfg.BaseURL), nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode < 400
}

func (a *Adapter) post(ctx context.Context, path string, body any, idemKey string, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	return a.do(req, out)
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	return a.do(req, out)
}

func (a *Adapter) do(req *http.Request, out any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &shared.ProviderError{
			Provider:  string(gateway.ProviderStratus),
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
		return &shared.ProviderError{
			Provider:  string(gateway.ProviderStratus),
			Code:      "read_error",
			Message:   err.Error(),
			Retryable: true,
		}
	}
	if resp.StatusCode >= 400 {
		var apiErr apiResponse
		_ = json.Unmarshal(data, &apiErr)
		code := apiErr.ErrorCode
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return &shared.ProviderError{
			Provider:  string(gateway.ProviderStratus),
			Code:      code,
			Message:   apiErr.Message,
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	return json.Unmarshal(data, out)
}

func (a *Adapter) toResponse(out apiResponse) *gateway.Response {
	status := mapStatus(out.Status)
	return &gateway.Response{
		Success:       status == gateway.StatusSucceeded || status == gateway.StatusAuthorized || status == gateway.StatusPending,
		TransactionID: out.ID,
		Reference:     out.Reference,
		Provider:      gateway.ProviderStratus,
		Amount:        gateway.FromMinorUnit(out.AmountMinor, out.Currency),
		Currency:      strings.ToUpper(out.Currency),
		Status:        status,
		Message:       out.Message,
	}
}

func mapStatus(s string) gateway.Status {
	switch strings.ToLower(s) {
	case "pending", "processing":
		return gateway.StatusPending
	case "authorized", "requires_capture":
		return gateway.StatusAuthorized
	case "succeeded", "paid", "captured":
		return gateway.StatusSucceeded
	case "failed", "canceled", "declined":
		return gateway.StatusFailed
	case "refunded", "reversed":
		return gateway.StatusRefunded
	}
	return gateway.StatusUnknown
}

// idempotencyKey derives a stable UUID from the logical operation reference.
func idempotencyKey(reference string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("payflow:"+reference)).String()
}
