package payments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/rbac"
	"github.com/payflow/payflow/internal/shared"
)

func newTestServer(t *testing.T, env *testEnv, principal *shared.Principal) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	if principal != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), principal)))
			})
		})
	}
	r.Route("/api", func(api chi.Router) {
		NewHandler(nil, env.service).MountRoutes(api)
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func customerPrincipal() *shared.Principal {
	return &shared.Principal{ID: "u1", Roles: []string{rbac.RoleCustomer}}
}

func financePrincipal() *shared.Principal {
	return &shared.Principal{ID: "fa1", Roles: []string{rbac.RoleFinanceAdmin}}
}

func TestHandlerProcessPayment(t *testing.T) {
	env := newTestEnv(t)
	ts := newTestServer(t, env, customerPrincipal())

	resp := postJSON(t, ts.URL+"/api/payments", paymentRequest("ORD-1", "US", "USD", "49.99"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body gateway.Response
	decodeBody(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, gateway.ProviderStratus, body.Provider)
	require.Equal(t, "txn_ORD-1", body.TransactionID)
}

func TestHandlerRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	ts := newTestServer(t, env, customerPrincipal())

	resp, err := http.Post(ts.URL+"/api/payments", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerRejectsMissingFields(t *testing.T) {
	env := newTestEnv(t)
	ts := newTestServer(t, env, customerPrincipal())

	req := paymentRequest("", "US", "USD", "10")
	resp := postJSON(t, ts.URL+"/api/payments", req)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, 0, env.stratus.payCalls)
}

func TestHandlerUnauthenticatedIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	ts := newTestServer(t, env, nil)

	resp := postJSON(t, ts.URL+"/api/payments", paymentRequest("ORD-1", "US", "USD", "10"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandlerDuplicateOrderConflict(t *testing.T) {
	env := newTestEnv(t)
	ts := newTestServer(t, env, customerPrincipal())

	resp := postJSON(t, ts.URL+"/api/payments", paymentRequest("ORD-9", "US", "USD", "10"))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/payments", paymentRequest("ORD-9", "US", "USD", "10"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerBatchPayoutPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.paystack.payoutErr = map[string]error{
		"PO-2": &shared.ProviderError{Provider: "paystack", Code: "insufficient_balance", Message: "balance too low"},
	}
	ts := newTestServer(t, env, financePrincipal())

	payout := func(ref string) map[string]any {
		return map[string]any{
			"amount":        "150",
			"currency":      "NGN",
			"reference":     ref,
			"recipientName": "Ade Vendor",
			"accountNumber": "0123456789",
		}
	}
	resp := postJSON(t, ts.URL+"/api/payouts/batch", map[string]any{
		"payouts": []map[string]any{payout("PO-1"), payout("PO-2")},
	})
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	var result BatchResult
	decodeBody(t, resp, &result)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, "provider_error", result.Results[1].ErrorCode)
}

func TestHandlerPaymentStatus(t *testing.T) {
	env := newTestEnv(t)
	env.stratus.status = gateway.StatusSucceeded
	ts := newTestServer(t, env, customerPrincipal())

	resp, err := http.Get(ts.URL + "/api/payments/txn_42/status?provider=stratus")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result StatusResult
	decodeBody(t, resp, &result)
	require.Equal(t, gateway.StatusSucceeded, result.Status)
	require.False(t, result.Degraded)
}
