package conekta

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{PrivateKey: "key_test", BaseURL: srv.URL}, logger.NewNop())
}

func TestClient_Headers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("key_test:")), r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.conekta-v2.0.0+json", r.Header.Get("Accept"))
		assert.Equal(t, "/customers", r.URL.Path)
		assert.Equal(t, "ops@acme.test", r.URL.Query().Get("email"))
		_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "cus_c1", "email": "ops@acme.test", "metadata": {"stripe_customer_id": "cus_1", "team": 7}}]}`))
	})

	customers, err := c.SearchCustomersByEmail(context.Background(), "ops@acme.test")
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "cus_c1", customers[0].ID)
	assert.Equal(t, "cus_1", customers[0].Metadata[domain.MetaStripeCustomerID])
	assert.Equal(t, "7", customers[0].Metadata["team"])
}

func TestClient_CreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "invoice_in_1", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "MXN", body["currency"])
		assert.Equal(t, "cus_c1", body["customer_info"].(map[string]any)["customer_id"])
		items := body["line_items"].([]any)
		require.Len(t, items, 1)
		assert.EqualValues(t, 15000, items[0].(map[string]any)["unit_price"])
		charges := body["charges"].([]any)
		pm := charges[0].(map[string]any)["payment_method"].(map[string]any)
		assert.Equal(t, "card", pm["type"])
		assert.Equal(t, "src_1", pm["payment_source_id"])
		meta := body["metadata"].(map[string]any)
		assert.Equal(t, "in_1", meta[domain.MetaStripeInvoiceID])
		assert.Equal(t, "cus_1", meta[domain.MetaStripeCustomerID])

		_, _ = w.Write([]byte(`{
			"id": "ord_1", "amount": 15000, "currency": "MXN", "payment_status": "paid",
			"customer_info": {"customer_id": "cus_c1"},
			"metadata": {"stripe_invoice_id": "in_1", "stripe_customer_id": "cus_1"},
			"charges": {"data": [{"id": "chr_1", "amount": 15000, "currency": "MXN", "status": "paid", "created_at": 1717200000, "paid_at": 1717200005}]}
		}`))
	})

	order, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		CustomerID:      "cus_c1",
		PaymentSourceID: "src_1",
		Amount:          15000,
		Currency:        "mxn",
		IdempotencyKey:  "invoice_in_1",
		Metadata: domain.ChargeCorrelationMetadata{
			StripeCustomerID:     "cus_1",
			StripeInvoiceID:      "in_1",
			StripeSubscriptionID: "sub_1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ord_1", order.ID)
	assert.Equal(t, "mxn", order.Currency)

	charge, ok := order.FirstCharge()
	require.True(t, ok)
	assert.Equal(t, "chr_1", charge.ID)
	assert.Equal(t, domain.ChargeStatusPaid, charge.Status)
	require.NotNil(t, charge.PaidAt)
}

func TestClient_CreateOrderRejected(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode domain.RejectionCode
	}{
		{
			name:     "card declined",
			status:   http.StatusPaymentRequired,
			body:     `{"object": "error", "type": "processing_error", "details": [{"code": "conekta.errors.processing.bank.declined", "message": "La tarjeta fue declinada."}]}`,
			wantCode: domain.RejectionCardDeclined,
		},
		{
			name:     "insufficient funds",
			status:   http.StatusPaymentRequired,
			body:     `{"object": "error", "type": "processing_error", "details": [{"code": "conekta.errors.processing.bank.insufficient_funds", "message": "Fondos insuficientes."}]}`,
			wantCode: domain.RejectionInsufficientFunds,
		},
		{
			name:     "other processing error",
			status:   http.StatusUnprocessableEntity,
			body:     `{"object": "error", "type": "processing_error", "details": [{"code": "conekta.errors.processing.charge.suspected_fraud", "message": "Rechazado."}]}`,
			wantCode: domain.RejectionGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.CreateOrder(context.Background(), domain.OrderRequest{
				CustomerID: "cus_c1", PaymentSourceID: "src_1", Amount: 100, Currency: "mxn",
				Metadata: domain.ChargeCorrelationMetadata{StripeCustomerID: "cus_1", StripeInvoiceID: "in_1"},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrChargeRejected)

			var rejected *domain.ChargeRejectedError
			require.True(t, errors.As(err, &rejected))
			assert.Equal(t, tt.wantCode, rejected.Code)
			assert.Equal(t, "in_1", rejected.InvoiceID)
		})
	}
}

func TestClient_ServerErrorIsExternal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"type": "api_error", "message": "upstream"}`))
	})

	_, err := c.ListPaymentSources(context.Background(), "cus_c1")
	require.Error(t, err)

	var extErr *domain.ExternalServiceError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, http.StatusBadGateway, extErr.StatusCode)
	assert.False(t, errors.Is(err, domain.ErrChargeRejected))
}

func TestClient_CreatePaymentSource(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/cus_c1/payment_sources", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "card", body["type"])
		assert.Equal(t, "tok_1", body["token_id"])
		assert.Equal(t, "in_1", body["metadata"].(map[string]any)[domain.MetaStripeInvoiceID])
		_, _ = w.Write([]byte(`{"id": "src_1", "type": "card", "last4": "4242", "created_at": 1717200000}`))
	})

	src, err := c.CreatePaymentSource(context.Background(), "cus_c1", "tok_1", domain.PaymentSourceMetadata{
		StripeCustomerID: "cus_1",
		StripeInvoiceID:  "in_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "src_1", src.ID)
	assert.Equal(t, "4242", src.Last4)
}
