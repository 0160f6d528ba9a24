package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeTeam() domain.Team {
	status := domain.SubscriptionStatusActive
	return domain.Team{
		ID:                   1,
		Name:                 "Acme",
		StripeCustomerID:     strPtr("cus_1"),
		StripeSubscriptionID: strPtr("sub_1"),
		SubscriptionStatus:   &status,
	}
}

// linkedHarness - клиент Stripe cus_1 уже связан с клиентом Conekta и его картой
func linkedHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(activeTeam())
	h.primary.customers["cus_1"] = &domain.CustomerObject{ID: "cus_1", Email: "ana@example.com"}
	h.primary.subscriptions["sub_1"] = &domain.SubscriptionObject{
		ID: "sub_1", CustomerID: "cus_1", Status: domain.SubscriptionStatusActive,
		DefaultPaymentMethodMetadata: map[string]string{domain.MetaConektaPaymentSourceID: "src_default"},
	}
	h.primary.invoices["in_1"] = &domain.InvoiceObject{
		ID: "in_1", CustomerID: "cus_1", SubscriptionID: "sub_1", AmountDue: 49900, Currency: "mxn",
	}
	h.secondary.customers = []domain.SecondaryCustomer{
		{ID: "cus_conekta_1", Email: "ana@example.com", Metadata: map[string]string{domain.MetaStripeCustomerID: "cus_1"}},
	}
	h.secondary.sources["cus_conekta_1"] = []domain.PaymentSource{
		{ID: "src_recent", Type: "card", CreatedAt: time.Now(), Metadata: map[string]string{domain.MetaStripeCustomerID: "cus_1"}},
		{ID: "src_default", Type: "card", CreatedAt: time.Now().Add(-time.Hour)},
	}
	return h
}

func finalizedEvent(h *harness, id string) domain.Event {
	inv := *h.primary.invoices[id]
	return domain.Event{ID: "evt_fin_" + id, Type: domain.EventInvoiceFinalized, Provider: domain.ProviderStripe, Subject: &inv}
}

func TestChargeBridge_CreatesOrder(t *testing.T) {
	ctx := context.Background()
	h := linkedHarness(t)

	require.NoError(t, h.bridge.HandleInvoiceFinalized(ctx, finalizedEvent(h, "in_1")))

	require.Len(t, h.secondary.orders, 1)
	order := h.secondary.orders[0]
	assert.Equal(t, "cus_conekta_1", order.CustomerID)
	assert.Equal(t, "src_default", order.PaymentSourceID, "source referenced by the subscription default method is preferred")
	assert.EqualValues(t, 49900, order.Amount)
	assert.Equal(t, "invoice_in_1", order.IdempotencyKey)
	assert.Equal(t, "in_1", order.Metadata.StripeInvoiceID)
	assert.Equal(t, "cus_1", order.Metadata.StripeCustomerID)
	assert.Equal(t, "sub_1", order.Metadata.StripeSubscriptionID)

	succeeded := h.eventsOfKind(domain.EventKindPaymentSucceeded)
	require.Len(t, succeeded, 1)
	assert.Contains(t, succeeded[0].Description, "chr_1")
	assert.Equal(t, "ord_1", h.primary.invoices["in_1"].Metadata[domain.MetaConektaOrderID])

	// повторная доставка не создает второй заказ
	require.NoError(t, h.bridge.HandleInvoiceFinalized(ctx, finalizedEvent(h, "in_1")))
	assert.Len(t, h.secondary.orders, 1)
}

func TestChargeBridge_NoLinkedCustomer(t *testing.T) {
	h := linkedHarness(t)
	h.secondary.customers = nil

	require.NoError(t, h.bridge.HandleInvoiceFinalized(context.Background(), finalizedEvent(h, "in_1")))
	assert.Empty(t, h.secondary.orders)
	assert.Empty(t, h.events.All())
}

func TestChargeBridge_CardDeclined(t *testing.T) {
	h := linkedHarness(t)
	h.secondary.orderErr = domain.NewChargeRejectedError("card_declined", "Tarjeta declinada", "")

	err := h.bridge.HandleInvoiceFinalized(context.Background(), finalizedEvent(h, "in_1"))
	require.Error(t, err)

	var rejected *domain.ChargeRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, domain.RejectionCardDeclined, rejected.Code)
	assert.Equal(t, "in_1", rejected.InvoiceID)
	assert.ErrorIs(t, err, domain.ErrChargeRejected)

	failed := h.eventsOfKind(domain.EventKindPaymentFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Description, "card_declined")
	assert.Empty(t, h.primary.invoices["in_1"].Metadata[domain.MetaConektaOrderID])
}

func TestChargeBridge_GenericFailureIsNotRejection(t *testing.T) {
	h := linkedHarness(t)
	h.secondary.orderErr = domain.NewExternalServiceError("conekta", "http_503", "unavailable", 503, nil)

	err := h.bridge.HandleInvoiceFinalized(context.Background(), finalizedEvent(h, "in_1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrChargeRejected))
	assert.Empty(t, h.eventsOfKind(domain.EventKindPaymentFailed))
}

func TestChargeBridge_Skips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness)
	}{
		{name: "nothing due", mutate: func(h *harness) { h.primary.invoices["in_1"].AmountDue = 0 }},
		{name: "already charged", mutate: func(h *harness) {
			h.primary.invoices["in_1"].Metadata = map[string]string{domain.MetaConektaOrderID: "ord_prev"}
		}},
		{name: "unknown customer", mutate: func(h *harness) { h.primary.invoices["in_1"].CustomerID = "cus_nobody" }},
		{name: "no usable source", mutate: func(h *harness) {
			h.primary.subscriptions["sub_1"].DefaultPaymentMethodMetadata = nil
			h.secondary.sources["cus_conekta_1"] = nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := linkedHarness(t)
			tt.mutate(h)

			require.NoError(t, h.bridge.HandleInvoiceFinalized(context.Background(), finalizedEvent(h, "in_1")))
			assert.Empty(t, h.secondary.orders)
		})
	}
}

func TestChargeBridge_StaleEventUsesFreshInvoice(t *testing.T) {
	h := linkedHarness(t)
	ev := finalizedEvent(h, "in_1")
	h.primary.invoices["in_1"].Metadata = map[string]string{domain.MetaConektaOrderID: "ord_prev"}

	require.NoError(t, h.bridge.HandleInvoiceFinalized(context.Background(), ev))
	assert.Empty(t, h.secondary.orders)
}

func TestChargeBridge_AuditFailureStillStampsInvoice(t *testing.T) {
	ctx := context.Background()
	h := linkedHarness(t)
	broken := NewChargeBridge(h.correlator, h.primary, h.secondary, h.teams, failingAudit{err: errors.New("db down")}, metrics.NewNop(), logger.NewNop())

	require.Error(t, broken.HandleInvoiceFinalized(ctx, finalizedEvent(h, "in_1")))
	require.Len(t, h.secondary.orders, 1)
	assert.Equal(t, "ord_1", h.primary.invoices["in_1"].Metadata[domain.MetaConektaOrderID])

	require.NoError(t, h.bridge.HandleInvoiceFinalized(ctx, finalizedEvent(h, "in_1")))
	assert.Len(t, h.secondary.orders, 1)
}
