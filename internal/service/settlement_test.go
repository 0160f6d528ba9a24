package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderEvent(eventType domain.EventType, charge domain.Charge, meta map[string]string) domain.Event {
	return domain.Event{
		ID:       "evt_" + string(eventType),
		Type:     eventType,
		Provider: domain.ProviderConekta,
		Subject: &domain.OrderObject{
			ID:         "ord_1",
			Amount:     49900,
			Currency:   "MXN",
			CustomerID: "cus_conekta_1",
			Metadata:   meta,
			Charges:    []domain.Charge{charge},
		},
	}
}

func correlationMeta() map[string]string {
	return domain.ChargeCorrelationMetadata{
		StripeCustomerID:     "cus_1",
		StripeInvoiceID:      "in_1",
		StripeSubscriptionID: "sub_1",
	}.ToMap()
}

func TestSettlement_OrderPaid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(activeTeam())
	h.primary.invoices["in_1"] = &domain.InvoiceObject{ID: "in_1", CustomerID: "cus_1"}

	ev := orderEvent(domain.EventOrderPaid, domain.Charge{ID: "chr_1", Status: domain.ChargeStatusPaid}, correlationMeta())
	require.NoError(t, h.settlement.HandleOrderPaid(ctx, ev))

	require.Len(t, h.primary.methods, 1)
	assert.Equal(t, "cus_conekta_1", h.primary.methods[0].Metadata[domain.MetaConektaCustomerID])
	assert.Equal(t, h.primary.methods[0].ID, h.primary.defaults["sub_1"])
	require.Len(t, h.primary.reports, 1)
	assert.EqualValues(t, 49900, h.primary.reports[0].Amount, "order amount is used when the charge has none")
	assert.Len(t, h.eventsOfKind(domain.EventKindPaymentMethodUpdated), 1)
}

func TestSettlement_OrderDeclined(t *testing.T) {
	h := newHarness(activeTeam())

	charge := domain.Charge{ID: "chr_2", Status: "declined", FailureCode: "insufficient_funds", FailureMessage: "Fondos insuficientes"}
	require.NoError(t, h.settlement.HandleOrderDeclined(context.Background(), orderEvent(domain.EventOrderDeclined, charge, correlationMeta())))

	require.Len(t, h.primary.reports, 1)
	assert.Equal(t, domain.PaymentOutcomeFailed, h.primary.reports[0].Outcome)
	failed := h.eventsOfKind(domain.EventKindPaymentFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Description, "Fondos insuficientes")
}

func TestSettlement_ForeignOrdersAreIgnored(t *testing.T) {
	h := newHarness(activeTeam())

	ev := orderEvent(domain.EventOrderPaid, domain.Charge{ID: "chr_3", Status: domain.ChargeStatusPaid}, map[string]string{"shop": "other"})
	require.NoError(t, h.settlement.HandleOrderPaid(context.Background(), ev))
	assert.Empty(t, h.primary.reports)
	assert.Empty(t, h.primary.methods)
}

type failingAudit struct{ err error }

func (a failingAudit) Record(context.Context, *domain.SubscriptionEvent) error { return a.err }

func TestSettlement_RedeliveryAfterPartialFailureReportsOnce(t *testing.T) {
	tests := []struct {
		name    string
		invoice bool
	}{
		{name: "invoice stamp short-circuits", invoice: true},
		{name: "idempotency key without invoice", invoice: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(activeTeam())
			meta := correlationMeta()
			if tt.invoice {
				h.primary.invoices["in_1"] = &domain.InvoiceObject{ID: "in_1", CustomerID: "cus_1"}
			} else {
				delete(meta, domain.MetaStripeInvoiceID)
			}
			ev := orderEvent(domain.EventOrderPaid, domain.Charge{ID: "chr_1", Status: domain.ChargeStatusPaid}, meta)

			log := logger.NewNop()
			broken := NewSettlement(h.correlator, h.teams, failingAudit{err: errors.New("db down")}, log)
			first := NewProcessor(h.receipts, h.teams, NewHandlerTable(h.reconciler, h.bridge, broken, log), nil, metrics.NewNop(), log)

			_, err := first.Process(ctx, ev)
			require.Error(t, err)
			require.Len(t, h.primary.reports, 1)

			outcome, err := h.processor.Process(ctx, ev)
			require.NoError(t, err)
			assert.Equal(t, OutcomeProcessed, outcome)
			assert.Len(t, h.primary.reports, 1)
			assert.Len(t, h.primary.methods, 1)
			assert.Len(t, h.eventsOfKind(domain.EventKindPaymentMethodUpdated), 1)
		})
	}
}
