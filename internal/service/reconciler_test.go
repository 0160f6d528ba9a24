package service

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscriptionEvent(eventType domain.EventType, sub *domain.SubscriptionObject) domain.Event {
	return domain.Event{ID: "evt_" + sub.ID, Type: eventType, Provider: domain.ProviderStripe, Subject: sub}
}

func trialingTeam() domain.Team {
	status := domain.SubscriptionStatusTrialing
	return domain.Team{
		ID:                   1,
		Name:                 "Acme",
		StripeCustomerID:     strPtr("cus_1"),
		StripeSubscriptionID: strPtr("sub_1"),
		StripeProductID:      strPtr("P1"),
		PlanName:             strPtr("Pro"),
		SubscriptionStatus:   &status,
	}
}

func TestReconciler_TrialingToActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(trialingTeam())
	h.primary.products["P1"] = &domain.Product{StripeProductID: "P1", Name: "Pro", Active: true}

	sub := &domain.SubscriptionObject{ID: "sub_1", CustomerID: "cus_1", Status: domain.SubscriptionStatusActive, ProductID: "P1"}
	require.NoError(t, h.reconciler.HandleSubscriptionEvent(ctx, subscriptionEvent(domain.EventSubscriptionUpdated, sub)))

	team, err := h.teams.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, team.CurrentStatus())
	require.NotNil(t, team.StripeProductID)
	assert.Equal(t, "P1", *team.StripeProductID)
	require.NotNil(t, team.PlanName)
	assert.Equal(t, "Pro", *team.PlanName)

	changes := h.eventsOfKind(domain.EventKindStatusChange)
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].PreviousStatus)
	assert.Equal(t, domain.SubscriptionStatusTrialing, *changes[0].PreviousStatus)
	require.NotNil(t, changes[0].NewStatus)
	assert.Equal(t, domain.SubscriptionStatusActive, *changes[0].NewStatus)
	assert.Equal(t, domain.NotificationPending, changes[0].UserNotified)

	// повторное применение дает то же конечное состояние, продукт берется из локальной таблицы
	require.NoError(t, h.reconciler.HandleSubscriptionEvent(ctx, subscriptionEvent(domain.EventSubscriptionUpdated, sub)))
	again, err := h.teams.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, team.SubscriptionStatus, again.SubscriptionStatus)
	assert.Equal(t, team.StripeSubscriptionID, again.StripeSubscriptionID)
	assert.Equal(t, 1, h.primary.productCalls)
}

func TestReconciler_StatusSetInvariant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(trialingTeam())
	h.primary.products["P1"] = &domain.Product{StripeProductID: "P1", Name: "Pro"}

	for _, status := range []domain.SubscriptionStatus{
		domain.SubscriptionStatusActive,
		domain.SubscriptionStatusPastDue,
		domain.SubscriptionStatusUnpaid,
		domain.SubscriptionStatusTrialing,
		domain.SubscriptionStatusIncompleteExpired,
		domain.SubscriptionStatusActive,
		domain.SubscriptionStatusCanceled,
	} {
		sub := &domain.SubscriptionObject{ID: "sub_1", CustomerID: "cus_1", Status: status, ProductID: "P1"}
		require.NoError(t, h.reconciler.HandleSubscriptionEvent(ctx, subscriptionEvent(domain.EventSubscriptionUpdated, sub)))

		team, err := h.teams.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, status.HasLinkage(), team.StripeSubscriptionID != nil, "status %s", status)
		assert.Equal(t, status.HasLinkage(), team.StripeProductID != nil, "status %s", status)
	}
}

func TestReconciler_CanceledClearsLinkage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(trialingTeam())

	sub := &domain.SubscriptionObject{ID: "sub_1", CustomerID: "cus_1", Status: domain.SubscriptionStatusCanceled, ProductID: "P1"}
	require.NoError(t, h.reconciler.HandleSubscriptionEvent(ctx, subscriptionEvent(domain.EventSubscriptionUpdated, sub)))

	team, err := h.teams.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, team.CurrentStatus())
	assert.Nil(t, team.StripeSubscriptionID)
	assert.Nil(t, team.StripeProductID)
	assert.Zero(t, h.primary.productCalls, "plan is not resolved for statuses without access")
}

func TestReconciler_DeletedRecordsCancellation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(trialingTeam())

	sub := &domain.SubscriptionObject{ID: "sub_1", CustomerID: "cus_1", Status: domain.SubscriptionStatusActive}
	require.NoError(t, h.reconciler.HandleSubscriptionEvent(ctx, subscriptionEvent(domain.EventSubscriptionDeleted, sub)))

	team, err := h.teams.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, team.CurrentStatus())
	assert.Len(t, h.eventsOfKind(domain.EventKindSubscriptionCanceled), 1)
}

func TestReconciler_UnknownCustomerIsIgnored(t *testing.T) {
	h := newHarness()
	sub := &domain.SubscriptionObject{ID: "sub_x", CustomerID: "cus_unknown", Status: domain.SubscriptionStatusActive}

	require.NoError(t, h.reconciler.HandleSubscriptionEvent(context.Background(), subscriptionEvent(domain.EventSubscriptionCreated, sub)))
	assert.Empty(t, h.events.All())
}

func TestReconciler_PlanLookupFailureIsReturned(t *testing.T) {
	h := newHarness(trialingTeam())
	sub := &domain.SubscriptionObject{ID: "sub_1", CustomerID: "cus_1", Status: domain.SubscriptionStatusActive, ProductID: "P_missing"}

	err := h.reconciler.HandleSubscriptionEvent(context.Background(), subscriptionEvent(domain.EventSubscriptionUpdated, sub))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	team, _ := h.teams.GetByID(context.Background(), 1)
	assert.Equal(t, domain.SubscriptionStatusTrialing, team.CurrentStatus(), "state is untouched when the plan cannot be resolved")
}

func TestReconciler_InvoiceNotices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(trialingTeam())
	inv := &domain.InvoiceObject{ID: "in_1", CustomerID: "cus_1", SubscriptionID: "sub_1", AmountDue: 49900, Currency: "mxn"}

	require.NoError(t, h.reconciler.HandlePaymentFailed(ctx, domain.Event{ID: "evt_f", Type: domain.EventInvoicePaymentFailed, Subject: inv}))
	require.NoError(t, h.reconciler.HandlePaymentSucceeded(ctx, domain.Event{ID: "evt_s", Type: domain.EventInvoicePaymentSucceeded, Subject: inv}))

	failed := h.eventsOfKind(domain.EventKindPaymentFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Description, "499.00 MXN")
	assert.Len(t, h.eventsOfKind(domain.EventKindPaymentSucceeded), 1)

	trialEnd := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sub := &domain.SubscriptionObject{ID: "sub_1", CustomerID: "cus_1", Status: domain.SubscriptionStatusTrialing, TrialEnd: &trialEnd}
	require.NoError(t, h.reconciler.HandleTrialEnding(ctx, subscriptionEvent(domain.EventSubscriptionTrialWillEnd, sub)))
	trial := h.eventsOfKind(domain.EventKindTrialEnding)
	require.Len(t, trial, 1)
	assert.Contains(t, trial[0].Description, "2024-06-01")
}

func TestReconciler_SubscriptionDetails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(trialingTeam())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	periodEnd := now.Add(36 * time.Hour)
	paidAt := now.Add(-24 * time.Hour)

	h.primary.subscriptions["sub_1"] = &domain.SubscriptionObject{
		ID: "sub_1", CustomerID: "cus_1", Status: domain.SubscriptionStatusActive, CurrentPeriodEnd: &periodEnd,
	}
	h.primary.paidInvoices["cus_1"] = []domain.InvoiceObject{
		{ID: "in_1", AmountPaid: 10000, Currency: "mxn", PaidAt: &paidAt},
		{ID: "in_2", AmountPaid: 15050, Currency: "mxn"},
	}
	require.NoError(t, h.events.Create(ctx, &domain.SubscriptionEvent{TeamID: 1, Kind: domain.EventKindPaymentFailed}))

	view, err := h.reconciler.SubscriptionDetails(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, view.Status)
	assert.Equal(t, 2, view.DaysToNextBilling)
	assert.True(t, view.PaymentFailed)
	assert.Equal(t, domain.HealthCritical, view.Health)
	assert.Equal(t, 2, view.PaidInvoices)
	assert.Equal(t, "250.5", view.TotalPaid.String())

	_, err = h.reconciler.SubscriptionDetails(ctx, 99, now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconciler_ScheduleCancellation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(trialingTeam(), domain.Team{ID: 2, Name: "NoSub"})
	h.primary.subscriptions["sub_1"] = &domain.SubscriptionObject{ID: "sub_1", CustomerID: "cus_1", Status: domain.SubscriptionStatusActive}

	view, err := h.reconciler.ScheduleCancellation(ctx, 1, true)
	require.NoError(t, err)
	assert.True(t, view.CancelAtPeriodEnd)
	assert.Equal(t, domain.HealthAtRisk, view.Health)
	assert.True(t, h.primary.cancelUpdates["sub_1"])

	_, err = h.reconciler.ScheduleCancellation(ctx, 2, true)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
