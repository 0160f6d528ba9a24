package service

import (
	"context"
	"fmt"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

// CheckoutResult результат оплаты незавершенной подписки через Conekta
type CheckoutResult struct {
	OrderID         string `json:"order_id"`
	ChargeID        string `json:"charge_id,omitempty"`
	PaymentStatus   string `json:"payment_status"`
	InvoiceID       string `json:"invoice_id"`
	SubscriptionID  string `json:"subscription_id"`
	PaymentSourceID string `json:"payment_source_id"`
}

// CheckoutService оплата первой подписки картой Conekta
type CheckoutService interface {
	// PayIncompleteSubscription оплачивает последний счет незавершенной подписки команды.
	// Подтверждение приходит позже вебхуком order.paid.
	PayIncompleteSubscription(ctx context.Context, teamID int64, cardToken string) (*CheckoutResult, error)
}

type checkoutService struct {
	teams      repository.TeamRepository
	primary    PrimaryGateway
	correlator Correlator
	orders     *orderPlacer
	log        *logger.Logger
}

// NewCheckoutService создает сервис оплаты через Conekta
func NewCheckoutService(
	teams repository.TeamRepository,
	primary PrimaryGateway,
	secondary SecondaryGateway,
	correlator Correlator,
	audit AuditLog,
	m metrics.ReconcilerMetrics,
	log *logger.Logger,
) CheckoutService {
	return &checkoutService{
		teams:      teams,
		primary:    primary,
		correlator: correlator,
		orders:     newOrderPlacer(primary, secondary, audit, m, log),
		log:        log,
	}
}

func (s *checkoutService) PayIncompleteSubscription(ctx context.Context, teamID int64, cardToken string) (*CheckoutResult, error) {
	if cardToken == "" {
		return nil, fmt.Errorf("%w: card token is required", domain.ErrInvalidInput)
	}

	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to get team %d: %w", teamID, err)
	}
	if team.StripeCustomerID == nil {
		return nil, fmt.Errorf("%w: team %d has no Stripe customer", domain.ErrInvalidInput, teamID)
	}
	customerID := *team.StripeCustomerID

	pending, err := s.primary.ListIncompleteSubscriptions(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to list incomplete subscriptions: %w", err)
	}
	var target *domain.IncompleteSubscription
	for i := range pending {
		if pending[i].Invoice != nil {
			target = &pending[i]
			break
		}
	}
	if target == nil {
		return nil, domain.NewNotFoundError("incomplete subscription", customerID)
	}

	invoice, skip, err := s.orders.chargeable(ctx, target.Invoice)
	if err != nil {
		return nil, err
	}
	if skip {
		return nil, fmt.Errorf("%w: invoice %s has nothing left to charge", domain.ErrDuplicate, target.Invoice.ID)
	}

	customer, err := s.primary.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to get stripe customer: %w", err)
	}
	secondary, err := s.correlator.EnsureSecondaryCustomer(ctx, customer, domain.SecondaryCustomerMetadata{
		StripeSubscriptionID:  target.Subscription.ID,
		StripePaymentIntentID: invoice.PaymentIntentID,
		Source:                "custom_checkout",
	})
	if err != nil {
		return nil, err
	}

	source, err := s.correlator.EnsurePaymentSource(ctx, secondary.ID, cardToken, domain.PaymentSourceMetadata{
		StripeCustomerID:      customerID,
		StripeInvoiceID:       invoice.ID,
		StripePaymentIntentID: invoice.PaymentIntentID,
		CreatedFor:            "subscription_payment",
	})
	if err != nil {
		return nil, err
	}

	if invoice.SubscriptionID == "" {
		invoice.SubscriptionID = target.Subscription.ID
	}
	order, err := s.orders.place(ctx, team, invoice, secondary.ID, source.ID, checkoutTypeCustomSubscription)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{
		OrderID:         order.ID,
		PaymentStatus:   order.PaymentStatus,
		InvoiceID:       invoice.ID,
		SubscriptionID:  target.Subscription.ID,
		PaymentSourceID: source.ID,
	}
	if charge, ok := order.FirstCharge(); ok {
		result.ChargeID = charge.ID
	}
	s.log.Infow("Out-of-band checkout completed", "teamID", teamID, "orderID", order.ID, "invoiceID", invoice.ID)
	return result, nil
}
