package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

// Settlement отражает итог заказов Conekta (order.paid / order.declined) в Stripe
type Settlement interface {
	HandleOrderPaid(ctx context.Context, ev domain.Event) error
	HandleOrderDeclined(ctx context.Context, ev domain.Event) error
}

type settlement struct {
	correlator Correlator
	teams      repository.TeamRepository
	audit      AuditLog
	log        *logger.Logger
}

// NewSettlement создает обработчик вебхуков Conekta
func NewSettlement(correlator Correlator, teams repository.TeamRepository, audit AuditLog, log *logger.Logger) Settlement {
	return &settlement{correlator: correlator, teams: teams, audit: audit, log: log}
}

// chargeOutcome достает заказ, платеж и метаданные корреляции.
// ok=false означает, что заказ создан не этим сервисом и обрабатывать его нечего.
func (s *settlement) chargeOutcome(ev domain.Event) (ChargeOutcome, bool, error) {
	order, ok := ev.Subject.(*domain.OrderObject)
	if !ok {
		return ChargeOutcome{}, false, fmt.Errorf("%w: %s carries no order", domain.ErrInvalidInput, ev.Type)
	}

	corr, err := domain.ParseChargeCorrelationMetadata(order.Metadata)
	if err != nil {
		s.log.Warnw("Order without correlation metadata", "orderID", order.ID, "error", err)
		return ChargeOutcome{}, false, nil
	}
	charge, ok := order.FirstCharge()
	if !ok {
		s.log.Warnw("Order has no charges", "orderID", order.ID)
		return ChargeOutcome{}, false, nil
	}
	if corr.ConektaCustomerID == "" {
		corr.ConektaCustomerID = order.CustomerID
	}
	return ChargeOutcome{Order: order, Charge: charge, Correlation: corr}, true, nil
}

func (s *settlement) HandleOrderPaid(ctx context.Context, ev domain.Event) error {
	outcome, ok, err := s.chargeOutcome(ev)
	if err != nil || !ok {
		return err
	}
	if outcome.Charge.Status != "" && outcome.Charge.Status != domain.ChargeStatusPaid {
		s.log.Warnw("Paid order carries an unpaid charge", "orderID", outcome.Order.ID, "chargeID", outcome.Charge.ID, "status", outcome.Charge.Status)
		return nil
	}

	result, err := s.correlator.LinkCharge(ctx, outcome)
	if err != nil {
		return err
	}
	s.log.Infow("Out-of-band payment settled",
		"orderID", outcome.Order.ID,
		"chargeID", outcome.Charge.ID,
		"paymentMethodID", result.PaymentMethodID,
		"paymentRecordID", result.PaymentRecordID,
		"invoiceAttached", result.InvoiceAttached,
	)

	if !result.DefaultMethodSet {
		return nil
	}
	return s.recordForCustomer(ctx, outcome, domain.EventKindPaymentMethodUpdated,
		fmt.Sprintf("Default payment method set to %s for out-of-band charge %s", result.PaymentMethodID, outcome.Charge.ID))
}

func (s *settlement) HandleOrderDeclined(ctx context.Context, ev domain.Event) error {
	outcome, ok, err := s.chargeOutcome(ev)
	if err != nil || !ok {
		return err
	}
	if err := s.correlator.ReportDeclined(ctx, outcome); err != nil {
		return err
	}

	reason := outcome.Charge.FailureMessage
	if reason == "" {
		reason = outcome.Charge.FailureCode
	}
	amount, currency := chargeAmount(outcome.Order, outcome.Charge)
	return s.recordForCustomer(ctx, outcome, domain.EventKindPaymentFailed,
		fmt.Sprintf("Out-of-band payment of %s declined: %s", domain.FormatAmount(amount, currency), reason))
}

func (s *settlement) recordForCustomer(ctx context.Context, outcome ChargeOutcome, kind domain.EventKind, description string) error {
	team, err := s.teams.GetByStripeCustomerID(ctx, outcome.Correlation.StripeCustomerID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnw("No team for settled order", "orderID", outcome.Order.ID, "stripeCustomerID", outcome.Correlation.StripeCustomerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("settlement: failed to find team: %w", err)
	}

	event := &domain.SubscriptionEvent{TeamID: team.ID, Kind: kind, Description: description}
	if id := outcome.Correlation.StripeSubscriptionID; id != "" {
		event.StripeSubscriptionID = &id
	}
	return s.audit.Record(ctx, event)
}
