package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

const (
	checkoutTypeInvoiceFinalized   = "invoice_finalized"
	checkoutTypeCustomSubscription = "custom_subscription"
)

// IdempotencyKeyForInvoice ключ идемпотентности заказа Conekta для счета Stripe
func IdempotencyKeyForInvoice(invoiceID string) string {
	return "invoice_" + invoiceID
}

// ChargeBridge создает в Conekta платеж для финализированного счета Stripe
type ChargeBridge interface {
	HandleInvoiceFinalized(ctx context.Context, ev domain.Event) error
}

type chargeBridge struct {
	orders     *orderPlacer
	correlator Correlator
	primary    PrimaryGateway
	teams      repository.TeamRepository
	log        *logger.Logger
}

// NewChargeBridge создает мост внешних платежей
func NewChargeBridge(
	correlator Correlator,
	primary PrimaryGateway,
	secondary SecondaryGateway,
	teams repository.TeamRepository,
	audit AuditLog,
	m metrics.ReconcilerMetrics,
	log *logger.Logger,
) ChargeBridge {
	return &chargeBridge{
		orders:     newOrderPlacer(primary, secondary, audit, m, log),
		correlator: correlator,
		primary:    primary,
		teams:      teams,
		log:        log,
	}
}

func (b *chargeBridge) HandleInvoiceFinalized(ctx context.Context, ev domain.Event) error {
	inv, ok := ev.Subject.(*domain.InvoiceObject)
	if !ok {
		return fmt.Errorf("%w: %s carries no invoice", domain.ErrInvalidInput, ev.Type)
	}

	team, err := b.teams.GetByStripeCustomerID(ctx, inv.CustomerID)
	if errors.Is(err, repository.ErrNotFound) {
		b.log.Warnw("Skipping invoice of unknown customer", "invoiceID", inv.ID, "stripeCustomerID", inv.CustomerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("bridge: failed to find team: %w", err)
	}

	fresh, skip, err := b.orders.chargeable(ctx, inv)
	if err != nil || skip {
		return err
	}

	// 1. клиент Conekta
	customer, err := b.correlator.FindSecondaryCustomer(ctx, fresh.CustomerID)
	if errors.Is(err, domain.ErrCorrelationUnresolved) {
		b.log.Infow("No secondary customer linked, invoice left to the primary processor", "invoiceID", fresh.ID, "reason", err)
		return nil
	}
	if err != nil {
		return err
	}

	// 2. источник оплаты: сначала тот, что указан в методе по умолчанию подписки
	var preferred []string
	if fresh.SubscriptionID != "" {
		sub, err := b.primary.GetSubscription(ctx, fresh.SubscriptionID)
		if err != nil {
			return fmt.Errorf("bridge: failed to get subscription: %w", err)
		}
		preferred = append(preferred, sub.DefaultPaymentMethodMetadata[domain.MetaConektaPaymentSourceID])
	}
	source, err := b.correlator.ResolvePaymentSource(ctx, fresh.CustomerID, customer.ID, preferred...)
	if errors.Is(err, domain.ErrCorrelationUnresolved) {
		b.log.Infow("No secondary payment source available", "invoiceID", fresh.ID, "conektaCustomerID", customer.ID)
		return nil
	}
	if err != nil {
		return err
	}

	// 3-4. заказ и запись аудита
	_, err = b.orders.place(ctx, team, fresh, customer.ID, source.ID, checkoutTypeInvoiceFinalized)
	return err
}

// orderPlacer создает заказ Conekta на сумму счета и фиксирует результат
type orderPlacer struct {
	primary   PrimaryGateway
	secondary SecondaryGateway
	audit     AuditLog
	metrics   metrics.ReconcilerMetrics
	log       *logger.Logger
}

func newOrderPlacer(primary PrimaryGateway, secondary SecondaryGateway, audit AuditLog, m metrics.ReconcilerMetrics, log *logger.Logger) *orderPlacer {
	return &orderPlacer{primary: primary, secondary: secondary, audit: audit, metrics: m, log: log}
}

// chargeable перечитывает счет и сообщает, нужно ли его пропустить
func (p *orderPlacer) chargeable(ctx context.Context, inv *domain.InvoiceObject) (*domain.InvoiceObject, bool, error) {
	if inv.AmountDue <= 0 {
		p.log.Debugw("Skipping invoice with nothing due", "invoiceID", inv.ID)
		return nil, true, nil
	}
	if domain.HasSecondaryOrder(inv.Metadata) {
		p.log.Infow("Invoice already charged out-of-band", "invoiceID", inv.ID, "orderID", inv.Metadata[domain.MetaConektaOrderID])
		return nil, true, nil
	}

	fresh, err := p.primary.GetInvoice(ctx, inv.ID)
	if err != nil {
		return nil, false, fmt.Errorf("bridge: failed to refresh invoice: %w", err)
	}
	if domain.HasSecondaryOrder(fresh.Metadata) {
		p.log.Infow("Invoice already charged out-of-band", "invoiceID", fresh.ID, "orderID", fresh.Metadata[domain.MetaConektaOrderID])
		return nil, true, nil
	}
	if fresh.AmountDue <= 0 {
		return nil, true, nil
	}
	return fresh, false, nil
}

func (p *orderPlacer) place(ctx context.Context, team *domain.Team, inv *domain.InvoiceObject, customerID, sourceID, checkoutType string) (*domain.OrderObject, error) {
	description := inv.Description
	if description == "" {
		description = "Subscription invoice " + inv.ID
	}

	order, err := p.secondary.CreateOrder(ctx, domain.OrderRequest{
		CustomerID:      customerID,
		PaymentSourceID: sourceID,
		Amount:          inv.AmountDue,
		Currency:        inv.Currency,
		Description:     description,
		Metadata: domain.ChargeCorrelationMetadata{
			StripeCustomerID:       inv.CustomerID,
			StripeInvoiceID:        inv.ID,
			StripeSubscriptionID:   inv.SubscriptionID,
			StripePaymentIntentID:  inv.PaymentIntentID,
			ConektaCustomerID:      customerID,
			ConektaPaymentSourceID: sourceID,
			CheckoutType:           checkoutType,
		},
		IdempotencyKey: IdempotencyKeyForInvoice(inv.ID),
	})
	if err != nil {
		var rejected *domain.ChargeRejectedError
		if !errors.As(err, &rejected) {
			p.metrics.IncOutOfBandCharge("error")
			return nil, fmt.Errorf("bridge: failed to create order for invoice %s: %w", inv.ID, err)
		}
		p.metrics.IncOutOfBandCharge("rejected")
		if rejected.InvoiceID == "" {
			rejected.InvoiceID = inv.ID
		}
		p.log.Warnw("Out-of-band charge rejected", "invoiceID", inv.ID, "code", rejected.Code, "message", rejected.Message)
		if auditErr := p.record(ctx, team, inv, domain.EventKindPaymentFailed,
			fmt.Sprintf("Out-of-band payment of %s rejected: %s", domain.FormatAmount(inv.AmountDue, inv.Currency), rejected.Code)); auditErr != nil {
			return nil, errors.Join(rejected, auditErr)
		}
		return nil, rejected
	}

	p.metrics.IncOutOfBandCharge("created")
	chargeID := ""
	if charge, ok := order.FirstCharge(); ok {
		chargeID = charge.ID
	}
	p.log.Infow("Out-of-band charge created", "invoiceID", inv.ID, "orderID", order.ID, "chargeID", chargeID)

	// отметка на счете раньше аудита: повторная доставка увидит заказ, даже если запись аудита не удалась
	stamp := map[string]string{domain.MetaConektaOrderID: order.ID}
	if chargeID != "" {
		stamp[domain.MetaConektaChargeID] = chargeID
	}
	if err := p.primary.UpdateInvoiceMetadata(ctx, inv.ID, stamp); err != nil {
		p.log.Warnw("Failed to stamp order id on invoice", "error", err, "invoiceID", inv.ID, "orderID", order.ID)
	}

	if err := p.record(ctx, team, inv, domain.EventKindPaymentSucceeded,
		fmt.Sprintf("Out-of-band payment of %s created (charge %s)", domain.FormatAmount(inv.AmountDue, inv.Currency), chargeID)); err != nil {
		return nil, err
	}
	return order, nil
}

func (p *orderPlacer) record(ctx context.Context, team *domain.Team, inv *domain.InvoiceObject, kind domain.EventKind, description string) error {
	event := &domain.SubscriptionEvent{
		TeamID:      team.ID,
		Kind:        kind,
		Description: description,
	}
	if inv.SubscriptionID != "" {
		subID := inv.SubscriptionID
		event.StripeSubscriptionID = &subID
	}
	return p.audit.Record(ctx, event)
}
