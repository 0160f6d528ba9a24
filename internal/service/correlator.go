package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

// ChargeOutcome - результат платежа Conekta вместе с метаданными корреляции заказа
type ChargeOutcome struct {
	Order       *domain.OrderObject
	Charge      domain.Charge
	Correlation domain.ChargeCorrelationMetadata
}

// LinkResult что было сделано в Stripe для платежа Conekta
type LinkResult struct {
	PaymentMethodID  string
	PaymentMethodNew bool
	PaymentRecordID  string
	InvoiceAttached  bool
	DefaultMethodSet bool
	// AlreadySettled - платеж уже был отражен при предыдущей обработке
	AlreadySettled bool
}

// Correlator связывает объекты Stripe и Conekta через метаданные и таблицу связей.
type Correlator interface {
	// FindSecondaryCustomer ищет клиента Conekta для клиента Stripe, не создавая его.
	// Возвращает ошибку, оборачивающую domain.ErrCorrelationUnresolved, если связи нет.
	FindSecondaryCustomer(ctx context.Context, primaryCustomerID string) (*domain.SecondaryCustomer, error)

	// EnsureSecondaryCustomer находит или создает клиента Conekta
	EnsureSecondaryCustomer(ctx context.Context, customer *domain.CustomerObject, refs domain.SecondaryCustomerMetadata) (*domain.SecondaryCustomer, error)

	// ResolvePaymentSource выбирает существующий источник оплаты клиента Conekta
	ResolvePaymentSource(ctx context.Context, primaryCustomerID, secondaryCustomerID string, preferred ...string) (*domain.PaymentSource, error)

	// EnsurePaymentSource находит подходящий источник оплаты или создает его из токена
	EnsurePaymentSource(ctx context.Context, secondaryCustomerID, token string, refs domain.PaymentSourceMetadata) (*domain.PaymentSource, error)

	// LinkCharge отражает успешный платеж Conekta в Stripe
	LinkCharge(ctx context.Context, outcome ChargeOutcome) (*LinkResult, error)

	// ReportDeclined отражает отклоненный платеж Conekta в Stripe
	ReportDeclined(ctx context.Context, outcome ChargeOutcome) error
}

type correlator struct {
	primary   PrimaryGateway
	secondary SecondaryGateway
	links     repository.LinkRepository
	now       func() time.Time
	log       *logger.Logger
}

// NewCorrelator создает сервис корреляции
func NewCorrelator(primary PrimaryGateway, secondary SecondaryGateway, links repository.LinkRepository, log *logger.Logger) Correlator {
	return &correlator{
		primary:   primary,
		secondary: secondary,
		links:     links,
		now:       time.Now,
		log:       log,
	}
}

func unresolved(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrCorrelationUnresolved, fmt.Sprintf(format, args...))
}

func (c *correlator) FindSecondaryCustomer(ctx context.Context, primaryCustomerID string) (*domain.SecondaryCustomer, error) {
	if primaryCustomerID == "" {
		return nil, unresolved("empty primary customer id")
	}

	if found, err := c.findLinked(ctx, primaryCustomerID); found != nil || err != nil {
		return found, err
	}

	customer, err := c.primary.GetCustomer(ctx, primaryCustomerID)
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to get stripe customer: %w", err)
	}
	return c.searchByEmail(ctx, customer)
}

// findLinked читает таблицу связей; (nil, nil) означает, что связи нет
func (c *correlator) findLinked(ctx context.Context, primaryCustomerID string) (*domain.SecondaryCustomer, error) {
	link, err := c.links.GetByPrimaryCustomerID(ctx, primaryCustomerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to read processor link: %w", err)
	}
	c.log.Debugw("Secondary customer found by link", "stripeCustomerID", primaryCustomerID, "conektaCustomerID", link.SecondaryCustomerID)
	return &domain.SecondaryCustomer{ID: link.SecondaryCustomerID}, nil
}

// searchByEmail ищет в Conekta клиента с тем же email и обратной ссылкой в метаданных
func (c *correlator) searchByEmail(ctx context.Context, customer *domain.CustomerObject) (*domain.SecondaryCustomer, error) {
	if customer.Email == "" {
		return nil, unresolved("stripe customer %s has no email", customer.ID)
	}

	candidates, err := c.secondary.SearchCustomersByEmail(ctx, customer.Email)
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to search conekta customers: %w", err)
	}
	for i := range candidates {
		if candidates[i].Metadata[domain.MetaStripeCustomerID] != customer.ID {
			continue
		}
		found := candidates[i]
		c.recordLink(ctx, customer.ID, found.ID, "")
		c.log.Infow("Secondary customer found by email", "stripeCustomerID", customer.ID, "conektaCustomerID", found.ID)
		return &found, nil
	}
	return nil, unresolved("no conekta customer references %s", customer.ID)
}

func (c *correlator) EnsureSecondaryCustomer(ctx context.Context, customer *domain.CustomerObject, refs domain.SecondaryCustomerMetadata) (*domain.SecondaryCustomer, error) {
	if customer == nil || customer.ID == "" {
		return nil, fmt.Errorf("%w: stripe customer is required", domain.ErrInvalidInput)
	}

	found, err := c.findLinked(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}
	found, err = c.searchByEmail(ctx, customer)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, domain.ErrCorrelationUnresolved) {
		return nil, err
	}

	refs.StripeCustomerID = customer.ID
	name := customer.Name
	if name == "" {
		name = "Customer"
	}
	created, err := c.secondary.CreateCustomer(ctx, domain.NewSecondaryCustomer{
		Email:    customer.Email,
		Name:     name,
		Metadata: refs,
	})
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to create conekta customer: %w", err)
	}

	c.recordLink(ctx, customer.ID, created.ID, "")
	c.log.Infow("Secondary customer created", "stripeCustomerID", customer.ID, "conektaCustomerID", created.ID)
	return created, nil
}

func (c *correlator) ResolvePaymentSource(ctx context.Context, primaryCustomerID, secondaryCustomerID string, preferred ...string) (*domain.PaymentSource, error) {
	sources, err := c.secondary.ListPaymentSources(ctx, secondaryCustomerID)
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to list payment sources: %w", err)
	}

	if link, err := c.links.GetByPrimaryCustomerID(ctx, primaryCustomerID); err == nil {
		preferred = append(preferred, link.PaymentSourceID())
	}
	for _, id := range preferred {
		if id == "" {
			continue
		}
		for i := range sources {
			if sources[i].ID == id {
				return &sources[i], nil
			}
		}
	}

	// самый свежий карточный источник, ссылающийся на клиента Stripe
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].CreatedAt.After(sources[j].CreatedAt)
	})
	for i := range sources {
		if sources[i].Type == domain.PaymentSourceTypeCard && sources[i].Metadata[domain.MetaStripeCustomerID] == primaryCustomerID {
			return &sources[i], nil
		}
	}
	return nil, unresolved("no usable payment source for conekta customer %s", secondaryCustomerID)
}

func (c *correlator) EnsurePaymentSource(ctx context.Context, secondaryCustomerID, token string, refs domain.PaymentSourceMetadata) (*domain.PaymentSource, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: card token is required", domain.ErrInvalidInput)
	}

	sources, err := c.secondary.ListPaymentSources(ctx, secondaryCustomerID)
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to list payment sources: %w", err)
	}
	if existing := matchPaymentSource(sources, refs); existing != nil {
		c.log.Infow("Reusing existing payment source", "conektaCustomerID", secondaryCustomerID, "paymentSourceID", existing.ID)
		c.recordLink(ctx, refs.StripeCustomerID, secondaryCustomerID, existing.ID)
		return existing, nil
	}

	created, err := c.secondary.CreatePaymentSource(ctx, secondaryCustomerID, token, refs)
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to create payment source: %w", err)
	}
	c.recordLink(ctx, refs.StripeCustomerID, secondaryCustomerID, created.ID)
	c.log.Infow("Payment source created", "conektaCustomerID", secondaryCustomerID, "paymentSourceID", created.ID)
	return created, nil
}

// matchPaymentSource ищет источник, уже созданный для этого платежа или клиента
func matchPaymentSource(sources []domain.PaymentSource, refs domain.PaymentSourceMetadata) *domain.PaymentSource {
	for i := range sources {
		meta := sources[i].Metadata
		if refs.StripePaymentIntentID != "" && meta[domain.MetaStripePaymentIntentID] == refs.StripePaymentIntentID {
			return &sources[i]
		}
		if refs.StripeInvoiceID != "" && meta[domain.MetaStripeInvoiceID] == refs.StripeInvoiceID {
			return &sources[i]
		}
	}
	for i := range sources {
		if sources[i].Type == domain.PaymentSourceTypeCard && sources[i].Metadata[domain.MetaStripeCustomerID] == refs.StripeCustomerID {
			return &sources[i]
		}
	}
	return nil
}

func (c *correlator) LinkCharge(ctx context.Context, outcome ChargeOutcome) (*LinkResult, error) {
	order, charge, corr := outcome.Order, outcome.Charge, outcome.Correlation
	if order == nil || charge.ID == "" {
		return nil, fmt.Errorf("%w: order with a charge is required", domain.ErrInvalidInput)
	}
	customerID := corr.StripeCustomerID
	result := &LinkResult{}

	// 1. custom payment method, представляющий платеж Conekta
	pm, err := c.findLinkedPaymentMethod(ctx, customerID, order.ID, charge.ID)
	if err != nil {
		return nil, err
	}
	if pm == nil {
		meta := domain.NewPaymentMethodLinkMetadata(order.ID, charge.ID, order.CustomerID, corr.ConektaPaymentSourceID)
		if err := meta.Validate(); err != nil {
			return nil, fmt.Errorf("correlator: %w", err)
		}
		pm, err = c.primary.CreateCustomPaymentMethod(ctx, meta.ToMap())
		if err != nil {
			return nil, fmt.Errorf("correlator: failed to create custom payment method: %w", err)
		}
		if err := c.primary.AttachPaymentMethod(ctx, pm.ID, customerID); err != nil {
			return nil, fmt.Errorf("correlator: failed to attach payment method: %w", err)
		}
		result.PaymentMethodNew = true
		c.log.Infow("Custom payment method created", "paymentMethodID", pm.ID, "stripeCustomerID", customerID, "chargeID", charge.ID)
	}
	result.PaymentMethodID = pm.ID

	// 2. метод по умолчанию для подписки
	if corr.StripeSubscriptionID != "" {
		if err := c.primary.SetDefaultPaymentMethod(ctx, corr.StripeSubscriptionID, pm.ID); err != nil {
			return nil, fmt.Errorf("correlator: failed to set default payment method: %w", err)
		}
		result.DefaultMethodSet = true
	}

	// 3. payment record с исходом guaranteed
	if !result.PaymentMethodNew && c.invoiceSettledBy(ctx, corr.StripeInvoiceID, charge.ID) {
		result.AlreadySettled = true
		c.log.Infow("Charge already settled, skipping payment record", "chargeID", charge.ID, "invoiceID", corr.StripeInvoiceID)
		c.recordLink(ctx, customerID, order.CustomerID, corr.ConektaPaymentSourceID)
		return result, nil
	}
	amount, currency := chargeAmount(order, charge)
	paidAt := c.now()
	if charge.PaidAt != nil {
		paidAt = *charge.PaidAt
	}
	record, err := c.primary.ReportPayment(ctx, domain.PaymentReport{
		Outcome:         domain.PaymentOutcomeGuaranteed,
		Amount:          amount,
		Currency:        currency,
		CustomerID:      customerID,
		PaymentMethodID: pm.ID,
		InitiatedAt:     charge.CreatedAt,
		OutcomeAt:       paidAt,
		Reference:       charge.ID,
		Metadata:        reportMetadata(order, charge, corr),
	})
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to report guaranteed payment: %w", err)
	}
	result.PaymentRecordID = record.ID

	// 4-5. счет: ошибки только логируются
	if corr.StripeInvoiceID != "" {
		result.InvoiceAttached = c.settleInvoice(ctx, corr.StripeInvoiceID, order, charge, pm.ID, paidAt, amount, currency)
	}

	c.recordLink(ctx, customerID, order.CustomerID, corr.ConektaPaymentSourceID)
	return result, nil
}

func (c *correlator) findLinkedPaymentMethod(ctx context.Context, customerID, orderID, chargeID string) (*domain.PaymentMethod, error) {
	methods, err := c.primary.ListCustomPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("correlator: failed to list custom payment methods: %w", err)
	}
	for i := range methods {
		if domain.MatchesPaymentMethod(methods[i].Metadata, orderID, chargeID) {
			c.log.Debugw("Reusing custom payment method", "paymentMethodID", methods[i].ID, "chargeID", chargeID)
			return &methods[i], nil
		}
	}
	return nil, nil
}

// invoiceSettledBy проверяет отметку об оплате на счете, оставленную предыдущей обработкой этого платежа
func (c *correlator) invoiceSettledBy(ctx context.Context, invoiceID, chargeID string) bool {
	if invoiceID == "" {
		return false
	}
	invoice, err := c.primary.GetInvoice(ctx, invoiceID)
	if err != nil {
		c.log.Warnw("Failed to read invoice settlement metadata", "error", err, "invoiceID", invoiceID)
		return false
	}
	return invoice.Metadata[domain.MetaConektaChargeID] == chargeID &&
		invoice.Metadata[domain.MetaPaymentStatus] == domain.ChargeStatusPaid
}

func (c *correlator) settleInvoice(ctx context.Context, invoiceID string, order *domain.OrderObject, charge domain.Charge, pmID string, paidAt time.Time, amount int64, currency string) bool {
	settlement := domain.InvoiceSettlementMetadata{
		PaymentProcessor:  domain.PaymentProcessorConekta,
		ConektaOrderID:    order.ID,
		ConektaChargeID:   charge.ID,
		ExternalPaymentID: domain.ExternalIDForCharge(charge.ID),
		PaymentStatus:     domain.ChargeStatusPaid,
		PaidAt:            paidAt.UTC().Format(time.RFC3339),
		WebhookProcessed:  true,
	}
	if err := settlement.Validate(); err != nil {
		c.log.Warnw("Invalid invoice settlement metadata", "error", err, "invoiceID", invoiceID)
		return false
	}
	if err := c.primary.UpdateInvoiceMetadata(ctx, invoiceID, settlement.ToMap()); err != nil {
		c.log.Warnw("Failed to stamp invoice settlement metadata", "error", err, "invoiceID", invoiceID)
	}

	err := c.primary.AttachInvoicePayment(ctx, invoiceID, domain.InvoicePayment{
		Amount:          amount,
		Currency:        currency,
		PaidAt:          paidAt,
		PaymentMethodID: pmID,
		Reference:       charge.ID,
	})
	if err != nil {
		c.log.Warnw("Failed to attach payment to invoice", "error", err, "invoiceID", invoiceID, "chargeID", charge.ID)
		return false
	}
	return true
}

func (c *correlator) ReportDeclined(ctx context.Context, outcome ChargeOutcome) error {
	order, charge, corr := outcome.Order, outcome.Charge, outcome.Correlation
	if order == nil || charge.ID == "" {
		return fmt.Errorf("%w: order with a charge is required", domain.ErrInvalidInput)
	}

	failedAt := c.now()
	if charge.UpdatedAt != nil {
		failedAt = *charge.UpdatedAt
	}
	reason := charge.FailureCode
	if reason == "" {
		reason = "declined"
	}

	amount, currency := chargeAmount(order, charge)
	_, err := c.primary.ReportPayment(ctx, domain.PaymentReport{
		Outcome:       domain.PaymentOutcomeFailed,
		Amount:        amount,
		Currency:      currency,
		CustomerID:    corr.StripeCustomerID,
		InitiatedAt:   charge.CreatedAt,
		OutcomeAt:     failedAt,
		Reference:     charge.ID,
		FailureReason: reason,
		Metadata:      reportMetadata(order, charge, corr),
	})
	if err != nil {
		return fmt.Errorf("correlator: failed to report declined payment: %w", err)
	}
	c.log.Infow("Declined payment reported", "stripeCustomerID", corr.StripeCustomerID, "chargeID", charge.ID, "reason", reason)
	return nil
}

// recordLink сохраняет связь клиентов. Ошибка не прерывает операцию: метаданные остаются источником истины.
func (c *correlator) recordLink(ctx context.Context, primaryCustomerID, secondaryCustomerID, paymentSourceID string) {
	if primaryCustomerID == "" || secondaryCustomerID == "" {
		return
	}
	link := &domain.ProcessorLink{
		PrimaryCustomerID:   primaryCustomerID,
		SecondaryCustomerID: secondaryCustomerID,
	}
	if paymentSourceID != "" {
		link.SecondaryPaymentSourceID = &paymentSourceID
	}
	if err := c.links.Upsert(ctx, link); err != nil {
		c.log.Warnw("Failed to record processor link", "error", err, "stripeCustomerID", primaryCustomerID, "conektaCustomerID", secondaryCustomerID)
	}
}

func chargeAmount(order *domain.OrderObject, charge domain.Charge) (int64, string) {
	amount, currency := charge.Amount, charge.Currency
	if amount == 0 {
		amount = order.Amount
	}
	if currency == "" {
		currency = order.Currency
	}
	return amount, currency
}

func reportMetadata(order *domain.OrderObject, charge domain.Charge, corr domain.ChargeCorrelationMetadata) map[string]string {
	meta := map[string]string{
		domain.MetaConektaOrderID:   order.ID,
		domain.MetaConektaChargeID:  charge.ID,
		domain.MetaPaymentProcessor: domain.PaymentProcessorConekta,
	}
	if corr.StripeInvoiceID != "" {
		meta[domain.MetaStripeInvoiceID] = corr.StripeInvoiceID
	}
	if corr.StripeSubscriptionID != "" {
		meta[domain.MetaStripeSubscriptionID] = corr.StripeSubscriptionID
	}
	return meta
}
