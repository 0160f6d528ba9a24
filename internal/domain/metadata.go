package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Ключи метаданных, которыми связываются объекты Stripe и Conekta
const (
	MetaStripeCustomerID       = "stripe_customer_id"
	MetaStripeSubscriptionID   = "stripe_subscription_id"
	MetaStripeInvoiceID        = "stripe_invoice_id"
	MetaStripePaymentIntentID  = "stripe_payment_intent_id"
	MetaConektaCustomerID      = "conekta_customer_id"
	MetaConektaPaymentSourceID = "conekta_payment_source_id"
	MetaConektaOrderID         = "conekta_order_id"
	MetaConektaChargeID        = "conekta_charge_id"
	MetaExternalID             = "external_id"
	MetaExternalPaymentID      = "external_payment_id"
	MetaPaymentProcessor       = "payment_processor"
	MetaPaymentStatus          = "payment_status"
	MetaPaidAt                 = "paid_at"
	MetaWebhookProcessed       = "webhook_processed"
	MetaFailureReason          = "failure_reason"
	MetaSource                 = "source"
	MetaCreatedFor             = "created_for"
	MetaCheckoutType           = "checkout_type"
)

// PaymentProcessorConekta значение payment_processor для внешних платежей
const PaymentProcessorConekta = "conekta"

// ErrInvalidMetadata метаданные не соответствуют схеме канала
var ErrInvalidMetadata = errors.New("invalid metadata")

var metaValidator = validator.New()

func validateChannel(channel string, v any) error {
	if err := metaValidator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+":"+fe.Tag())
			}
			return fmt.Errorf("%w: %s: %s", ErrInvalidMetadata, channel, strings.Join(fields, ","))
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, channel, err)
	}
	return nil
}

func putIfSet(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// ExternalIDForCharge синтезирует внешний ID для платежа Conekta
func ExternalIDForCharge(chargeID string) string {
	return PaymentProcessorConekta + "_" + chargeID
}

// SecondaryCustomerMetadata метаданные клиента Conekta, ссылающиеся на Stripe
type SecondaryCustomerMetadata struct {
	StripeCustomerID      string `validate:"required"`
	StripeSubscriptionID  string
	StripePaymentIntentID string
	Source                string
}

func (m SecondaryCustomerMetadata) ToMap() map[string]string {
	out := map[string]string{MetaStripeCustomerID: m.StripeCustomerID}
	putIfSet(out, MetaStripeSubscriptionID, m.StripeSubscriptionID)
	putIfSet(out, MetaStripePaymentIntentID, m.StripePaymentIntentID)
	putIfSet(out, MetaSource, m.Source)
	return out
}

// ParseSecondaryCustomerMetadata читает и валидирует метаданные клиента Conekta
func ParseSecondaryCustomerMetadata(meta map[string]string) (SecondaryCustomerMetadata, error) {
	m := SecondaryCustomerMetadata{
		StripeCustomerID:      meta[MetaStripeCustomerID],
		StripeSubscriptionID:  meta[MetaStripeSubscriptionID],
		StripePaymentIntentID: meta[MetaStripePaymentIntentID],
		Source:                meta[MetaSource],
	}
	return m, validateChannel("secondary_customer", m)
}

// PaymentSourceMetadata метаданные источника оплаты Conekta
type PaymentSourceMetadata struct {
	StripeCustomerID      string `validate:"required"`
	StripeInvoiceID       string
	StripePaymentIntentID string
	CreatedFor            string
}

func (m PaymentSourceMetadata) ToMap() map[string]string {
	out := map[string]string{MetaStripeCustomerID: m.StripeCustomerID}
	putIfSet(out, MetaStripeInvoiceID, m.StripeInvoiceID)
	putIfSet(out, MetaStripePaymentIntentID, m.StripePaymentIntentID)
	putIfSet(out, MetaCreatedFor, m.CreatedFor)
	return out
}

// ParsePaymentSourceMetadata читает и валидирует метаданные источника оплаты
func ParsePaymentSourceMetadata(meta map[string]string) (PaymentSourceMetadata, error) {
	m := PaymentSourceMetadata{
		StripeCustomerID:      meta[MetaStripeCustomerID],
		StripeInvoiceID:       meta[MetaStripeInvoiceID],
		StripePaymentIntentID: meta[MetaStripePaymentIntentID],
		CreatedFor:            meta[MetaCreatedFor],
	}
	return m, validateChannel("payment_source", m)
}

// ChargeCorrelationMetadata метаданные заказа Conekta.
// По ним вебхук order.paid находит счет, клиента и подписку в Stripe.
type ChargeCorrelationMetadata struct {
	StripeCustomerID       string `validate:"required"`
	StripeInvoiceID        string
	StripeSubscriptionID   string
	StripePaymentIntentID  string
	ConektaCustomerID      string
	ConektaPaymentSourceID string
	CheckoutType           string
}

func (m ChargeCorrelationMetadata) ToMap() map[string]string {
	out := map[string]string{MetaStripeCustomerID: m.StripeCustomerID}
	putIfSet(out, MetaStripeInvoiceID, m.StripeInvoiceID)
	putIfSet(out, MetaStripeSubscriptionID, m.StripeSubscriptionID)
	putIfSet(out, MetaStripePaymentIntentID, m.StripePaymentIntentID)
	putIfSet(out, MetaConektaCustomerID, m.ConektaCustomerID)
	putIfSet(out, MetaConektaPaymentSourceID, m.ConektaPaymentSourceID)
	putIfSet(out, MetaCheckoutType, m.CheckoutType)
	return out
}

// LineItemMap - подмножество для метаданных позиции заказа
func (m ChargeCorrelationMetadata) LineItemMap() map[string]string {
	out := map[string]string{}
	putIfSet(out, MetaStripeInvoiceID, m.StripeInvoiceID)
	putIfSet(out, MetaStripeSubscriptionID, m.StripeSubscriptionID)
	putIfSet(out, MetaStripePaymentIntentID, m.StripePaymentIntentID)
	return out
}

// ParseChargeCorrelationMetadata читает и валидирует метаданные заказа
func ParseChargeCorrelationMetadata(meta map[string]string) (ChargeCorrelationMetadata, error) {
	m := ChargeCorrelationMetadata{
		StripeCustomerID:       meta[MetaStripeCustomerID],
		StripeInvoiceID:        meta[MetaStripeInvoiceID],
		StripeSubscriptionID:   meta[MetaStripeSubscriptionID],
		StripePaymentIntentID:  meta[MetaStripePaymentIntentID],
		ConektaCustomerID:      meta[MetaConektaCustomerID],
		ConektaPaymentSourceID: meta[MetaConektaPaymentSourceID],
		CheckoutType:           meta[MetaCheckoutType],
	}
	return m, validateChannel("charge_correlation", m)
}

// PaymentMethodLinkMetadata метаданные custom payment method в Stripe,
// представляющего платеж Conekta.
type PaymentMethodLinkMetadata struct {
	ConektaOrderID         string `validate:"required"`
	ConektaChargeID        string `validate:"required"`
	ExternalID             string `validate:"required"`
	PaymentProcessor       string `validate:"required,eq=conekta"`
	ConektaCustomerID      string
	ConektaPaymentSourceID string
}

// NewPaymentMethodLinkMetadata заполняет синтезированный external_id
func NewPaymentMethodLinkMetadata(orderID, chargeID, secondaryCustomerID, paymentSourceID string) PaymentMethodLinkMetadata {
	return PaymentMethodLinkMetadata{
		ConektaOrderID:         orderID,
		ConektaChargeID:        chargeID,
		ExternalID:             ExternalIDForCharge(chargeID),
		PaymentProcessor:       PaymentProcessorConekta,
		ConektaCustomerID:      secondaryCustomerID,
		ConektaPaymentSourceID: paymentSourceID,
	}
}

func (m PaymentMethodLinkMetadata) ToMap() map[string]string {
	out := map[string]string{
		MetaConektaOrderID:   m.ConektaOrderID,
		MetaConektaChargeID:  m.ConektaChargeID,
		MetaExternalID:       m.ExternalID,
		MetaPaymentProcessor: m.PaymentProcessor,
	}
	putIfSet(out, MetaConektaCustomerID, m.ConektaCustomerID)
	putIfSet(out, MetaConektaPaymentSourceID, m.ConektaPaymentSourceID)
	return out
}

// Validate проверяет схему канала
func (m PaymentMethodLinkMetadata) Validate() error {
	return validateChannel("payment_method_link", m)
}

// MatchesPaymentMethod проверяет, представляет ли payment method с такими
// метаданными данный платеж или заказ Conekta.
func MatchesPaymentMethod(meta map[string]string, orderID, chargeID string) bool {
	if chargeID != "" && meta[MetaConektaChargeID] == chargeID {
		return true
	}
	if orderID != "" && meta[MetaConektaOrderID] == orderID {
		return true
	}
	return chargeID != "" &&
		meta[MetaPaymentProcessor] == PaymentProcessorConekta &&
		meta[MetaExternalID] == ExternalIDForCharge(chargeID)
}

// InvoiceSettlementMetadata метаданные счета, оплаченного вне Stripe
type InvoiceSettlementMetadata struct {
	PaymentProcessor  string `validate:"required"`
	ConektaOrderID    string `validate:"required"`
	ConektaChargeID   string
	ExternalPaymentID string
	PaymentStatus     string
	PaidAt            string
	WebhookProcessed  bool
}

func (m InvoiceSettlementMetadata) ToMap() map[string]string {
	out := map[string]string{
		MetaPaymentProcessor: m.PaymentProcessor,
		MetaConektaOrderID:   m.ConektaOrderID,
	}
	putIfSet(out, MetaConektaChargeID, m.ConektaChargeID)
	putIfSet(out, MetaExternalPaymentID, m.ExternalPaymentID)
	putIfSet(out, MetaPaymentStatus, m.PaymentStatus)
	putIfSet(out, MetaPaidAt, m.PaidAt)
	if m.WebhookProcessed {
		out[MetaWebhookProcessed] = "true"
	}
	return out
}

// Validate проверяет схему канала
func (m InvoiceSettlementMetadata) Validate() error {
	return validateChannel("invoice_settlement", m)
}

// HasSecondaryOrder сообщает, что по счету уже создан заказ в Conekta
func HasSecondaryOrder(invoiceMeta map[string]string) bool {
	return invoiceMeta[MetaConektaOrderID] != ""
}
