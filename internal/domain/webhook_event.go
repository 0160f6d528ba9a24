package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provider платежная система, приславшая событие
type Provider string

const (
	ProviderStripe  Provider = "stripe"
	ProviderConekta Provider = "conekta"
)

// EventType тип входящего события
type EventType string

const (
	// События подписок
	EventSubscriptionCreated      EventType = "customer.subscription.created"
	EventSubscriptionUpdated      EventType = "customer.subscription.updated"
	EventSubscriptionDeleted      EventType = "customer.subscription.deleted"
	EventSubscriptionTrialWillEnd EventType = "customer.subscription.trial_will_end"

	// События счетов
	EventInvoiceCreated          EventType = "invoice.created"
	EventInvoiceFinalized        EventType = "invoice.finalized"
	EventInvoiceUpdated          EventType = "invoice.updated"
	EventInvoiceUpcoming         EventType = "invoice.upcoming"
	EventInvoicePaid             EventType = "invoice.paid"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    EventType = "invoice.payment_failed"

	// Checkout и клиенты
	EventCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventCustomerCreated          EventType = "customer.created"
	EventCustomerUpdated          EventType = "customer.updated"

	// Методы оплаты
	EventSetupIntentCreated    EventType = "setup_intent.created"
	EventSetupIntentSucceeded  EventType = "setup_intent.succeeded"
	EventSetupIntentFailed     EventType = "setup_intent.setup_failed"
	EventPaymentMethodAttached EventType = "payment_method.attached"

	// Conekta
	EventOrderPaid     EventType = "order.paid"
	EventOrderDeclined EventType = "order.declined"
)

// KnownEventTypes все типы событий, для которых есть обработчик
var KnownEventTypes = []EventType{
	EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted, EventSubscriptionTrialWillEnd,
	EventInvoiceCreated, EventInvoiceFinalized, EventInvoiceUpdated, EventInvoiceUpcoming,
	EventInvoicePaid, EventInvoicePaymentSucceeded, EventInvoicePaymentFailed,
	EventCheckoutSessionCompleted, EventCustomerCreated, EventCustomerUpdated,
	EventSetupIntentCreated, EventSetupIntentSucceeded, EventSetupIntentFailed, EventPaymentMethodAttached,
	EventOrderPaid, EventOrderDeclined,
}

// ReceiptStatus статус обработки события
type ReceiptStatus string

const (
	ReceiptStatusPending ReceiptStatus = "pending"
	ReceiptStatusSuccess ReceiptStatus = "success"
	ReceiptStatusFailed  ReceiptStatus = "failed"
)

// WebhookReceipt - строка журнала входящих вебхуков.
// Не более одной строки на ExternalEventID может достичь статуса success.
type WebhookReceipt struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	ExternalEventID string        `db:"external_event_id" json:"external_event_id"` // ID события в платежной системе
	Provider        Provider      `db:"provider" json:"provider"`
	EventType       EventType     `db:"event_type" json:"event_type"`
	Status          ReceiptStatus `db:"status" json:"status"`
	Attempts        int           `db:"attempts" json:"attempts"`
	LastAttemptAt   time.Time     `db:"last_attempt_at" json:"last_attempt_at"`
	TeamID          *int64        `db:"team_id" json:"team_id,omitempty"`
	ErrorMessage    *string       `db:"error_message" json:"error_message,omitempty"`
	Payload         []byte        `db:"payload" json:"-"` // Сырой payload для повторной обработки
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	ProcessedAt     *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
}
