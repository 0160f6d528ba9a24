package service

import (
	"context"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
)

// PrimaryGateway операции первичного процессора (Stripe), нужные сервисам
type PrimaryGateway interface {
	GetCustomer(ctx context.Context, customerID string) (*domain.CustomerObject, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*domain.SubscriptionObject, error)
	ListIncompleteSubscriptions(ctx context.Context, customerID string) ([]domain.IncompleteSubscription, error)
	SetDefaultPaymentMethod(ctx context.Context, subscriptionID, paymentMethodID string) error
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*domain.SubscriptionObject, error)

	GetInvoice(ctx context.Context, invoiceID string) (*domain.InvoiceObject, error)
	UpdateInvoiceMetadata(ctx context.Context, invoiceID string, metadata map[string]string) error
	ListPaidInvoices(ctx context.Context, customerID string, limit int) ([]domain.InvoiceObject, error)
	AttachInvoicePayment(ctx context.Context, invoiceID string, payment domain.InvoicePayment) error

	ListCustomPaymentMethods(ctx context.Context, customerID string) ([]domain.PaymentMethod, error)
	CreateCustomPaymentMethod(ctx context.Context, metadata map[string]string) (*domain.PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	ReportPayment(ctx context.Context, report domain.PaymentReport) (*domain.PaymentRecord, error)
}

// SecondaryGateway операции вторичного процессора (Conekta)
type SecondaryGateway interface {
	SearchCustomersByEmail(ctx context.Context, email string) ([]domain.SecondaryCustomer, error)
	CreateCustomer(ctx context.Context, in domain.NewSecondaryCustomer) (*domain.SecondaryCustomer, error)
	ListPaymentSources(ctx context.Context, customerID string) ([]domain.PaymentSource, error)
	CreatePaymentSource(ctx context.Context, customerID, token string, meta domain.PaymentSourceMetadata) (*domain.PaymentSource, error)
	CreateOrder(ctx context.Context, in domain.OrderRequest) (*domain.OrderObject, error)
}

// EventDecoder разбирает сохраненный payload без проверки подписи (повторная обработка)
type EventDecoder interface {
	DecodeEvent(payload []byte) (domain.Event, error)
}

// AuditPublisher публикует записи аудита для рассылки уведомлений
type AuditPublisher interface {
	PublishSubscriptionEvent(ctx context.Context, event domain.SubscriptionEvent) error
}
