package domain

import "time"

// PaymentMethod - payment method в Stripe
type PaymentMethod struct {
	ID         string
	Type       string
	CustomerID string
	Metadata   map[string]string
}

// PaymentOutcome исход платежа, сообщаемый в payment records Stripe
type PaymentOutcome string

const (
	PaymentOutcomeGuaranteed PaymentOutcome = "guaranteed"
	PaymentOutcomeFailed     PaymentOutcome = "failed"
)

// PaymentReport - внешний платеж, о котором сообщаем в Stripe (report_payment)
type PaymentReport struct {
	Outcome         PaymentOutcome
	Amount          int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	InitiatedAt     time.Time
	OutcomeAt       time.Time
	Reference       string
	FailureReason   string
	Metadata        map[string]string
}

// IdempotencyKey один ключ на платеж и исход: повторный отчет о том же платеже не создает новую запись
func (r PaymentReport) IdempotencyKey() string {
	return "report_" + r.Reference + "_" + string(r.Outcome)
}

// PaymentRecord - созданная в Stripe запись о платеже
type PaymentRecord struct {
	ID string
}

// InvoicePayment - данные для attach_payment к счету
type InvoicePayment struct {
	Amount          int64
	Currency        string
	PaidAt          time.Time
	PaymentMethodID string
	Reference       string
}

// SecondaryCustomer - клиент в Conekta
type SecondaryCustomer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

// PaymentSource - источник оплаты (карта) клиента Conekta
type PaymentSource struct {
	ID        string
	Type      string
	Brand     string
	Last4     string
	CreatedAt time.Time
	Metadata  map[string]string
}

// PaymentSourceTypeCard тип карточного источника в Conekta
const PaymentSourceTypeCard = "card"

// NewSecondaryCustomer - данные для создания клиента в Conekta
type NewSecondaryCustomer struct {
	Email    string
	Name     string
	Metadata SecondaryCustomerMetadata
}

// OrderRequest - заказ в Conekta на сумму счета Stripe
type OrderRequest struct {
	CustomerID      string
	PaymentSourceID string
	Amount          int64
	Currency        string
	Description     string
	Metadata        ChargeCorrelationMetadata
	IdempotencyKey  string
}

// IncompleteSubscription - подписка, ожидающая первой оплаты, и ее последний счет
type IncompleteSubscription struct {
	Subscription SubscriptionObject
	Invoice      *InvoiceObject
}
