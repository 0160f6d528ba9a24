package domain

import "time"

// Event - проверенный конверт входящего вебхука.
// Subject содержит объект события одного из типов ниже.
type Event struct {
	ID       string
	Type     EventType
	Provider Provider
	Created  time.Time
	Payload  []byte
	Subject  Subject
}

// Subject - объект, к которому относится событие
type Subject interface {
	// PrimaryCustomerID возвращает ID клиента в Stripe, если он известен
	PrimaryCustomerID() string
	subject()
}

// CustomerID возвращает ID клиента Stripe из объекта события
func (e Event) CustomerID() string {
	if e.Subject == nil {
		return ""
	}
	return e.Subject.PrimaryCustomerID()
}

// SubscriptionObject снимок подписки Stripe
type SubscriptionObject struct {
	ID                           string
	CustomerID                   string
	Status                       SubscriptionStatus
	ProductID                    string
	CurrentPeriodEnd             *time.Time
	TrialEnd                     *time.Time
	CancelAtPeriodEnd            bool
	DefaultPaymentMethodID       string
	// Метаданные default payment method, если он был раскрыт (expand)
	DefaultPaymentMethodMetadata map[string]string
	Metadata                     map[string]string
}

func (s *SubscriptionObject) PrimaryCustomerID() string { return s.CustomerID }
func (*SubscriptionObject) subject()                    {}

// InvoiceObject снимок счета Stripe
type InvoiceObject struct {
	ID              string
	CustomerID      string
	CustomerEmail   string
	CustomerName    string
	SubscriptionID  string
	PaymentIntentID string
	Status          string
	AmountDue       int64
	AmountPaid      int64
	Currency        string
	Description     string
	PaidAt          *time.Time
	Metadata        map[string]string
}

func (i *InvoiceObject) PrimaryCustomerID() string { return i.CustomerID }
func (*InvoiceObject) subject()                    {}

// CheckoutObject снимок checkout-сессии Stripe
type CheckoutObject struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Mode           string
}

func (c *CheckoutObject) PrimaryCustomerID() string { return c.CustomerID }
func (*CheckoutObject) subject()                    {}

// CustomerObject снимок клиента Stripe
type CustomerObject struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

func (c *CustomerObject) PrimaryCustomerID() string { return c.ID }
func (*CustomerObject) subject()                    {}

// OrderObject снимок заказа Conekta
type OrderObject struct {
	ID            string
	Amount        int64
	Currency      string
	PaymentStatus string
	CustomerID    string // ID клиента в Conekta
	Metadata      map[string]string
	Charges       []Charge
}

// PrimaryCustomerID берется из метаданных заказа
func (o *OrderObject) PrimaryCustomerID() string { return o.Metadata[MetaStripeCustomerID] }
func (*OrderObject) subject()                    {}

// FirstCharge возвращает первый платеж заказа
func (o *OrderObject) FirstCharge() (Charge, bool) {
	if o == nil || len(o.Charges) == 0 {
		return Charge{}, false
	}
	return o.Charges[0], true
}

// Charge платеж внутри заказа Conekta
type Charge struct {
	ID             string
	Amount         int64
	Currency       string
	Status         string
	FailureCode    string
	FailureMessage string
	CreatedAt      time.Time
	PaidAt         *time.Time
	UpdatedAt      *time.Time
}

// ChargeStatusPaid статус успешного платежа в Conekta
const ChargeStatusPaid = "paid"
