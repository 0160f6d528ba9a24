package domain

import "time"

// ProcessorLink - явная связь клиента Stripe с клиентом и источником оплаты Conekta.
// Дополняет метаданные на стороне процессоров и позволяет искать по любому ID.
type ProcessorLink struct {
	ID                       int64     `db:"id" json:"id"`
	TeamID                   *int64    `db:"team_id" json:"team_id,omitempty"`
	PrimaryCustomerID        string    `db:"primary_customer_id" json:"primary_customer_id"`
	SecondaryCustomerID      string    `db:"secondary_customer_id" json:"secondary_customer_id"`
	SecondaryPaymentSourceID *string   `db:"secondary_payment_source_id" json:"secondary_payment_source_id,omitempty"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentSourceID возвращает сохраненный источник оплаты или пустую строку
func (l *ProcessorLink) PaymentSourceID() string {
	if l == nil || l.SecondaryPaymentSourceID == nil {
		return ""
	}
	return *l.SecondaryPaymentSourceID
}

// Product - локальная копия продукта Stripe
type Product struct {
	ID              int64     `db:"id" json:"id"`
	StripeProductID string    `db:"stripe_product_id" json:"stripe_product_id"`
	Name            string    `db:"name" json:"name"`
	Description     *string   `db:"description" json:"description,omitempty"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
