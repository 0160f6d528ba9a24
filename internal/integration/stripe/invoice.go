package stripe

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
)

// GetInvoice получает счет из Stripe
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*domain.InvoiceObject, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx

	inv, err := c.api.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, c.wrapError("get invoice", "invoice", invoiceID, err)
	}

	c.log.Debugw("Retrieved Stripe invoice", "invoiceID", inv.ID, "status", string(inv.Status))
	return toInvoiceObject(inv), nil
}

// UpdateInvoiceMetadata дописывает ключи в метаданные счета
func (c *Client) UpdateInvoiceMetadata(ctx context.Context, invoiceID string, metadata map[string]string) error {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	if _, err := c.api.Invoices.Update(invoiceID, params); err != nil {
		return c.wrapError("update invoice metadata", "invoice", invoiceID, err)
	}

	c.log.Debugw("Invoice metadata updated", "invoiceID", invoiceID, "keys", len(metadata))
	return nil
}

// ListPaidInvoices возвращает оплаченные счета клиента, новые первыми
func (c *Client) ListPaidInvoices(ctx context.Context, customerID string, limit int) ([]domain.InvoiceObject, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.InvoiceStatusPaid)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	// Только первая страница
	params.Single = true

	var result []domain.InvoiceObject
	iter := c.api.Invoices.List(params)
	for iter.Next() {
		result = append(result, *toInvoiceObject(iter.Invoice()))
	}
	if err := iter.Err(); err != nil {
		return nil, c.wrapError("list paid invoices", "customer", customerID, err)
	}
	return result, nil
}

type invoicePaymentResponse struct {
	stripe.APIResource
	ID string `json:"id"`
}

// AttachInvoicePayment прикрепляет внешний платеж к счету (attach_payment).
// После этого Stripe считает счет оплаченным вне своей системы.
func (c *Client) AttachInvoicePayment(ctx context.Context, invoiceID string, payment domain.InvoicePayment) error {
	params := &stripe.Params{}
	params.AddExtra("payment_record_data[amount]", strconv.FormatInt(payment.Amount, 10))
	params.AddExtra("payment_record_data[currency]", payment.Currency)
	params.AddExtra("payment_record_data[money_movement_type]", "out_of_band")
	params.AddExtra("payment_record_data[paid_at]", strconv.FormatInt(payment.PaidAt.Unix(), 10))
	if payment.PaymentMethodID != "" {
		params.AddExtra("payment_record_data[payment_method]", payment.PaymentMethodID)
	}
	params.AddExtra("payment_record_data[payment_reference]", payment.Reference)

	var resp invoicePaymentResponse
	path := "/v1/invoices/" + invoiceID + "/attach_payment"
	if err := c.call(ctx, http.MethodPost, path, params, &resp); err != nil {
		return c.wrapError("attach invoice payment", "invoice", invoiceID, err)
	}

	c.log.Infow("Out-of-band payment attached to invoice", "invoiceID", invoiceID, "reference", payment.Reference)
	return nil
}
