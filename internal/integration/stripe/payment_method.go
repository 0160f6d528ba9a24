package stripe

import (
	"context"
	"errors"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
)

const paymentMethodTypeCustom = "custom"

// ListCustomPaymentMethods возвращает payment methods клиента с типом custom
func (c *Client) ListCustomPaymentMethods(ctx context.Context, customerID string) ([]domain.PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(paymentMethodTypeCustom),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var result []domain.PaymentMethod
	iter := c.api.PaymentMethods.List(params)
	for iter.Next() {
		result = append(result, toPaymentMethod(iter.PaymentMethod()))
	}
	if err := iter.Err(); err != nil {
		return nil, c.wrapError("list payment methods", "customer", customerID, err)
	}

	c.log.Debugw("Listed custom payment methods", "stripeCustomerID", customerID, "count", len(result))
	return result, nil
}

// CreateCustomPaymentMethod создает custom payment method, представляющий платеж Conekta
func (c *Client) CreateCustomPaymentMethod(ctx context.Context, metadata map[string]string) (*domain.PaymentMethod, error) {
	if c.customPMType == "" {
		return nil, errors.New("stripe: custom payment method type is not configured")
	}

	params := &stripe.PaymentMethodParams{
		Type: stripe.String(paymentMethodTypeCustom),
	}
	params.Context = ctx
	params.AddExtra("custom[type]", c.customPMType)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pm, err := c.api.PaymentMethods.New(params)
	if err != nil {
		return nil, c.wrapError("create custom payment method", "payment method", "", err)
	}

	c.log.Infow("Custom payment method created", "paymentMethodID", pm.ID)
	out := toPaymentMethod(pm)
	return &out, nil
}

// AttachPaymentMethod привязывает payment method к клиенту
func (c *Client) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx

	if _, err := c.api.PaymentMethods.Attach(paymentMethodID, params); err != nil {
		return c.wrapError("attach payment method", "payment method", paymentMethodID, err)
	}

	c.log.Infow("Payment method attached", "paymentMethodID", paymentMethodID, "stripeCustomerID", customerID)
	return nil
}
