package stripe

import (
	"fmt"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
)

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// toSubscriptionObject преобразует подписку Stripe в доменный снимок
func toSubscriptionObject(sub *stripe.Subscription) (*domain.SubscriptionObject, error) {
	status, err := domain.ParseSubscriptionStatus(string(sub.Status))
	if err != nil {
		return nil, fmt.Errorf("stripe: subscription %s: %w", sub.ID, err)
	}

	obj := &domain.SubscriptionObject{
		ID:                sub.ID,
		CustomerID:        customerID(sub.Customer),
		Status:            status,
		CurrentPeriodEnd:  unixTime(sub.CurrentPeriodEnd),
		TrialEnd:          unixTime(sub.TrialEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		if price := sub.Items.Data[0].Price; price != nil && price.Product != nil {
			obj.ProductID = price.Product.ID
		}
	}
	if pm := sub.DefaultPaymentMethod; pm != nil {
		obj.DefaultPaymentMethodID = pm.ID
		obj.DefaultPaymentMethodMetadata = pm.Metadata
	}
	return obj, nil
}

// toInvoiceObject преобразует счет Stripe в доменный снимок
func toInvoiceObject(inv *stripe.Invoice) *domain.InvoiceObject {
	obj := &domain.InvoiceObject{
		ID:            inv.ID,
		CustomerID:    customerID(inv.Customer),
		CustomerEmail: inv.CustomerEmail,
		CustomerName:  inv.CustomerName,
		Status:        string(inv.Status),
		AmountDue:     inv.AmountDue,
		AmountPaid:    inv.AmountPaid,
		Currency:      string(inv.Currency),
		Description:   inv.Description,
		Metadata:      inv.Metadata,
	}
	if inv.Subscription != nil {
		obj.SubscriptionID = inv.Subscription.ID
	}
	if inv.PaymentIntent != nil {
		obj.PaymentIntentID = inv.PaymentIntent.ID
	}
	if inv.StatusTransitions != nil {
		obj.PaidAt = unixTime(inv.StatusTransitions.PaidAt)
	}
	return obj
}

func toCheckoutObject(s *stripe.CheckoutSession) *domain.CheckoutObject {
	obj := &domain.CheckoutObject{
		ID:         s.ID,
		CustomerID: customerID(s.Customer),
		Mode:       string(s.Mode),
	}
	if s.Subscription != nil {
		obj.SubscriptionID = s.Subscription.ID
	}
	return obj
}

func toCustomerObject(c *stripe.Customer) *domain.CustomerObject {
	return &domain.CustomerObject{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Metadata: c.Metadata,
	}
}

func toPaymentMethod(pm *stripe.PaymentMethod) domain.PaymentMethod {
	return domain.PaymentMethod{
		ID:         pm.ID,
		Type:       string(pm.Type),
		CustomerID: customerID(pm.Customer),
		Metadata:   pm.Metadata,
	}
}

func toProduct(p *stripe.Product) *domain.Product {
	product := &domain.Product{
		StripeProductID: p.ID,
		Name:            p.Name,
		Active:          p.Active,
	}
	if p.Description != "" {
		desc := p.Description
		product.Description = &desc
	}
	return product
}
