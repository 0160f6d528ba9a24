package stripe

import (
	"context"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
)

// GetSubscription получает подписку вместе с default payment method
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*domain.SubscriptionObject, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("default_payment_method")

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, c.wrapError("get subscription", "subscription", subscriptionID, err)
	}

	obj, err := toSubscriptionObject(sub)
	if err != nil {
		return nil, err
	}
	c.log.Debugw("Retrieved Stripe subscription", "stripeSubscriptionID", sub.ID, "status", string(sub.Status))
	return obj, nil
}

// ListIncompleteSubscriptions возвращает подписки клиента в статусе incomplete
// вместе с их последним счетом.
func (c *Client) ListIncompleteSubscriptions(ctx context.Context, customerID string) ([]domain.IncompleteSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusIncomplete)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(10)
	params.AddExpand("data.latest_invoice")

	var result []domain.IncompleteSubscription
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		obj, err := toSubscriptionObject(sub)
		if err != nil {
			c.log.Warnw("Skipping subscription with unexpected payload", "error", err, "stripeSubscriptionID", sub.ID)
			continue
		}
		item := domain.IncompleteSubscription{Subscription: *obj}
		if sub.LatestInvoice != nil && sub.LatestInvoice.Status != "" {
			item.Invoice = toInvoiceObject(sub.LatestInvoice)
		}
		result = append(result, item)
	}
	if err := iter.Err(); err != nil {
		return nil, c.wrapError("list incomplete subscriptions", "customer", customerID, err)
	}

	c.log.Debugw("Listed incomplete subscriptions", "stripeCustomerID", customerID, "count", len(result))
	return result, nil
}

// SetDefaultPaymentMethod назначает payment method подписки по умолчанию
func (c *Client) SetDefaultPaymentMethod(ctx context.Context, subscriptionID, paymentMethodID string) error {
	params := &stripe.SubscriptionParams{
		DefaultPaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx

	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return c.wrapError("update subscription default payment method", "subscription", subscriptionID, err)
	}

	c.log.Infow("Subscription default payment method updated",
		"stripeSubscriptionID", subscriptionID, "paymentMethodID", paymentMethodID)
	return nil
}

// SetCancelAtPeriodEnd включает или выключает отмену подписки в конце периода
func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*domain.SubscriptionObject, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, c.wrapError("update subscription cancel_at_period_end", "subscription", subscriptionID, err)
	}

	c.log.Infow("Subscription cancel_at_period_end updated", "stripeSubscriptionID", subscriptionID, "cancel", cancel)
	return toSubscriptionObject(sub)
}
