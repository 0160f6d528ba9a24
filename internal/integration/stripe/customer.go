package stripe

import (
	"context"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
)

// GetCustomer получает клиента из Stripe по ID
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*domain.CustomerObject, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cus, err := c.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, c.wrapError("get customer", "customer", customerID, err)
	}

	c.log.Debugw("Retrieved Stripe customer", "stripeCustomerID", cus.ID)
	return toCustomerObject(cus), nil
}
