package stripe

import (
	"context"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
)

// GetProduct получает продукт из Stripe
func (c *Client) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx

	p, err := c.api.Products.Get(productID, params)
	if err != nil {
		return nil, c.wrapError("get product", "product", productID, err)
	}

	c.log.Debugw("Retrieved Stripe product", "productID", p.ID, "name", p.Name)
	return toProduct(p), nil
}
