package conekta

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
)

type customerResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata"`
}

type customerList struct {
	HasMore bool               `json:"has_more"`
	Data    []customerResponse `json:"data"`
}

func (r customerResponse) toDomain() domain.SecondaryCustomer {
	return domain.SecondaryCustomer{
		ID:       r.ID,
		Email:    r.Email,
		Name:     r.Name,
		Metadata: metadataMap(r.Metadata),
	}
}

// SearchCustomersByEmail ищет клиентов Conekta по email
func (c *Client) SearchCustomersByEmail(ctx context.Context, email string) ([]domain.SecondaryCustomer, error) {
	c.log.Debugw("Searching Conekta customers", "email", email)

	var list customerList
	path := "/customers?email=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &list); err != nil {
		c.log.Errorw("Failed to search Conekta customers", "error", err, "email", email)
		return nil, fmt.Errorf("conekta: failed to search customers: %w", err)
	}

	customers := make([]domain.SecondaryCustomer, 0, len(list.Data))
	for _, cus := range list.Data {
		customers = append(customers, cus.toDomain())
	}
	return customers, nil
}

type createCustomerRequest struct {
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateCustomer создает нового клиента в Conekta
func (c *Client) CreateCustomer(ctx context.Context, in domain.NewSecondaryCustomer) (*domain.SecondaryCustomer, error) {
	name := in.Name
	if name == "" {
		// Conekta требует имя клиента
		name = in.Email
	}
	body := createCustomerRequest{
		Name:     name,
		Email:    in.Email,
		Metadata: in.Metadata.ToMap(),
	}

	var resp customerResponse
	if err := c.do(ctx, http.MethodPost, "/customers", body, "", &resp); err != nil {
		c.log.Errorw("Failed to create Conekta customer", "error", err, "email", in.Email)
		return nil, fmt.Errorf("conekta: failed to create customer: %w", err)
	}

	c.log.Infow("Conekta customer created", "conektaCustomerID", resp.ID, "stripeCustomerID", in.Metadata.StripeCustomerID)
	cus := resp.toDomain()
	return &cus, nil
}
