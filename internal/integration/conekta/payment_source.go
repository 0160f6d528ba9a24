package conekta

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
)

type paymentSourceResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Brand     string         `json:"brand"`
	Last4     string         `json:"last4"`
	CreatedAt int64          `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

func (r paymentSourceResponse) toDomain() domain.PaymentSource {
	src := domain.PaymentSource{
		ID:       r.ID,
		Type:     r.Type,
		Brand:    r.Brand,
		Last4:    r.Last4,
		Metadata: metadataMap(r.Metadata),
	}
	if r.CreatedAt > 0 {
		src.CreatedAt = time.Unix(r.CreatedAt, 0).UTC()
	}
	return src
}

// ListPaymentSources возвращает источники оплаты клиента
func (c *Client) ListPaymentSources(ctx context.Context, customerID string) ([]domain.PaymentSource, error) {
	var list struct {
		Data []paymentSourceResponse `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/customers/"+customerID+"/payment_sources", nil, "", &list); err != nil {
		c.log.Errorw("Failed to list Conekta payment sources", "error", err, "conektaCustomerID", customerID)
		return nil, fmt.Errorf("conekta: failed to list payment sources: %w", err)
	}

	sources := make([]domain.PaymentSource, 0, len(list.Data))
	for _, s := range list.Data {
		sources = append(sources, s.toDomain())
	}
	c.log.Debugw("Listed Conekta payment sources", "conektaCustomerID", customerID, "count", len(sources))
	return sources, nil
}

type createPaymentSourceRequest struct {
	Type     string            `json:"type"`
	TokenID  string            `json:"token_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreatePaymentSource создает карточный источник оплаты из токена
func (c *Client) CreatePaymentSource(ctx context.Context, customerID, token string, meta domain.PaymentSourceMetadata) (*domain.PaymentSource, error) {
	body := createPaymentSourceRequest{
		Type:     domain.PaymentSourceTypeCard,
		TokenID:  token,
		Metadata: meta.ToMap(),
	}

	var resp paymentSourceResponse
	if err := c.do(ctx, http.MethodPost, "/customers/"+customerID+"/payment_sources", body, "", &resp); err != nil {
		c.log.Errorw("Failed to create Conekta payment source", "error", err, "conektaCustomerID", customerID)
		return nil, fmt.Errorf("conekta: failed to create payment source: %w", err)
	}

	c.log.Infow("Conekta payment source created", "paymentSourceID", resp.ID, "conektaCustomerID", customerID)
	src := resp.toDomain()
	return &src, nil
}
