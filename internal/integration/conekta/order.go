package conekta

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
)

type lineItem struct {
	Name      string            `json:"name"`
	UnitPrice int64             `json:"unit_price"`
	Quantity  int               `json:"quantity"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type orderCharge struct {
	PaymentMethod struct {
		Type            string `json:"type"`
		PaymentSourceID string `json:"payment_source_id"`
	} `json:"payment_method"`
}

type createOrderRequest struct {
	Currency     string            `json:"currency"`
	CustomerInfo map[string]string `json:"customer_info"`
	LineItems    []lineItem        `json:"line_items"`
	Charges      []orderCharge     `json:"charges"`
	Metadata     map[string]string `json:"metadata"`
}

type chargeResponse struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
	CreatedAt      int64  `json:"created_at"`
	PaidAt         int64  `json:"paid_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	PaymentStatus string         `json:"payment_status"`
	Metadata      map[string]any `json:"metadata"`
	CustomerInfo  struct {
		CustomerID string `json:"customer_id"`
	} `json:"customer_info"`
	Charges struct {
		Data []chargeResponse `json:"data"`
	} `json:"charges"`
}

func (r orderResponse) toDomain() *domain.OrderObject {
	order := &domain.OrderObject{
		ID:            r.ID,
		Amount:        r.Amount,
		Currency:      strings.ToLower(r.Currency),
		PaymentStatus: r.PaymentStatus,
		CustomerID:    r.CustomerInfo.CustomerID,
		Metadata:      metadataMap(r.Metadata),
	}
	for _, ch := range r.Charges.Data {
		charge := domain.Charge{
			ID:             ch.ID,
			Amount:         ch.Amount,
			Currency:       strings.ToLower(ch.Currency),
			Status:         ch.Status,
			FailureCode:    ch.FailureCode,
			FailureMessage: ch.FailureMessage,
			PaidAt:         unixTime(ch.PaidAt),
			UpdatedAt:      unixTime(ch.UpdatedAt),
		}
		if created := unixTime(ch.CreatedAt); created != nil {
			charge.CreatedAt = *created
		}
		order.Charges = append(order.Charges, charge)
	}
	return order
}

// CreateOrder создает заказ с одним списанием по источнику оплаты.
// Отказ банка возвращается как *domain.ChargeRejectedError.
func (c *Client) CreateOrder(ctx context.Context, in domain.OrderRequest) (*domain.OrderObject, error) {
	description := in.Description
	if description == "" {
		description = "Subscription payment"
	}

	charge := orderCharge{}
	charge.PaymentMethod.Type = domain.PaymentSourceTypeCard
	charge.PaymentMethod.PaymentSourceID = in.PaymentSourceID

	body := createOrderRequest{
		Currency:     strings.ToUpper(in.Currency),
		CustomerInfo: map[string]string{"customer_id": in.CustomerID},
		LineItems: []lineItem{{
			Name:      description,
			UnitPrice: in.Amount,
			Quantity:  1,
			Metadata:  in.Metadata.LineItemMap(),
		}},
		Charges:  []orderCharge{charge},
		Metadata: in.Metadata.ToMap(),
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", body, in.IdempotencyKey, &resp); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) && isRejection(reqErr) {
			c.log.Warnw("Conekta rejected order",
				"type", reqErr.Body.Type,
				"code", reqErr.Body.code(),
				"message", reqErr.Body.text(),
				"invoiceID", in.Metadata.StripeInvoiceID,
			)
			return nil, domain.NewChargeRejectedError(rejectionType(reqErr), reqErr.Body.text(), in.Metadata.StripeInvoiceID)
		}
		c.log.Errorw("Failed to create Conekta order", "error", err, "invoiceID", in.Metadata.StripeInvoiceID)
		return nil, fmt.Errorf("conekta: failed to create order: %w", err)
	}

	order := resp.toDomain()
	c.log.Infow("Conekta order created",
		"orderID", order.ID,
		"paymentStatus", order.PaymentStatus,
		"amount", order.Amount,
		"invoiceID", in.Metadata.StripeInvoiceID,
	)
	return order, nil
}

// isRejection отличает отказ по карте от ошибок запроса и авторизации
func isRejection(err *requestError) bool {
	switch err.StatusCode {
	case http.StatusUnauthorized, http.StatusNotFound:
		return false
	}
	t := err.Body.Type
	return t == "processing_error" || t == "card_declined" || t == "insufficient_funds" ||
		err.StatusCode == http.StatusPaymentRequired
}

// rejectionType приводит тип и код ошибки Conekta к card_declined / insufficient_funds
func rejectionType(err *requestError) string {
	code := strings.ToLower(err.Body.code() + " " + err.Body.Type)
	switch {
	case strings.Contains(code, "insufficient_funds"):
		return string(domain.RejectionInsufficientFunds)
	case strings.Contains(code, "declined"):
		return string(domain.RejectionCardDeclined)
	}
	return err.Body.Type
}
