package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// SignatureHeader заголовок с подписью вебхука Stripe
const SignatureHeader = "Stripe-Signature"

// ParseWebhook проверяет подпись и строит доменное событие
func (c *Client) ParseWebhook(payload []byte, signature string) (domain.Event, error) {
	if signature == "" {
		return domain.Event{}, fmt.Errorf("%w: missing %s header", domain.ErrWebhookValidationFailed, SignatureHeader)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		c.log.Warnw("Stripe webhook signature verification failed", "error", err)
		return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrWebhookValidationFailed, err)
	}
	return toDomainEvent(ev, payload)
}

// DecodeEvent разбирает сохраненный payload без проверки подписи (повторная обработка)
func (c *Client) DecodeEvent(payload []byte) (domain.Event, error) {
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("stripe: failed to decode event: %w", err)
	}
	return toDomainEvent(ev, payload)
}

func toDomainEvent(ev stripe.Event, payload []byte) (domain.Event, error) {
	out := domain.Event{
		ID:       ev.ID,
		Type:     domain.EventType(ev.Type),
		Provider: domain.ProviderStripe,
		Created:  time.Unix(ev.Created, 0).UTC(),
		Payload:  payload,
	}
	if ev.ID == "" {
		return out, fmt.Errorf("%w: stripe event without id", domain.ErrInvalidInput)
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return out, nil
	}

	subject, err := decodeSubject(string(ev.Type), ev.Data.Raw)
	if err != nil {
		return out, fmt.Errorf("stripe: failed to decode %s object: %w", ev.Type, err)
	}
	out.Subject = subject
	return out, nil
}

// decodeSubject выбирает тип объекта по префиксу типа события
func decodeSubject(eventType string, raw json.RawMessage) (domain.Subject, error) {
	switch {
	case strings.HasPrefix(eventType, "customer.subscription."):
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, err
		}
		return toSubscriptionObject(&sub)
	case strings.HasPrefix(eventType, "invoice."):
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, err
		}
		return toInvoiceObject(&inv), nil
	case strings.HasPrefix(eventType, "checkout.session."):
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return toCheckoutObject(&s), nil
	case eventType == "customer.created" || eventType == "customer.updated":
		var cus stripe.Customer
		if err := json.Unmarshal(raw, &cus); err != nil {
			return nil, err
		}
		return toCustomerObject(&cus), nil
	}
	return nil, nil
}
