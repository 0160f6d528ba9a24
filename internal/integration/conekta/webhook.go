package conekta

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
)

// SignatureHeader заголовок с HMAC-подписью вебхука Conekta
const SignatureHeader = "Webhook-Signature"

type webhookEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
	Data      struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Sign вычисляет hex HMAC-SHA256 тела запроса
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook проверяет подпись и строит доменное событие.
// Без настроенного секрета любой запрос отклоняется.
func (c *Client) ParseWebhook(payload []byte, signature string) (domain.Event, error) {
	if c.webhookSecret == "" {
		c.log.Errorw("Conekta webhook rejected: webhook secret is not configured")
		return domain.Event{}, fmt.Errorf("%w: conekta webhook secret is not configured", domain.ErrWebhookValidationFailed)
	}
	if signature == "" {
		return domain.Event{}, fmt.Errorf("%w: missing %s header", domain.ErrWebhookValidationFailed, SignatureHeader)
	}
	expected := Sign(payload, c.webhookSecret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		c.log.Warnw("Conekta webhook signature mismatch")
		return domain.Event{}, fmt.Errorf("%w: signature mismatch", domain.ErrWebhookValidationFailed)
	}
	return c.DecodeEvent(payload)
}

// DecodeEvent разбирает событие без проверки подписи (повторная обработка)
func (c *Client) DecodeEvent(payload []byte) (domain.Event, error) {
	var ev webhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("%w: malformed conekta event: %v", domain.ErrWebhookValidationFailed, err)
	}
	if ev.ID == "" {
		return domain.Event{}, fmt.Errorf("%w: conekta event without id", domain.ErrInvalidInput)
	}

	out := domain.Event{
		ID:       ev.ID,
		Type:     domain.EventType(ev.Type),
		Provider: domain.ProviderConekta,
		Created:  time.Unix(ev.CreatedAt, 0).UTC(),
		Payload:  payload,
	}

	// Объект разбираем только для событий заказа
	if strings.HasPrefix(ev.Type, "order.") && len(ev.Data.Object) > 0 {
		var order orderResponse
		if err := json.Unmarshal(ev.Data.Object, &order); err != nil {
			return out, fmt.Errorf("conekta: failed to decode order object: %w", err)
		}
		out.Subject = order.toDomain()
	}
	return out, nil
}
