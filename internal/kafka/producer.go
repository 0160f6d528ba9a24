package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/IBM/sarama"
)

// SubscriptionEventMessage - тело сообщения аудита подписки
type SubscriptionEventMessage struct {
	ID                   int64                      `json:"id"`
	TeamID               int64                      `json:"team_id"`
	Kind                 domain.EventKind           `json:"event_kind"`
	PreviousStatus       *domain.SubscriptionStatus `json:"previous_status,omitempty"`
	NewStatus            *domain.SubscriptionStatus `json:"new_status,omitempty"`
	StripeSubscriptionID *string                    `json:"stripe_subscription_id,omitempty"`
	Description          string                     `json:"description"`
	CreatedAt            time.Time                  `json:"created_at"`
}

// AuditProducer публикует записи аудита подписок в Kafka
type AuditProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewAuditProducer подключается к брокерам и создает SyncProducer
func NewAuditProducer(cfg *Config, log *logger.Logger) (*AuditProducer, error) {
	if len(cfg.Brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	sp, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		log.Errorw("Failed to create Kafka producer", "error", err, "brokers", cfg.Brokers)
		return nil, fmt.Errorf("kafka: failed to create producer: %w", err)
	}

	log.Infow("Kafka producer initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return NewAuditProducerFromSync(sp, cfg.Topic, log), nil
}

// NewAuditProducerFromSync оборачивает готовый SyncProducer
func NewAuditProducerFromSync(sp sarama.SyncProducer, topic string, log *logger.Logger) *AuditProducer {
	if topic == "" {
		topic = TopicSubscriptionEvents
	}
	return &AuditProducer{producer: sp, topic: topic, log: log}
}

// PublishSubscriptionEvent отправляет запись аудита; ключ - ID команды,
// чтобы события одной команды попадали в одну партицию.
func (p *AuditProducer) PublishSubscriptionEvent(ctx context.Context, event domain.SubscriptionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(SubscriptionEventMessage{
		ID:                   event.ID,
		TeamID:               event.TeamID,
		Kind:                 event.Kind,
		PreviousStatus:       event.PreviousStatus,
		NewStatus:            event.NewStatus,
		StripeSubscriptionID: event.StripeSubscriptionID,
		Description:          event.Description,
		CreatedAt:            event.CreatedAt,
	})
	if err != nil {
		p.log.Errorw("Failed to marshal subscription event for Kafka", "error", err, "teamID", event.TeamID)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(event.TeamID, 10)),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_kind"),
				Value: []byte(event.Kind),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.log.Errorw("Failed to publish subscription event", "error", err, "topic", p.topic, "teamID", event.TeamID)
		return fmt.Errorf("kafka: failed to publish subscription event: %w", err)
	}

	p.log.Debugw("Published subscription event",
		"topic", p.topic, "partition", partition, "offset", offset, "teamID", event.TeamID, "kind", string(event.Kind))
	return nil
}

// Close закрывает продюсер
func (p *AuditProducer) Close() error {
	return p.producer.Close()
}
