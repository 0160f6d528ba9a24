package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditProducer_PublishSubscriptionEvent(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	sp := mocks.NewSyncProducer(t, cfg)

	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, TopicSubscriptionEvents, msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "42", string(key))

		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "event_kind", string(msg.Headers[0].Key))
		assert.Equal(t, "status_change", string(msg.Headers[0].Value))

		raw, err := msg.Value.Encode()
		require.NoError(t, err)
		var body SubscriptionEventMessage
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, int64(42), body.TeamID)
		require.NotNil(t, body.NewStatus)
		assert.Equal(t, domain.SubscriptionStatusActive, *body.NewStatus)
		return nil
	})

	p := NewAuditProducerFromSync(sp, "", logger.NewNop())
	status := domain.SubscriptionStatusActive
	err := p.PublishSubscriptionEvent(context.Background(), domain.SubscriptionEvent{
		ID:          1,
		TeamID:      42,
		Kind:        domain.EventKindStatusChange,
		NewStatus:   &status,
		Description: "Subscription status changed",
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestAuditProducer_PublishFailure(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	sp := mocks.NewSyncProducer(t, cfg)
	sp.ExpectSendMessageAndFail(errors.New("broker down"))

	p := NewAuditProducerFromSync(sp, "custom.topic", logger.NewNop())
	err := p.PublishSubscriptionEvent(context.Background(), domain.SubscriptionEvent{TeamID: 1, Kind: domain.EventKindPaymentFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	require.NoError(t, p.Close())
}
