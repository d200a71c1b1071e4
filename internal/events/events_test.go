package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"campus-marketplace/internal/config"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testTopics = Topics{Items: "marketplace.items", Orders: "marketplace.orders", Messages: "marketplace.messages"}

func header(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaEventPublisher_PublishesWithHeadersAndKey(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	publisher := NewKafkaEventPublisherWithProducer(producer, testTopics, zap.NewNop())
	itemID := uuid.New()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "marketplace.orders", msg.Topic)
		assert.Equal(t, TypeOrderApproved, header(msg, "event-type"))
		assert.NotEmpty(t, header(msg, "event-id"))
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, itemID.String(), string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(value, &decoded))
		assert.Equal(t, "approved", decoded["to"])
		return nil
	})

	err := publisher.Publish(context.Background(), OrderStatusChangedEvent{
		OrderID:    uuid.New(),
		ItemID:     itemID,
		From:       "pending",
		To:         "approved",
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, publisher.Close())
}

func TestKafkaEventPublisher_RetriesThenSucceeds(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	publisher := NewKafkaEventPublisherWithProducer(producer, testTopics, zap.NewNop())
	publisher.baseDelay = time.Millisecond

	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	producer.ExpectSendMessageAndSucceed()

	err := publisher.Publish(context.Background(), ItemDeletedEvent{ItemID: uuid.New(), OccurredAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, publisher.Close())
}

func TestKafkaEventPublisher_GivesUpAfterMaxRetries(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	publisher := NewKafkaEventPublisherWithProducer(producer, testTopics, zap.NewNop())
	publisher.baseDelay = time.Millisecond

	for i := 0; i < 3; i++ {
		producer.ExpectSendMessageAndFail(errors.New("broker down"))
	}

	err := publisher.Publish(context.Background(), MessageSentEvent{ConversationID: uuid.New()})
	assert.Error(t, err)
	require.NoError(t, publisher.Close())
}

func TestKafkaEventPublisher_UnknownEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	publisher := NewKafkaEventPublisherWithProducer(producer, testTopics, zap.NewNop())

	err := publisher.Publish(context.Background(), struct{}{})
	assert.Error(t, err)
	require.NoError(t, publisher.Close())
}

func TestEventTypeAndPartitionKey(t *testing.T) {
	convID := uuid.New()
	itemID := uuid.New()

	assert.Equal(t, TypeItemCreated, EventType(ItemCreatedEvent{}))
	assert.Equal(t, TypeOrderCompleted, EventType(OrderStatusChangedEvent{To: "completed"}))
	assert.Equal(t, TypeOrderCancelled, EventType(OrderStatusChangedEvent{To: "cancelled"}))
	assert.Equal(t, "Unknown", EventType("nope"))

	assert.Equal(t, convID.String(), PartitionKey(MessageSentEvent{ConversationID: convID, ItemID: itemID}))
	assert.Equal(t, itemID.String(), PartitionKey(OrderPlacedEvent{ItemID: itemID}))
}

func TestNewPublisher_FallsBackToMemory(t *testing.T) {
	publisher := NewPublisher(&config.Config{KafkaEnabled: false}, zap.NewNop())
	memory, ok := publisher.(*InMemoryEventPublisher)
	require.True(t, ok)

	require.NoError(t, memory.Publish(context.Background(), ItemCreatedEvent{Title: "Lamp"}))
	assert.Len(t, memory.Events(), 1)
}
