package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/config"
	"campus-marketplace/internal/events"
	"campus-marketplace/internal/metrics"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Indexer is the part of the embedding index the listener drives
type Indexer interface {
	RefreshStale(ctx context.Context, limit int) (int, error)
	Remove(ctx context.Context, itemID uuid.UUID) error
}

// Consumer reads marketplace events to keep derived state fresh: the search
// cache and the item vectors
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	handler       *EventHandler
	logger        *zap.Logger
	groupID       string
	topics        []string
}

// NewConsumer creates a new Kafka consumer group
func NewConsumer(cfg *config.Config, handler *EventHandler, logger *zap.Logger) (*Consumer, error) {
	logger.Info("🔌 Creating Kafka consumer",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group_id", cfg.KafkaGroupID),
	)

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.KafkaClientID
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	consumerGroup, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.KafkaGroupID, saramaConfig)
	if err != nil {
		logger.Error("❌ Failed to create Kafka consumer group",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("✅ Kafka consumer group created successfully",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group_id", cfg.KafkaGroupID),
	)

	return &Consumer{
		consumerGroup: consumerGroup,
		handler:       handler,
		logger:        logger,
		groupID:       cfg.KafkaGroupID,
		topics:        []string{cfg.KafkaTopicItems, cfg.KafkaTopicOrders, cfg.KafkaTopicMessages},
	}, nil
}

// Start consumes until ctx is cancelled or the group fails
func (c *Consumer) Start(ctx context.Context) error {
	wg := &sync.WaitGroup{}
	wg.Add(1)

	var consumeErr error
	go func() {
		defer wg.Done()
		for {
			if err := c.consumerGroup.Consume(ctx, c.topics, c.handler); err != nil {
				c.logger.Error("Error from consumer", zap.Error(err))
				consumeErr = err
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.logger.Error("Consumer error", zap.Error(err))
		}
	}()

	c.logger.Info("✅ Kafka consumer started",
		zap.Strings("topics", c.topics),
		zap.String("group_id", c.groupID),
	)

	wg.Wait()
	return consumeErr
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}

// EventHandler implements sarama.ConsumerGroupHandler for marketplace events
type EventHandler struct {
	cache        cache.Cache
	index        Indexer
	refreshBatch int
	logger       *zap.Logger
}

// NewEventHandler creates the handler; refreshBatch bounds re-embedding per event
func NewEventHandler(cacheClient cache.Cache, index Indexer, refreshBatch int, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		cache:        cacheClient,
		index:        index,
		refreshBatch: refreshBatch,
		logger:       logger,
	}
}

// Setup is run at the beginning of a new session
func (h *EventHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session
func (h *EventHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages of one partition
func (h *EventHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			eventType := extractEventType(message.Headers)
			if eventType == "" {
				h.logger.Warn("Message without event type, skipping",
					zap.String("topic", message.Topic),
					zap.Int("partition", int(message.Partition)),
					zap.Int64("offset", message.Offset),
				)
				session.MarkMessage(message, "")
				continue
			}

			if err := h.HandleEvent(session.Context(), eventType, message.Value); err != nil {
				metrics.EventsConsumedTotal.WithLabelValues(eventType, "error").Inc()
				h.logger.Error("Failed to handle event",
					zap.String("event_type", eventType),
					zap.String("topic", message.Topic),
					zap.Error(err),
				)
			} else {
				metrics.EventsConsumedTotal.WithLabelValues(eventType, "success").Inc()
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// HandleEvent applies one event. Failures to re-embed are not errors: the
// periodic sweep retries them.
func (h *EventHandler) HandleEvent(ctx context.Context, eventType string, data []byte) error {
	switch eventType {
	case events.TypeItemCreated, events.TypeItemUpdated:
		h.invalidateSearch(ctx, eventType)
		if eventType == events.TypeItemUpdated && !textChanged(data) {
			return nil
		}
		h.refresh(ctx)
		return nil

	case events.TypeItemDeleted:
		h.invalidateSearch(ctx, eventType)
		var event events.ItemDeletedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("failed to decode %s: %w", eventType, err)
		}
		return h.index.Remove(ctx, event.ItemID)

	case events.TypeOrderPlaced, events.TypeOrderApproved, events.TypeOrderCancelled, events.TypeOrderCompleted:
		// Item availability changed
		h.invalidateSearch(ctx, eventType)
		return nil

	case events.TypeMessageSent:
		h.logger.Debug("Message event received", zap.String("event_type", eventType))
		return nil

	default:
		return fmt.Errorf("unknown event type: %s", eventType)
	}
}

func (h *EventHandler) invalidateSearch(ctx context.Context, eventType string) {
	if err := h.cache.DeleteByPattern(ctx, cache.SearchPrefix+"*"); err != nil {
		h.logger.Warn("Failed to invalidate search cache",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func (h *EventHandler) refresh(ctx context.Context) {
	n, err := h.index.RefreshStale(ctx, h.refreshBatch)
	if err != nil {
		h.logger.Warn("Stale refresh failed, will retry on sweep", zap.Int("refreshed", n), zap.Error(err))
		return
	}
	if n > 0 {
		h.logger.Info("Re-embedded stale items", zap.Int("count", n))
	}
}

func textChanged(data []byte) bool {
	var event events.ItemUpdatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// Unknown payload: refresh to be safe
		return true
	}
	return event.TextChanged
}

// extractEventType extracts event type from Kafka message headers
func extractEventType(headers []*sarama.RecordHeader) string {
	for _, header := range headers {
		if strings.EqualFold(string(header.Key), "event-type") {
			return string(header.Value)
		}
	}
	return ""
}
