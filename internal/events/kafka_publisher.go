package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"campus-marketplace/internal/config"
	"campus-marketplace/internal/metrics"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topics maps event families to Kafka topics
type Topics struct {
	Items    string
	Orders   string
	Messages string
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer   sarama.SyncProducer
	logger     *zap.Logger
	topics     Topics
	maxRetries int
	baseDelay  time.Duration
}

// NewPublisher returns a Kafka publisher, or the in-memory one when Kafka is
// disabled or unreachable
func NewPublisher(cfg *config.Config, logger *zap.Logger) EventPublisher {
	if !cfg.KafkaEnabled {
		logger.Info("Kafka disabled (KAFKA_ENABLED=false), using in-memory event publisher")
		return NewEventPublisher(logger)
	}
	publisher, err := NewKafkaEventPublisher(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize Kafka publisher, using in-memory fallback", zap.Error(err))
		return NewEventPublisher(logger)
	}
	return publisher
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(cfg *config.Config, logger *zap.Logger) (*KafkaEventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.KafkaClientID
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Retry.Max = cfg.KafkaRetries
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	switch cfg.KafkaAcks {
	case "0":
		saramaConfig.Producer.RequiredAcks = sarama.NoResponse
	case "1":
		saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	}
	// Idempotent producers require acks=all
	if saramaConfig.Producer.RequiredAcks != sarama.WaitForAll {
		saramaConfig.Producer.Idempotent = false
	}

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewKafkaEventPublisherWithProducer(producer, Topics{
		Items:    cfg.KafkaTopicItems,
		Orders:   cfg.KafkaTopicOrders,
		Messages: cfg.KafkaTopicMessages,
	}, logger), nil
}

// NewKafkaEventPublisherWithProducer wraps an existing producer
func NewKafkaEventPublisherWithProducer(producer sarama.SyncProducer, topics Topics, logger *zap.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer:   producer,
		logger:     logger,
		topics:     topics,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
	}
}

// Publish publishes an event to Kafka with retries and exponential backoff
func (p *KafkaEventPublisher) Publish(ctx context.Context, event interface{}) error {
	topic, err := p.topicFor(event)
	if err != nil {
		return fmt.Errorf("failed to determine topic: %w", err)
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventType := EventType(event)
	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(eventJSON),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(eventType)},
			{Key: []byte("event-id"), Value: []byte(uuid.New().String())},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	if key := PartitionKey(event); key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		partition, offset, err := p.producer.SendMessage(message)
		if err == nil {
			p.logger.Info("Event published to Kafka",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Int64("offset", offset),
				zap.String("event-type", eventType),
				zap.Int("attempt", attempt+1),
			)
			metrics.EventsPublishedTotal.WithLabelValues(topic, "success").Inc()
			return nil
		}

		p.logger.Warn("Failed to publish event to Kafka, retrying",
			zap.String("topic", topic),
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", p.maxRetries),
		)

		if attempt < p.maxRetries-1 {
			delay := p.baseDelay * time.Duration(1<<uint(attempt)) // 100ms, 200ms, 400ms
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	metrics.EventsPublishedTotal.WithLabelValues(topic, "error").Inc()
	return fmt.Errorf("failed to publish event to Kafka after %d attempts", p.maxRetries)
}

// Close closes the Kafka producer
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func (p *KafkaEventPublisher) topicFor(event interface{}) (string, error) {
	switch event.(type) {
	case ItemCreatedEvent, ItemUpdatedEvent, ItemDeletedEvent:
		return p.topics.Items, nil
	case OrderPlacedEvent, OrderStatusChangedEvent:
		return p.topics.Orders, nil
	case MessageSentEvent:
		return p.topics.Messages, nil
	default:
		return "", fmt.Errorf("unknown event type: %T", event)
	}
}
