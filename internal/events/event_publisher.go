package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(ctx context.Context, event interface{}) error
}

// Event type names, carried in the event-type header
const (
	TypeItemCreated    = "ItemCreated"
	TypeItemUpdated    = "ItemUpdated"
	TypeItemDeleted    = "ItemDeleted"
	TypeOrderPlaced    = "OrderPlaced"
	TypeOrderApproved  = "OrderApproved"
	TypeOrderCancelled = "OrderCancelled"
	TypeOrderCompleted = "OrderCompleted"
	TypeMessageSent    = "MessageSent"
)

// Item events
type ItemCreatedEvent struct {
	ItemID     uuid.UUID `json:"item_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Price      string    `json:"price"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ItemUpdatedEvent struct {
	ItemID uuid.UUID `json:"item_id"`
	// TextChanged is set when title or description changed and the vector went stale
	TextChanged bool      `json:"text_changed"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type ItemDeletedEvent struct {
	ItemID     uuid.UUID `json:"item_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Order events
type OrderPlacedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	ItemID       uuid.UUID `json:"item_id"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	OfferedPrice string    `json:"offered_price"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// OrderStatusChangedEvent covers approve, cancel and complete
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	ItemID     uuid.UUID `json:"item_id"`
	ActorID    uuid.UUID `json:"actor_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ItemStatus string    `json:"item_status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Message events
type MessageSentEvent struct {
	MessageID      int64     `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ItemID         uuid.UUID `json:"item_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	RecipientID    uuid.UUID `json:"recipient_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventType returns the header name of an event, or "Unknown"
func EventType(event interface{}) string {
	switch e := event.(type) {
	case ItemCreatedEvent:
		return TypeItemCreated
	case ItemUpdatedEvent:
		return TypeItemUpdated
	case ItemDeletedEvent:
		return TypeItemDeleted
	case OrderPlacedEvent:
		return TypeOrderPlaced
	case OrderStatusChangedEvent:
		switch e.To {
		case "approved":
			return TypeOrderApproved
		case "cancelled":
			return TypeOrderCancelled
		case "completed":
			return TypeOrderCompleted
		}
	case MessageSentEvent:
		return TypeMessageSent
	}
	return "Unknown"
}

// PartitionKey keeps all events of one item (or conversation) in order
func PartitionKey(event interface{}) string {
	switch e := event.(type) {
	case ItemCreatedEvent:
		return e.ItemID.String()
	case ItemUpdatedEvent:
		return e.ItemID.String()
	case ItemDeletedEvent:
		return e.ItemID.String()
	case OrderPlacedEvent:
		return e.ItemID.String()
	case OrderStatusChangedEvent:
		return e.ItemID.String()
	case MessageSentEvent:
		return e.ConversationID.String()
	}
	return ""
}

// InMemoryEventPublisher records events when no broker is reachable
type InMemoryEventPublisher struct {
	logger *zap.Logger
	mu     sync.Mutex
	events []interface{}
}

func NewEventPublisher(logger *zap.Logger) *InMemoryEventPublisher {
	return &InMemoryEventPublisher{
		logger: logger,
		events: make([]interface{}, 0),
	}
}

func (p *InMemoryEventPublisher) Publish(ctx context.Context, event interface{}) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	p.logger.Debug("Event published (in-memory)", zap.String("event-type", EventType(event)))
	return nil
}

// Events returns a copy of everything published so far
func (p *InMemoryEventPublisher) Events() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]interface{}, len(p.events))
	copy(out, p.events)
	return out
}
