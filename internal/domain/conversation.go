package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
)

// MaxMessageLength bounds a single message body
const MaxMessageLength = 5000

// conversationNamespace seeds the deterministic conversation ids
var conversationNamespace = uuid.MustParse("6f1c2b5e-8a47-4e59-9a1f-3c2d7e0b9a11")

// ConversationID derives the stable key of a buyer/seller/item triple
func ConversationID(buyerID, sellerID, itemID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(conversationNamespace, []byte(buyerID.String()+"|"+sellerID.String()+"|"+itemID.String()))
}

// Conversation groups the messages exchanged about one item
type Conversation struct {
	ID        uuid.UUID
	ItemID    uuid.UUID
	BuyerID   uuid.UUID
	SellerID  uuid.UUID
	CreatedAt time.Time
}

// NewConversation builds the conversation for the triple
func NewConversation(buyerID, sellerID, itemID uuid.UUID) (*Conversation, error) {
	if buyerID == sellerID {
		return nil, apperrors.NewValidationError("cannot send a message to yourself", "recipient_id")
	}
	return &Conversation{
		ID:        ConversationID(buyerID, sellerID, itemID),
		ItemID:    itemID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsParticipant reports whether userID is the buyer or the seller
func (c *Conversation) IsParticipant(userID uuid.UUID) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// Counterpart returns the other participant
func (c *Conversation) Counterpart(userID uuid.UUID) uuid.UUID {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// Message is an append-only entry; only ReadAt ever changes
type Message struct {
	ID             int64
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Body           string
	CreatedAt      time.Time
	ReadAt         *time.Time
}

// ValidateMessageBody trims and bounds a body
func ValidateMessageBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperrors.NewValidationError("message content is required", "content")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", apperrors.NewValidationError("message content must be at most 5000 characters", "content")
	}
	return body, nil
}

// NextMessageTime keeps timestamps strictly increasing within a conversation
func NextMessageTime(now time.Time, previous *time.Time) time.Time {
	now = now.UTC()
	if previous != nil && !now.After(*previous) {
		return previous.Add(time.Microsecond)
	}
	return now
}

// ConversationSummary is a conversation as seen by one participant
type ConversationSummary struct {
	Conversation
	ItemTitle   string
	LastMessage *Message
	UnreadCount int
}

// UnreadBySender is one row of the unread breakdown
type UnreadBySender struct {
	SenderID uuid.UUID `json:"sender_id" db:"sender_id"`
	Count    int       `json:"count" db:"count"`
}
