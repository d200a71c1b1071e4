package service

import (
	"context"
	"time"

	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/events"
	"campus-marketplace/internal/metrics"
	"campus-marketplace/internal/repository"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnreadSummary is the total of unread messages with a per-sender breakdown
type UnreadSummary struct {
	Total    int
	BySender []domain.UnreadBySender
}

// ConversationService appends messages and tracks what each participant has read
type ConversationService struct {
	base
	now func() time.Time
}

func NewConversationService(store repository.Store, publisher events.EventPublisher, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		base: base{store: store, publisher: publisher, logger: logger},
		now:  time.Now,
	}
}

// Send appends a message to the conversation of the buyer, seller and item.
// A non-owner is always the buyer; the owner must name the buyer.
func (s *ConversationService) Send(ctx context.Context, cmd commands.SendMessageCommand) (*domain.Message, *domain.Conversation, error) {
	body, err := domain.ValidateMessageBody(cmd.Body)
	if err != nil {
		return nil, nil, err
	}

	var (
		conv *domain.Conversation
		msg  *domain.Message
	)
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		item, err := tx.Items().FindByID(ctx, cmd.ItemID)
		if err != nil {
			return err
		}

		buyerID := cmd.SenderID
		if item.IsOwnedBy(cmd.SenderID) {
			if cmd.RecipientID == nil {
				return apperrors.NewValidationError("recipient_id is required when messaging about your own item", "recipient_id")
			}
			buyerID = *cmd.RecipientID
		} else if cmd.RecipientID != nil && *cmd.RecipientID != item.OwnerID {
			return apperrors.NewValidationError("recipient must be the owner of the item", "recipient_id")
		}

		candidate, err := domain.NewConversation(buyerID, item.OwnerID, item.ID)
		if err != nil {
			return err
		}
		if buyerID != cmd.SenderID {
			if _, err := tx.Users().FindByID(ctx, buyerID); err != nil {
				return err
			}
		}
		conv, err = tx.Conversations().Ensure(ctx, candidate)
		if err != nil {
			return err
		}

		last, err := tx.Conversations().LastMessage(ctx, conv.ID)
		if err != nil {
			return err
		}
		var previous *time.Time
		if last != nil {
			previous = &last.CreatedAt
		}
		msg = &domain.Message{
			ConversationID: conv.ID,
			SenderID:       cmd.SenderID,
			Body:           body,
			CreatedAt:      domain.NextMessageTime(s.now(), previous),
		}
		return tx.Conversations().Append(ctx, msg)
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.MessagesSentTotal.Inc()
	s.publish(ctx, events.MessageSentEvent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		ItemID:         conv.ItemID,
		SenderID:       msg.SenderID,
		RecipientID:    conv.Counterpart(msg.SenderID),
		OccurredAt:     msg.CreatedAt,
	})
	return msg, conv, nil
}

// List returns the user's conversations with last message and unread count
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationSummary, error) {
	return s.store.Conversations().ListSummaries(ctx, userID)
}

// Messages returns the conversation in order and marks it read for the viewer
func (s *ConversationService) Messages(ctx context.Context, conversationID, viewerID uuid.UUID) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := s.markViewed(ctx, tx, conversationID, viewerID, nil); err != nil {
			return err
		}
		var err error
		messages, err = tx.Conversations().ListMessages(ctx, conversationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead marks the conversation read and returns how many messages changed
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, viewerID uuid.UUID) (int, error) {
	var marked int
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		return s.markViewed(ctx, tx, conversationID, viewerID, &marked)
	})
	return marked, err
}

// Unread totals the messages the user has not viewed yet
func (s *ConversationService) Unread(ctx context.Context, userID uuid.UUID) (*UnreadSummary, error) {
	rows, err := s.store.Conversations().UnreadBySender(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := &UnreadSummary{BySender: rows}
	for _, row := range rows {
		summary.Total += row.Count
	}
	return summary, nil
}

func (s *ConversationService) markViewed(ctx context.Context, tx repository.Store, conversationID, viewerID uuid.UUID, marked *int) error {
	conv, err := tx.Conversations().FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(viewerID) {
		return domain.ErrNotParticipant
	}
	last, err := tx.Conversations().LastMessage(ctx, conversationID)
	if err != nil || last == nil {
		return err
	}
	n, err := tx.Conversations().MarkViewed(ctx, conversationID, viewerID, last.CreatedAt)
	if err != nil {
		return err
	}
	if marked != nil {
		*marked = n
	}
	return nil
}
