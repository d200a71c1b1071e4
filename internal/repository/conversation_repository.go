package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"campus-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type conversationRow struct {
	ID        uuid.UUID `db:"id"`
	ItemID    uuid.UUID `db:"item_id"`
	BuyerID   uuid.UUID `db:"buyer_id"`
	SellerID  uuid.UUID `db:"seller_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *conversationRow) toDomain() *domain.Conversation {
	return &domain.Conversation{
		ID:        r.ID,
		ItemID:    r.ItemID,
		BuyerID:   r.BuyerID,
		SellerID:  r.SellerID,
		CreatedAt: r.CreatedAt,
	}
}

type messageRow struct {
	ID             int64      `db:"id"`
	ConversationID uuid.UUID  `db:"conversation_id"`
	SenderID       uuid.UUID  `db:"sender_id"`
	Body           string     `db:"body"`
	CreatedAt      time.Time  `db:"created_at"`
	ReadAt         *time.Time `db:"read_at"`
}

func (r *messageRow) toDomain() *domain.Message {
	return &domain.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Body:           r.Body,
		CreatedAt:      r.CreatedAt,
		ReadAt:         r.ReadAt,
	}
}

// SQLConversationRepository implements ConversationRepository
type SQLConversationRepository struct {
	q sqlx.ExtContext
}

// NewConversationRepository creates a conversation repository over a connection or transaction
func NewConversationRepository(q sqlx.ExtContext) *SQLConversationRepository {
	return &SQLConversationRepository{q: q}
}

// Ensure creates the conversation if it does not exist and returns the stored row
func (r *SQLConversationRepository) Ensure(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, item_id, buyer_id, seller_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conv.ID.String(), conv.ItemID.String(), conv.BuyerID.String(), conv.SellerID.String(), conv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return r.FindByID(ctx, conv.ID)
}

func (r *SQLConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var row conversationRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT id, item_id, buyer_id, seller_id, created_at FROM conversations WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return row.toDomain(), nil
}

// LastMessage returns nil without error for an empty conversation
func (r *SQLConversationRepository) LastMessage(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error) {
	var row messageRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT 1`, conversationID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find last message: %w", err)
	}
	return row.toDomain(), nil
}

func (r *SQLConversationRepository) Append(ctx context.Context, msg *domain.Message) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, body, created_at) VALUES (?, ?, ?, ?)`,
		msg.ConversationID.String(), msg.SenderID.String(), msg.Body, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read message id: %w", err)
	}
	msg.ID = id
	return nil
}

func (r *SQLConversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	var rows []messageRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages WHERE conversation_id = ? ORDER BY id`, conversationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	messages := make([]*domain.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].toDomain())
	}
	return messages, nil
}

func (r *SQLConversationRepository) MarkViewed(ctx context.Context, conversationID, viewerID uuid.UUID, upTo time.Time) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE messages SET read_at = ?
		WHERE conversation_id = ? AND sender_id <> ? AND read_at IS NULL AND created_at <= ?`,
		time.Now().UTC(), conversationID.String(), viewerID.String(), upTo,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	marked, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	// The marker never moves backwards
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO conversation_views (conversation_id, user_id, last_viewed_at) VALUES (?, ?, ?)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET last_viewed_at = MAX(last_viewed_at, excluded.last_viewed_at)`,
		conversationID.String(), viewerID.String(), upTo,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update last viewed marker: %w", err)
	}
	return int(marked), nil
}

type summaryRow struct {
	ID          uuid.UUID `db:"id"`
	ItemID      uuid.UUID `db:"item_id"`
	BuyerID     uuid.UUID `db:"buyer_id"`
	SellerID    uuid.UUID `db:"seller_id"`
	CreatedAt   time.Time `db:"created_at"`
	ItemTitle   string    `db:"item_title"`
	UnreadCount int       `db:"unread_count"`
}

// ListSummaries returns the user's conversations, most recent activity first
func (r *SQLConversationRepository) ListSummaries(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationSummary, error) {
	uid := userID.String()
	var rows []summaryRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT c.id, c.item_id, c.buyer_id, c.seller_id, c.created_at,
			COALESCE(i.title, '') AS item_title,
			(SELECT COUNT(*) FROM messages m
				LEFT JOIN conversation_views v ON v.conversation_id = m.conversation_id AND v.user_id = ?
				WHERE m.conversation_id = c.id AND m.sender_id <> ?
					AND (v.last_viewed_at IS NULL OR m.created_at > v.last_viewed_at)) AS unread_count
		FROM conversations c
		LEFT JOIN items i ON i.id = c.item_id
		WHERE c.buyer_id = ? OR c.seller_id = ?`,
		uid, uid, uid, uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]*domain.ConversationSummary, 0, len(rows))
	for i := range rows {
		last, err := r.LastMessage(ctx, rows[i].ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &domain.ConversationSummary{
			Conversation: domain.Conversation{
				ID:        rows[i].ID,
				ItemID:    rows[i].ItemID,
				BuyerID:   rows[i].BuyerID,
				SellerID:  rows[i].SellerID,
				CreatedAt: rows[i].CreatedAt,
			},
			ItemTitle:   rows[i].ItemTitle,
			LastMessage: last,
			UnreadCount: rows[i].UnreadCount,
		})
	}

	sort.SliceStable(summaries, func(a, b int) bool {
		return lastActivity(summaries[a]).After(lastActivity(summaries[b]))
	})
	return summaries, nil
}

func lastActivity(s *domain.ConversationSummary) time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}

func (r *SQLConversationRepository) UnreadBySender(ctx context.Context, userID uuid.UUID) ([]domain.UnreadBySender, error) {
	uid := userID.String()
	rows := []domain.UnreadBySender{}
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT m.sender_id AS sender_id, COUNT(*) AS count
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN conversation_views v ON v.conversation_id = c.id AND v.user_id = ?
		WHERE (c.buyer_id = ? OR c.seller_id = ?) AND m.sender_id <> ?
			AND (v.last_viewed_at IS NULL OR m.created_at > v.last_viewed_at)
		GROUP BY m.sender_id
		ORDER BY count DESC, m.sender_id`,
		uid, uid, uid, uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return rows, nil
}
