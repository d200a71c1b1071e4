package repository

import (
	"context"
	"fmt"
	"time"

	"campus-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLViewRepository implements ViewRepository
type SQLViewRepository struct {
	q sqlx.ExtContext
}

// NewViewRepository creates a recently-viewed repository over a connection or transaction
func NewViewRepository(q sqlx.ExtContext) *SQLViewRepository {
	return &SQLViewRepository{q: q}
}

func (r *SQLViewRepository) Record(ctx context.Context, userID, itemID uuid.UUID, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO recently_viewed (user_id, item_id, viewed_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, item_id) DO UPDATE SET viewed_at = excluded.viewed_at`,
		userID.String(), itemID.String(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	return nil
}

func (r *SQLViewRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.RecentView, error) {
	var rows []struct {
		itemRow
		ViewedAt time.Time `db:"viewed_at"`
	}
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT i.id, i.owner_id, i.title, i.description, i.category, i.price, i.item_condition, i.location,
			i.images, i.status, i.version, i.created_at, i.updated_at, v.viewed_at
		FROM recently_viewed v
		JOIN items i ON i.id = v.item_id
		WHERE v.user_id = ? AND i.active = 1
		ORDER BY v.viewed_at DESC, i.id
		LIMIT ?`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recently viewed: %w", err)
	}
	views := make([]*domain.RecentView, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		views = append(views, &domain.RecentView{Item: item, ViewedAt: rows[i].ViewedAt})
	}
	return views, nil
}
