package repository

import (
	"context"
	"fmt"
	"time"

	"campus-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLFavoriteRepository implements FavoriteRepository
type SQLFavoriteRepository struct {
	q sqlx.ExtContext
}

// NewFavoriteRepository creates a favorites repository over a connection or transaction
func NewFavoriteRepository(q sqlx.ExtContext) *SQLFavoriteRepository {
	return &SQLFavoriteRepository{q: q}
}

// Add inserts the pair; adding an existing pair is a no-op reported as false
func (r *SQLFavoriteRepository) Add(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO favorites (user_id, item_id, created_at) VALUES (?, ?, ?)`,
		userID.String(), itemID.String(), time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove deletes the pair; removing a missing pair is a no-op reported as false
func (r *SQLFavoriteRepository) Remove(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = ? AND item_id = ?`,
		userID.String(), itemID.String())
	if err != nil {
		return false, fmt.Errorf("failed to remove favorite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLFavoriteRepository) Exists(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM favorites WHERE user_id = ? AND item_id = ?`,
		userID.String(), itemID.String())
	if err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}
	return count > 0, nil
}

func (r *SQLFavoriteRepository) CountForItem(ctx context.Context, itemID uuid.UUID) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM favorites WHERE item_id = ?`, itemID.String()); err != nil {
		return 0, fmt.Errorf("failed to count favorites: %w", err)
	}
	return count, nil
}

// ListItems returns the user's favorited active items, most recently favorited first
func (r *SQLFavoriteRepository) ListItems(ctx context.Context, userID uuid.UUID) ([]*domain.Item, error) {
	items := NewItemRepository(r.q)
	return items.selectItems(ctx, `
		SELECT i.id, i.owner_id, i.title, i.description, i.category, i.price, i.item_condition, i.location,
			i.images, i.status, i.version, i.created_at, i.updated_at
		FROM favorites f
		JOIN items i ON i.id = f.item_id
		WHERE f.user_id = ? AND i.active = 1
		ORDER BY f.created_at DESC, i.id`, userID.String())
}
