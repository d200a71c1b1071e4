package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const itemColumns = `id, owner_id, title, description, category, price, item_condition, location, images, status, version, created_at, updated_at`

type itemRow struct {
	ID          uuid.UUID       `db:"id"`
	OwnerID     uuid.UUID       `db:"owner_id"`
	Title       string          `db:"title"`
	Description string          `db:"description"`
	Category    string          `db:"category"`
	Price       decimal.Decimal `db:"price"`
	Condition   string          `db:"item_condition"`
	Location    string          `db:"location"`
	Images      string          `db:"images"`
	Status      string          `db:"status"`
	Version     int             `db:"version"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r *itemRow) toDomain() (*domain.Item, error) {
	images := []string{}
	if r.Images != "" {
		if err := json.Unmarshal([]byte(r.Images), &images); err != nil {
			return nil, fmt.Errorf("failed to decode images of item %s: %w", r.ID, err)
		}
	}
	return &domain.Item{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Price:       r.Price,
		Condition:   r.Condition,
		Location:    r.Location,
		Images:      images,
		Status:      domain.ItemStatus(r.Status),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	data, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("failed to encode images: %w", err)
	}
	return string(data), nil
}

// SQLItemRepository implements ItemRepository
type SQLItemRepository struct {
	q sqlx.ExtContext
}

// NewItemRepository creates an item repository over a connection or transaction
func NewItemRepository(q sqlx.ExtContext) *SQLItemRepository {
	return &SQLItemRepository{q: q}
}

func (r *SQLItemRepository) Create(ctx context.Context, item *domain.Item) error {
	images, err := encodeImages(item.Images)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO items (id, owner_id, title, description, category, price, item_condition, location, images, status, active, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		item.ID.String(), item.OwnerID.String(), item.Title, item.Description, item.Category,
		item.Price.String(), item.Condition, item.Location, images, string(item.Status),
		item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (r *SQLItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND active = 1`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return row.toDomain()
}

func (r *SQLItemRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Item, error) {
	result := make(map[uuid.UUID]*domain.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM items WHERE active = 1 AND id IN (?)`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to build item query: %w", err)
	}
	items, err := r.selectItems(ctx, r.q.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		result[item.ID] = item
	}
	return result, nil
}

func (r *SQLItemRepository) Update(ctx context.Context, item *domain.Item, expectedVersion int) error {
	images, err := encodeImages(item.Images)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE items
		SET title = ?, description = ?, category = ?, price = ?, item_condition = ?, location = ?, images = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND active = 1 AND version = ?`,
		item.Title, item.Description, item.Category, item.Price.String(), item.Condition, item.Location, images,
		item.UpdatedAt, item.ID.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if err := checkAffected(res); err != nil {
		if errors.Is(err, ErrStatusMismatch) {
			return domain.ErrConcurrentUpdate
		}
		return err
	}
	item.Version = expectedVersion + 1
	return nil
}

func (r *SQLItemRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to domain.ItemStatus) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE items SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND active = 1 AND status = ?`,
		string(to), time.Now().UTC(), id.String(), string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	return checkAffected(res)
}

func (r *SQLItemRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE items SET active = 0, version = version + 1, updated_at = ?
		WHERE id = ? AND active = 1 AND status = ?`,
		time.Now().UTC(), id.String(), string(domain.ItemAvailable),
	)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return checkAffected(res)
}

func (r *SQLItemRepository) ListAvailable(ctx context.Context, filter ItemFilter) ([]*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE active = 1 AND status = ?`
	args := []interface{}{string(domain.ItemAvailable)}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Condition != "" {
		query += ` AND item_condition = ?`
		args = append(args, filter.Condition)
	}
	query += ` ORDER BY created_at DESC, id`
	return r.selectItems(ctx, query, args...)
}

func (r *SQLItemRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, availableOnly bool) ([]*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE active = 1 AND owner_id = ?`
	args := []interface{}{ownerID.String()}
	if availableOnly {
		query += ` AND status = ?`
		args = append(args, string(domain.ItemAvailable))
	}
	query += ` ORDER BY created_at DESC, id`
	return r.selectItems(ctx, query, args...)
}

func (r *SQLItemRepository) Autocomplete(ctx context.Context, prefix string, limit int) ([]*domain.Item, error) {
	pattern := "%" + escapeLike(strings.ToLower(prefix)) + "%"
	return r.selectItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE active = 1 AND status = ? AND LOWER(title) LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id
		LIMIT ?`,
		string(domain.ItemAvailable), pattern, limit,
	)
}

func (r *SQLItemRepository) selectItems(ctx context.Context, query string, args ...interface{}) ([]*domain.Item, error) {
	var rows []itemRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	items := make([]*domain.Item, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
