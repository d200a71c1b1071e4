package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campus-marketplace/internal/database"
	"campus-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, item_id, buyer_id, seller_id, offered_price, meetup_location, meetup_time, note, status, version, created_at, updated_at`

type orderRow struct {
	ID             uuid.UUID       `db:"id"`
	ItemID         uuid.UUID       `db:"item_id"`
	BuyerID        uuid.UUID       `db:"buyer_id"`
	SellerID       uuid.UUID       `db:"seller_id"`
	OfferedPrice   decimal.Decimal `db:"offered_price"`
	MeetupLocation string          `db:"meetup_location"`
	MeetupTime     *time.Time      `db:"meetup_time"`
	Note           string          `db:"note"`
	Status         string          `db:"status"`
	Version        int             `db:"version"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r *orderRow) toDomain() *domain.Order {
	return &domain.Order{
		ID:             r.ID,
		ItemID:         r.ItemID,
		BuyerID:        r.BuyerID,
		SellerID:       r.SellerID,
		OfferedPrice:   r.OfferedPrice,
		MeetupLocation: r.MeetupLocation,
		MeetupTime:     r.MeetupTime,
		Note:           r.Note,
		Status:         domain.OrderStatus(r.Status),
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// SQLOrderRepository implements OrderRepository
type SQLOrderRepository struct {
	q sqlx.ExtContext
}

// NewOrderRepository creates an order repository over a connection or transaction
func NewOrderRepository(q sqlx.ExtContext) *SQLOrderRepository {
	return &SQLOrderRepository{q: q}
}

// Create inserts a pending order. The partial unique index on active orders
// turns a second active order for the same item into ErrItemNotAvailable.
func (r *SQLOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID.String(), order.ItemID.String(), order.BuyerID.String(), order.SellerID.String(),
		order.OfferedPrice.String(), order.MeetupLocation, order.MeetupTime, order.Note,
		string(order.Status), order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrItemNotAvailable
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *SQLOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return row.toDomain(), nil
}

func (r *SQLOrderRepository) UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders SET status = ?, version = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(order.Status), order.Version, order.UpdatedAt, order.ID.String(), string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return checkAffected(res)
}

// ListByUser lists orders where the user is buyer ("buyer"), seller
// ("seller") or either (""), newest first. An empty status matches all.
func (r *SQLOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, role string, status domain.OrderStatus) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE `
	args := []interface{}{}
	switch role {
	case "buyer":
		query += `buyer_id = ?`
		args = append(args, userID.String())
	case "seller":
		query += `seller_id = ?`
		args = append(args, userID.String())
	default:
		query += `(buyer_id = ? OR seller_id = ?)`
		args = append(args, userID.String(), userID.String())
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`

	var rows []orderRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	orders := make([]*domain.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, rows[i].toDomain())
	}
	return orders, nil
}

func (r *SQLOrderRepository) ActiveForItem(ctx context.Context, itemID uuid.UUID) (*domain.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT `+orderColumns+` FROM orders
		WHERE item_id = ? AND status IN ('pending', 'approved')`, itemID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active order: %w", err)
	}
	return row.toDomain(), nil
}
