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
)

const userColumns = `id, email, username, display_name, bio, password_hash, email_verified, oauth_provider, oauth_subject, avatar_ref, created_at, updated_at`

type userRow struct {
	ID            uuid.UUID `db:"id"`
	Email         string    `db:"email"`
	Username      string    `db:"username"`
	DisplayName   string    `db:"display_name"`
	Bio           string    `db:"bio"`
	PasswordHash  string    `db:"password_hash"`
	EmailVerified bool      `db:"email_verified"`
	OAuthProvider string    `db:"oauth_provider"`
	OAuthSubject  string    `db:"oauth_subject"`
	AvatarRef     string    `db:"avatar_ref"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:            r.ID,
		Email:         r.Email,
		Username:      r.Username,
		DisplayName:   r.DisplayName,
		Bio:           r.Bio,
		PasswordHash:  r.PasswordHash,
		EmailVerified: r.EmailVerified,
		OAuthProvider: r.OAuthProvider,
		OAuthSubject:  r.OAuthSubject,
		AvatarRef:     r.AvatarRef,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// SQLUserRepository implements UserRepository
type SQLUserRepository struct {
	q sqlx.ExtContext
}

// NewUserRepository creates a user repository over a connection or transaction
func NewUserRepository(q sqlx.ExtContext) *SQLUserRepository {
	return &SQLUserRepository{q: q}
}

func (r *SQLUserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID.String(), user.Email, user.Username, user.DisplayName, user.Bio, user.PasswordHash,
		user.EmailVerified, user.OAuthProvider, user.OAuthSubject, user.AvatarRef, user.CreatedAt, user.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *SQLUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
}

func (r *SQLUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, domain.NormalizeEmail(email))
}

func (r *SQLUserRepository) FindByOAuth(ctx context.Context, provider, subject string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE oauth_provider = ? AND oauth_subject = ?`, provider, subject)
}

func (r *SQLUserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*domain.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, r.q, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return row.toDomain(), nil
}

// Update writes every mutable column of the user
func (r *SQLUserRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET username = ?, display_name = ?, bio = ?, password_hash = ?, email_verified = ?,
			oauth_provider = ?, oauth_subject = ?, avatar_ref = ?, updated_at = ?
		WHERE id = ?`,
		user.Username, user.DisplayName, user.Bio, user.PasswordHash, user.EmailVerified,
		user.OAuthProvider, user.OAuthSubject, user.AvatarRef, user.UpdatedAt, user.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if err := checkAffected(res); err != nil {
		if errors.Is(err, ErrStatusMismatch) {
			return domain.ErrUserNotFound
		}
		return err
	}
	return nil
}

func (r *SQLUserRepository) Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	uid := userID.String()
	var stats domain.UserStats
	row := struct {
		ActiveListings int `db:"active_listings"`
		PendingSales   int `db:"pending_sales"`
		SoldItems      int `db:"sold_items"`
		Purchases      int `db:"purchases"`
		Favorites      int `db:"favorites"`
	}{}
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT
			(SELECT COUNT(*) FROM items WHERE owner_id = ? AND active = 1 AND status = 'available') AS active_listings,
			(SELECT COUNT(*) FROM items WHERE owner_id = ? AND active = 1 AND status = 'pending') AS pending_sales,
			(SELECT COUNT(*) FROM items WHERE owner_id = ? AND status = 'sold') AS sold_items,
			(SELECT COUNT(*) FROM orders WHERE buyer_id = ? AND status = 'completed') AS purchases,
			(SELECT COUNT(*) FROM favorites WHERE user_id = ?) AS favorites`,
		uid, uid, uid, uid, uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute user stats: %w", err)
	}
	stats.ActiveListings = row.ActiveListings
	stats.PendingSales = row.PendingSales
	stats.SoldItems = row.SoldItems
	stats.Purchases = row.Purchases
	stats.Favorites = row.Favorites
	return &stats, nil
}

func (r *SQLUserRepository) CreateToken(ctx context.Context, token *domain.UserToken) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_tokens (token_hash, user_id, purpose, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		token.TokenHash, token.UserID.String(), string(token.Purpose), token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (r *SQLUserRepository) FindToken(ctx context.Context, tokenHash string, purpose domain.TokenPurpose) (*domain.UserToken, error) {
	var row struct {
		TokenHash string     `db:"token_hash"`
		UserID    uuid.UUID  `db:"user_id"`
		Purpose   string     `db:"purpose"`
		ExpiresAt time.Time  `db:"expires_at"`
		UsedAt    *time.Time `db:"used_at"`
		CreatedAt time.Time  `db:"created_at"`
	}
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT token_hash, user_id, purpose, expires_at, used_at, created_at
		FROM user_tokens WHERE token_hash = ? AND purpose = ?`, tokenHash, string(purpose))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	return &domain.UserToken{
		TokenHash: row.TokenHash,
		UserID:    row.UserID,
		Purpose:   domain.TokenPurpose(row.Purpose),
		ExpiresAt: row.ExpiresAt,
		UsedAt:    row.UsedAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

// ConsumeToken marks the token used, or returns ErrStatusMismatch if it already was
func (r *SQLUserRepository) ConsumeToken(ctx context.Context, tokenHash string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE user_tokens SET used_at = ? WHERE token_hash = ? AND used_at IS NULL`,
		at, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	return checkAffected(res)
}
