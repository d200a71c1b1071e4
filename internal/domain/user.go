package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
)

// MinPasswordLength for locally authenticated accounts
const MinPasswordLength = 8

// User is a marketplace account
type User struct {
	ID            uuid.UUID
	Email         string
	Username      string
	DisplayName   string
	Bio           string
	PasswordHash  string // empty for OAuth-only accounts
	EmailVerified bool
	OAuthProvider string
	OAuthSubject  string
	AvatarRef     string // storage reference, empty when unset
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUser validates and normalizes signup fields
func NewUser(email, username, displayName string) (*User, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperrors.NewValidationError("a valid email is required", "email")
	}
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
		return nil, apperrors.NewValidationError("username must be between 3 and 50 characters", "username")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}
	now := time.Now().UTC()
	return &User{
		ID:          uuid.New(),
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ValidatePassword enforces the password policy
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperrors.NewValidationError("password must be at least 8 characters", "password")
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TokenPurpose distinguishes one-time tokens
type TokenPurpose string

const (
	TokenPasswordReset TokenPurpose = "password_reset"
	TokenEmailVerify   TokenPurpose = "email_verify"
)

// UserToken is a hashed one-time token
type UserToken struct {
	TokenHash string
	UserID    uuid.UUID
	Purpose   TokenPurpose
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token may still be consumed at now
func (t *UserToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// Recently viewed list bounds
const (
	DefaultRecentViews = 10
	MaxRecentViews     = 50
)

// RecentView is one entry of a user's browsing history
type RecentView struct {
	Item     *Item
	ViewedAt time.Time
}

// UserStats summarizes a user's marketplace activity
type UserStats struct {
	ActiveListings int `json:"active_listings"`
	PendingSales   int `json:"pending_sales"`
	SoldItems      int `json:"sold_items"`
	Purchases      int `json:"purchases"`
	Favorites      int `json:"favorites"`
	UnreadMessages int `json:"unread_messages"`
}
