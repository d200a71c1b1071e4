package auth

import (
	"context"
	"errors"
	"time"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/domain"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrRevokedToken = errors.New("token revoked")
)

const issuer = "campus-marketplace"

// JWTClaims represents the JWT claims. Subject is the user id, ID the token id.
type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID parses the subject
func (c *JWTClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Session is an issued access token
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// JWTManager handles JWT token generation, validation and revocation
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	denylist  cache.Cache
	logger    *zap.Logger
	now       func() time.Time
}

// NewJWTManager creates a new JWT manager; revoked token ids live in denylist
func NewJWTManager(secretKey string, ttl time.Duration, denylist cache.Cache, logger *zap.Logger) *JWTManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		denylist:  denylist,
		logger:    logger,
		now:       time.Now,
	}
}

// GenerateToken issues a signed HS256 token for the user
func (j *JWTManager) GenerateToken(user *domain.User) (*Session, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)

	claims := JWTClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   user.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		j.logger.Error("Failed to generate token", zap.Error(err))
		return nil, err
	}

	j.logger.Info("Token generated",
		zap.String("user_id", user.ID.String()),
		zap.Time("expires_at", expiresAt),
	)

	return &Session{Token: tokenString, ExpiresAt: expiresAt}, nil
}

// ValidateToken validates signature, expiry and the denylist
func (j *JWTManager) ValidateToken(ctx context.Context, tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			j.logger.Debug("Token expired", zap.Error(err))
			return nil, ErrExpiredToken
		}
		j.logger.Warn("Invalid token", zap.Error(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.ID == "" {
		j.logger.Warn("Invalid token claims")
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}

	revoked, err := j.denylist.Exists(ctx, cache.RevokedPrefix+claims.ID)
	if err != nil {
		// Fail closed: a token that may be revoked is not accepted
		j.logger.Error("Failed to check token denylist", zap.Error(err))
		return nil, ErrInvalidToken
	}
	if revoked {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// Revoke denylists the token id until the token would have expired anyway
func (j *JWTManager) Revoke(ctx context.Context, claims *JWTClaims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Time.Sub(j.now()); remaining > 0 {
			ttl = remaining
		}
	}
	return j.denylist.Set(ctx, cache.RevokedPrefix+claims.ID, []byte("1"), ttl)
}
