package auth

import (
	"context"
	"testing"
	"time"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret-key-min-32-chars-for-testing"

func testUser() *domain.User {
	return &domain.User{ID: uuid.New(), Username: "alex", Email: "alex@campus.edu"}
}

func newRedisDenylist(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCache(client, zap.NewNop()), mr
}

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := NewJWTManager(testSecret, time.Hour, cache.NewInMemoryCache(zap.NewNop()), zap.NewNop())
	user := testUser()

	session, err := manager.GenerateToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	claims, err := manager.ValidateToken(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alex", claims.Username)
	assert.Equal(t, issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestJWTManager_DistinctTokenIDs(t *testing.T) {
	manager := NewJWTManager(testSecret, time.Hour, cache.NewInMemoryCache(zap.NewNop()), zap.NewNop())
	user := testUser()

	first, err := manager.GenerateToken(user)
	require.NoError(t, err)
	second, err := manager.GenerateToken(user)
	require.NoError(t, err)

	a, err := manager.ValidateToken(context.Background(), first.Token)
	require.NoError(t, err)
	b, err := manager.ValidateToken(context.Background(), second.Token)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	manager := NewJWTManager(testSecret, time.Hour, cache.NewInMemoryCache(zap.NewNop()), zap.NewNop())
	manager.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	session, err := manager.GenerateToken(testUser())
	require.NoError(t, err)

	_, err = manager.ValidateToken(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManager_InvalidTokens(t *testing.T) {
	manager := NewJWTManager(testSecret, time.Hour, cache.NewInMemoryCache(zap.NewNop()), zap.NewNop())
	other := NewJWTManager("another-secret-key-min-32-chars-long!!", time.Hour, cache.NewInMemoryCache(zap.NewNop()), zap.NewNop())

	foreign, err := other.GenerateToken(testUser())
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{
		Username: "alex",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		Username: "alex",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign.Token},
		{"alg none", unsigned},
		{"missing token id", noID},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.ValidateToken(context.Background(), tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTManager_RevokeWithRedis(t *testing.T) {
	denylist, mr := newRedisDenylist(t)
	manager := NewJWTManager(testSecret, time.Hour, denylist, zap.NewNop())
	ctx := context.Background()

	session, err := manager.GenerateToken(testUser())
	require.NoError(t, err)
	claims, err := manager.ValidateToken(ctx, session.Token)
	require.NoError(t, err)

	require.NoError(t, manager.Revoke(ctx, claims))

	_, err = manager.ValidateToken(ctx, session.Token)
	assert.ErrorIs(t, err, ErrRevokedToken)

	// The denylist entry only lives as long as the token would have
	ttl := mr.TTL(cache.RevokedPrefix + claims.ID)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(cache.RevokedPrefix+claims.ID))
}

func TestJWTManager_DenylistUnavailableFailsClosed(t *testing.T) {
	denylist, mr := newRedisDenylist(t)
	manager := NewJWTManager(testSecret, time.Hour, denylist, zap.NewNop())

	session, err := manager.GenerateToken(testUser())
	require.NoError(t, err)

	mr.Close()

	_, err = manager.ValidateToken(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
