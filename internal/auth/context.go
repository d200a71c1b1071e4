package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys set by the auth middleware
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextClaims   = "claims"
)

// CurrentUserID returns the authenticated user, if any
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString(ContextUserID)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CurrentClaims returns the validated token claims, if any
func CurrentClaims(c *gin.Context) (*JWTClaims, bool) {
	value, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*JWTClaims)
	return claims, ok
}

// SetClaims stores validated claims on the request context
func SetClaims(c *gin.Context, claims *JWTClaims) {
	c.Set(ContextClaims, claims)
	c.Set(ContextUserID, claims.Subject)
	c.Set(ContextUsername, claims.Username)
}
