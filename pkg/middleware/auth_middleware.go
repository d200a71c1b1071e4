package middleware

import (
	"context"
	"strings"

	"campus-marketplace/internal/auth"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*auth.JWTClaims, error)
}

// AuthMiddleware validates JWT tokens and rejects anonymous requests
func AuthMiddleware(validator TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warn("Missing authorization header",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.Error(errors.NewUnauthorized("missing authorization header", "Header: Authorization"))
			c.Abort()
			return
		}

		tokenString, ok := bearerToken(authHeader)
		if !ok {
			logger.Warn("Invalid authorization header format",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.Error(errors.NewUnauthorized("invalid authorization header format", "Expected: Bearer <token>"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.Warn("Invalid token",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Error(err),
			)
			c.Error(tokenError(err))
			c.Abort()
			return
		}

		auth.SetClaims(c, claims)

		logger.Debug("Token validated",
			zap.String("user_id", claims.Subject),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)

		c.Next()
	}
}

// OptionalAuthMiddleware identifies the caller when a valid token is sent and
// lets anonymous requests through. A bad token is still rejected.
func OptionalAuthMiddleware(validator TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		tokenString, ok := bearerToken(authHeader)
		if !ok {
			c.Error(errors.NewUnauthorized("invalid authorization header format", "Expected: Bearer <token>"))
			c.Abort()
			return
		}
		claims, err := validator.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.Debug("Rejected optional token", zap.Error(err))
			c.Error(tokenError(err))
			c.Abort()
			return
		}
		auth.SetClaims(c, claims)
		c.Next()
	}
}

// bearerToken extracts the token from "Bearer <token>"
func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func tokenError(err error) *errors.StandardError {
	switch err {
	case auth.ErrExpiredToken:
		return errors.NewUnauthorized("token expired", "Token has expired, please login again")
	case auth.ErrRevokedToken:
		return errors.NewUnauthorized("token revoked", "Token was logged out, please login again")
	default:
		return errors.NewUnauthorized("invalid token", err.Error())
	}
}
