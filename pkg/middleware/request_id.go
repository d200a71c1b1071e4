package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"campus-marketplace/internal/cache"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader is the HTTP header name for request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDContextKey is the context key for request ID
	RequestIDContextKey = "request_id"
	// ReplayHeader marks a response served from the idempotency store
	ReplayHeader = "X-Idempotent-Replay"

	inFlightMarker = "pending"
)

type requestIDKey struct{}

// storedResponse is what the idempotency store keeps per request ID
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// RequestIDMiddleware extracts or generates X-Request-ID header
func RequestIDMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			logger.Debug("Generated new request ID",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
		}

		c.Set(RequestIDContextKey, requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, requestID))
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDContextKey)
}

// RequestIDFromContext retrieves the request ID from a request context
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// IdempotencyMiddleware replays the stored response when a write is retried
// with the same client-supplied X-Request-ID. Only 2xx responses are kept; a
// failed attempt frees the ID for another try. Mount it after authentication
// so IDs are scoped per user.
func IdempotencyMiddleware(store cache.Cache, logger *zap.Logger, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWrite(c.Request.Method) {
			c.Next()
			return
		}

		// Only client-supplied IDs mark a request as retryable
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := idempotencyKey(c, requestID)

		data, err := store.Get(ctx, key)
		switch {
		case err == nil:
			if string(data) == inFlightMarker {
				c.Error(apperrors.NewConflict("request already in progress", "X-Request-ID: "+requestID))
				c.Abort()
				return
			}
			var stored storedResponse
			if err := json.Unmarshal(data, &stored); err == nil {
				logger.Info("Duplicate request detected, returning stored response",
					zap.String("request_id", requestID),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.Header(ReplayHeader, "true")
				c.Data(stored.Status, stored.ContentType, stored.Body)
				c.Abort()
				return
			}
			logger.Warn("Discarding unreadable idempotency entry", zap.String("request_id", requestID))
		case !errors.Is(err, cache.ErrCacheMiss):
			// Fail open
			logger.Warn("Error checking request ID", zap.String("request_id", requestID), zap.Error(err))
			c.Next()
			return
		}

		reserved, err := store.SetNX(ctx, key, []byte(inFlightMarker), ttl)
		if err != nil {
			logger.Warn("Error reserving request ID", zap.String("request_id", requestID), zap.Error(err))
			c.Next()
			return
		}
		if !reserved {
			c.Error(apperrors.NewConflict("request already in progress", "X-Request-ID: "+requestID))
			c.Abort()
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices || len(c.Errors) > 0 {
			if err := store.Delete(ctx, key); err != nil {
				logger.Warn("Failed to release request ID", zap.String("request_id", requestID), zap.Error(err))
			}
			return
		}

		payload, _ := json.Marshal(storedResponse{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        writer.body,
		})
		if err := store.Set(ctx, key, payload, ttl); err != nil {
			logger.Warn("Failed to store response for idempotency",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			return
		}
		logger.Debug("Stored response for idempotency",
			zap.String("request_id", requestID),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
		)
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func idempotencyKey(c *gin.Context, requestID string) string {
	user := c.GetString("user_id")
	if user == "" {
		user = "anonymous"
	}
	return cache.IdempotencyPrefix + strings.Join([]string{user, c.Request.Method, c.Request.URL.Path, requestID}, ":")
}

// responseWriter captures the response body
type responseWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body = append(w.body, s...)
	return w.ResponseWriter.WriteString(s)
}
