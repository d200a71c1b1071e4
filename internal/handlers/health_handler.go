package handlers

import (
	"context"
	"net/http"
	"time"

	"campus-marketplace/internal/database"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StaleCounter reports how many listings still need an embedding
type StaleCounter interface {
	CountStale(ctx context.Context) (int, error)
}

type HealthHandler struct {
	db      *database.SingleWriterDB
	index   StaleCounter
	service string
	logger  *zap.Logger
}

// NewHealthHandler creates the health and monitoring handler; index may be nil
func NewHealthHandler(db *database.SingleWriterDB, index StaleCounter, service string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		index:   index,
		service: service,
		logger:  logger,
	}
}

// Health godoc
// @Summary      Health check endpoint
// @Description  Reports whether the service can reach its database.
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse  "Service healthy"
// @Failure      503  {object}  HealthResponse  "Database unreachable"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Service: h.service, Database: "ok"}
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("Database health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Database = "unreachable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StatsResponse summarizes the marketplace tables
type StatsResponse struct {
	Items           map[string]int `json:"items"`
	Orders          map[string]int `json:"orders"`
	Users           int            `json:"users"`
	Messages        int            `json:"messages"`
	StaleEmbeddings int            `json:"stale_embeddings"`
}

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

// GetStats godoc
// @Summary      Get service statistics
// @Description  Counts listings and orders by status, users, messages and listings waiting for an embedding.
// @Tags         monitoring
// @Produce      json
// @Success      200  {object}  StatsResponse
// @Failure      500  {object}  errors.StandardError
// @Router       /monitoring/stats [get]
func (h *HealthHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	db := h.db.DB()
	stats := StatsResponse{Items: map[string]int{}, Orders: map[string]int{}}

	var rows []statusCount
	if err := db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM items WHERE active = 1 GROUP BY status`); err != nil {
		h.logger.Error("Failed to count items", zap.Error(err))
		abort(c, errors.NewDatabaseError("count items", err))
		return
	}
	for _, r := range rows {
		stats.Items[r.Status] = r.Count
	}

	rows = nil
	if err := db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM orders GROUP BY status`); err != nil {
		h.logger.Error("Failed to count orders", zap.Error(err))
		abort(c, errors.NewDatabaseError("count orders", err))
		return
	}
	for _, r := range rows {
		stats.Orders[r.Status] = r.Count
	}

	if err := db.GetContext(ctx, &stats.Users, `SELECT COUNT(*) FROM users`); err != nil {
		h.logger.Error("Failed to count users", zap.Error(err))
		abort(c, errors.NewDatabaseError("count users", err))
		return
	}
	if err := db.GetContext(ctx, &stats.Messages, `SELECT COUNT(*) FROM messages`); err != nil {
		h.logger.Error("Failed to count messages", zap.Error(err))
		abort(c, errors.NewDatabaseError("count messages", err))
		return
	}

	if h.index != nil {
		stale, err := h.index.CountStale(ctx)
		if err != nil {
			h.logger.Warn("Failed to count stale embeddings", zap.Error(err))
		}
		stats.StaleEmbeddings = stale
	}

	c.JSON(http.StatusOK, stats)
}
