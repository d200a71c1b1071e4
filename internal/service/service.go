// Package service holds the marketplace write paths. Every state change runs
// in one repository transaction; events and cache invalidation follow the
// commit.
package service

import (
	"context"
	"errors"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/events"
	"campus-marketplace/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ItemIndex is the write side of the embedding index
type ItemIndex interface {
	Upsert(ctx context.Context, itemID uuid.UUID, text string) error
	Remove(ctx context.Context, itemID uuid.UUID) error
}

// base carries the collaborators shared by all services
type base struct {
	store     repository.Store
	publisher events.EventPublisher
	cache     cache.Cache
	logger    *zap.Logger
}

func (b *base) publish(ctx context.Context, event interface{}) {
	if err := b.publisher.Publish(ctx, event); err != nil {
		b.logger.Error("Failed to publish event",
			zap.String("event_type", events.EventType(event)),
			zap.Error(err))
	}
}

// invalidateSearch drops cached search pages after availability or text changed
func (b *base) invalidateSearch(ctx context.Context) {
	if b.cache == nil {
		return
	}
	if err := b.cache.DeleteByPattern(ctx, cache.SearchPrefix+"*"); err != nil {
		b.logger.Warn("Failed to invalidate search cache", zap.Error(err))
	}
}

// mapMismatch turns a failed compare-and-set into the given domain error
func mapMismatch(err error, to error) error {
	if errors.Is(err, repository.ErrStatusMismatch) {
		return to
	}
	return err
}
