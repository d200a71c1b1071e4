package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/events"
	"campus-marketplace/internal/repository"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Autocomplete limits
const (
	DefaultSuggestLimit = 8
	MaxSuggestLimit     = 50
)

// ItemDetail is an item as seen by one (possibly anonymous) caller
type ItemDetail struct {
	Item          *domain.Item
	FavoriteCount int
	IsFavorited   bool
}

// ItemService manages listings and keeps their embeddings in step
type ItemService struct {
	base
	index ItemIndex
}

func NewItemService(store repository.Store, index ItemIndex, publisher events.EventPublisher, cacheClient cache.Cache, logger *zap.Logger) *ItemService {
	return &ItemService{
		base:  base{store: store, publisher: publisher, cache: cacheClient, logger: logger},
		index: index,
	}
}

// Create saves the listing with a stale embedding row, then embeds it.
// An unavailable embedding backend never fails the create.
func (s *ItemService) Create(ctx context.Context, cmd commands.CreateItemCommand) (*domain.Item, error) {
	item, err := domain.NewItem(cmd.OwnerID, cmd.Title, cmd.Description, cmd.Category, cmd.Price, cmd.Condition, cmd.Location, cmd.Images)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Items().Create(ctx, item); err != nil {
			return err
		}
		return tx.Embeddings().MarkStale(ctx, item.ID)
	})
	if err != nil {
		return nil, err
	}

	s.embed(ctx, item)
	s.invalidateSearch(ctx)
	s.publish(ctx, events.ItemCreatedEvent{
		ItemID:     item.ID,
		OwnerID:    item.OwnerID,
		Title:      item.Title,
		Category:   item.Category,
		Price:      item.Price.String(),
		OccurredAt: item.CreatedAt,
	})

	s.logger.Info("Item created", zap.String("item_id", item.ID.String()))
	return item, nil
}

// Get returns an item with its favorite count; viewer may be nil.
// Authenticated views are added to the viewer's history.
func (s *ItemService) Get(ctx context.Context, id uuid.UUID, viewer *uuid.UUID) (*ItemDetail, error) {
	item, err := s.store.Items().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.store.Favorites().CountForItem(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &ItemDetail{Item: item, FavoriteCount: count}
	if viewer != nil {
		detail.IsFavorited, err = s.store.Favorites().Exists(ctx, *viewer, id)
		if err != nil {
			return nil, err
		}
		if err := s.store.Views().Record(ctx, *viewer, id, time.Now().UTC()); err != nil {
			s.logger.Warn("Failed to record item view",
				zap.String("item_id", id.String()),
				zap.String("user_id", viewer.String()),
				zap.Error(err))
		}
	}
	return detail, nil
}

// Update applies an owner's patch. A title or description change clears the
// vector in the same transaction so a stale vector is never served.
func (s *ItemService) Update(ctx context.Context, cmd commands.UpdateItemCommand) (*domain.Item, error) {
	var (
		item        *domain.Item
		textChanged bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		item, err = tx.Items().FindByID(ctx, cmd.ID)
		if err != nil {
			return err
		}
		if !item.IsOwnedBy(cmd.ActorID) {
			return domain.ErrNotItemOwner
		}

		version := item.Version
		textChanged, err = item.Apply(domain.ItemPatch{
			Title:       cmd.Title,
			Description: cmd.Description,
			Category:    cmd.Category,
			Price:       cmd.Price,
			Condition:   cmd.Condition,
			Location:    cmd.Location,
			Images:      cmd.Images,
		})
		if err != nil {
			return err
		}
		if err := tx.Items().Update(ctx, item, version); err != nil {
			return err
		}
		if textChanged {
			return tx.Embeddings().MarkStale(ctx, item.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if textChanged {
		s.embed(ctx, item)
	}
	s.invalidateSearch(ctx)
	s.publish(ctx, events.ItemUpdatedEvent{
		ItemID:      item.ID,
		TextChanged: textChanged,
		OccurredAt:  item.UpdatedAt,
	})
	return item, nil
}

// Delete soft-deletes an available item owned by the actor
func (s *ItemService) Delete(ctx context.Context, cmd commands.DeleteItemCommand) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		item, err := tx.Items().FindByID(ctx, cmd.ID)
		if err != nil {
			return err
		}
		if !item.IsOwnedBy(cmd.ActorID) {
			return domain.ErrNotItemOwner
		}
		if err := item.CanDelete(); err != nil {
			return err
		}
		return mapMismatch(tx.Items().SoftDelete(ctx, item.ID), domain.ErrItemNotDeletable)
	})
	if err != nil {
		return err
	}

	if err := s.index.Remove(ctx, cmd.ID); err != nil {
		// The item is already gone from every read path
		s.logger.Warn("Failed to remove embedding", zap.String("item_id", cmd.ID.String()), zap.Error(err))
	}
	s.invalidateSearch(ctx)
	s.publish(ctx, events.ItemDeletedEvent{ItemID: cmd.ID, OccurredAt: time.Now().UTC()})

	s.logger.Info("Item deleted", zap.String("item_id", cmd.ID.String()))
	return nil
}

// Autocomplete suggests available items whose title contains q
func (s *ItemService) Autocomplete(ctx context.Context, q string, limit int) ([]*domain.Item, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*domain.Item{}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if limit > MaxSuggestLimit {
		return nil, apperrors.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", MaxSuggestLimit), "limit")
	}
	return s.store.Items().Autocomplete(ctx, q, limit)
}

// ListByOwner lists a user's listings; others only see available ones
func (s *ItemService) ListByOwner(ctx context.Context, ownerID uuid.UUID, availableOnly bool) ([]*domain.Item, error) {
	if _, err := s.store.Users().FindByID(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.store.Items().ListByOwner(ctx, ownerID, availableOnly)
}

func (s *ItemService) embed(ctx context.Context, item *domain.Item) {
	if err := s.index.Upsert(ctx, item.ID, item.EmbeddingText()); err != nil {
		s.logger.Warn("Item saved without embedding, will re-embed lazily",
			zap.String("item_id", item.ID.String()),
			zap.Error(err))
	}
}
