package service

import (
	"context"

	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FavoriteService maintains the user↔item ledger. Add and Remove are idempotent.
type FavoriteService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewFavoriteService(store repository.Store, logger *zap.Logger) *FavoriteService {
	return &FavoriteService{store: store, logger: logger}
}

// Add favorites an active item; it reports false when already present
func (s *FavoriteService) Add(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	if _, err := s.store.Items().FindByID(ctx, itemID); err != nil {
		return false, err
	}
	added, err := s.store.Favorites().Add(ctx, userID, itemID)
	if err != nil {
		return false, err
	}
	if added {
		s.logger.Debug("Favorite added",
			zap.String("user_id", userID.String()),
			zap.String("item_id", itemID.String()))
	}
	return added, nil
}

// Remove never fails on a missing pair
func (s *FavoriteService) Remove(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	return s.store.Favorites().Remove(ctx, userID, itemID)
}

// List returns the user's favorites, newest first
func (s *FavoriteService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Item, error) {
	return s.store.Favorites().ListItems(ctx, userID)
}
