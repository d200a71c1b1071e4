package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/repository"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxDisplayNameLength = 100
	maxBioLength         = 500
)

// UserService serves profiles and activity stats
type UserService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewUserService(store repository.Store, logger *zap.Logger) *UserService {
	return &UserService{store: store, logger: logger}
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.store.Users().FindByID(ctx, id)
}

// UpdateProfile edits username, display name and bio
func (s *UserService) UpdateProfile(ctx context.Context, cmd commands.UpdateProfileCommand) (*domain.User, error) {
	user, err := s.store.Users().FindByID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if cmd.Username != nil {
		username := strings.TrimSpace(*cmd.Username)
		if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
			return nil, apperrors.NewValidationError("username must be between 3 and 50 characters", "username")
		}
		user.Username = username
	}
	if cmd.DisplayName != nil {
		name := strings.TrimSpace(*cmd.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLength {
			return nil, apperrors.NewValidationError("display_name must be between 1 and 100 characters", "display_name")
		}
		user.DisplayName = name
	}
	if cmd.Bio != nil {
		bio := strings.TrimSpace(*cmd.Bio)
		if utf8.RuneCountInString(bio) > maxBioLength {
			return nil, apperrors.NewValidationError("bio must be at most 500 characters", "bio")
		}
		user.Bio = bio
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetAvatar points the profile picture at an already stored image
func (s *UserService) SetAvatar(ctx context.Context, userID uuid.UUID, ref string) (*domain.User, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, apperrors.NewValidationError("image reference is required", "profile_image")
	}
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := user.AvatarRef
	user.AvatarRef = ref
	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("Avatar updated",
		zap.String("user_id", userID.String()),
		zap.String("ref", ref),
		zap.String("previous_ref", previous))
	return user, nil
}

// RecentlyViewed lists the caller's browsing history, newest first.
// limit defaults to DefaultRecentViews and is clamped to [1, MaxRecentViews].
func (s *UserService) RecentlyViewed(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.RecentView, error) {
	if limit == 0 {
		limit = domain.DefaultRecentViews
	}
	if limit < 1 {
		limit = 1
	}
	if limit > domain.MaxRecentViews {
		limit = domain.MaxRecentViews
	}
	return s.store.Views().ListRecent(ctx, userID, limit)
}

// Stats summarizes listings, sales, purchases, favorites and unread messages
func (s *UserService) Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	stats, err := s.store.Users().Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.Conversations().UnreadBySender(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, row := range unread {
		stats.UnreadMessages += row.Count
	}
	return stats, nil
}
