package domain

import (
	apperrors "campus-marketplace/pkg/errors"
)

// Domain errors
var (
	ErrItemNotFound         = apperrors.NewStandardError(apperrors.CodeNotFound, "item not found", "")
	ErrOrderNotFound        = apperrors.NewStandardError(apperrors.CodeNotFound, "order not found", "")
	ErrUserNotFound         = apperrors.NewStandardError(apperrors.CodeNotFound, "user not found", "")
	ErrConversationNotFound = apperrors.NewStandardError(apperrors.CodeNotFound, "conversation not found", "")

	ErrItemNotAvailable   = apperrors.NewConflict("item is not available", "only available items can be ordered")
	ErrItemNotDeletable   = apperrors.NewConflict("item cannot be deleted", "only available items can be deleted")
	ErrOwnItem            = apperrors.NewConflict("cannot order your own item", "")
	ErrInvalidTransition  = apperrors.NewConflict("invalid order transition", "")
	ErrNotSellerOfRecord  = apperrors.NewConflict("only the seller of record may perform this action", "")
	ErrNotBuyerOfRecord   = apperrors.NewConflict("only the buyer of record may perform this action", "")
	ErrNotOrderParty      = apperrors.NewConflict("only the buyer or seller may cancel this order", "")
	ErrConcurrentUpdate   = apperrors.NewConflict("resource was modified concurrently", "retry the request")
	ErrEmailTaken         = apperrors.NewConflict("email already registered", "")
	ErrNotItemOwner       = apperrors.NewForbidden("only the owner may modify this item")
	ErrNotParticipant     = apperrors.NewForbidden("not a participant of this conversation")
	ErrInvalidCredentials = apperrors.NewUnauthorized("invalid credentials", "")
)
