package commands

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateItemCommand represents a command to list a new item
type CreateItemCommand struct {
	OwnerID     uuid.UUID
	Title       string
	Description string
	Category    string
	Price       decimal.Decimal
	Condition   string
	Location    string
	Images      []string
}

// UpdateItemCommand represents a partial update of a listing
type UpdateItemCommand struct {
	ID          uuid.UUID
	ActorID     uuid.UUID
	Title       *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	Condition   *string
	Location    *string
	Images      []string
}

// DeleteItemCommand represents a command to delete a listing
type DeleteItemCommand struct {
	ID      uuid.UUID
	ActorID uuid.UUID
}

// PlaceOrderCommand represents a buyer's offer on an item
type PlaceOrderCommand struct {
	ItemID         uuid.UUID
	BuyerID        uuid.UUID
	OfferedPrice   *decimal.Decimal
	MeetupLocation string
	MeetupTime     *time.Time
	Note           string
}

// OrderAction names a transition requested on an existing order
type OrderAction string

const (
	ActionApprove  OrderAction = "approve"
	ActionCancel   OrderAction = "cancel"
	ActionComplete OrderAction = "complete"
)

// TransitionOrderCommand represents approve/cancel/complete
type TransitionOrderCommand struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Action  OrderAction
}

// SendMessageCommand represents a new message about an item. RecipientID is
// required when the sender owns the item.
type SendMessageCommand struct {
	SenderID    uuid.UUID
	ItemID      uuid.UUID
	RecipientID *uuid.UUID
	Body        string
}

// SignupCommand represents a local account registration
type SignupCommand struct {
	Email       string
	Username    string
	DisplayName string
	Password    string
}

// UpdateProfileCommand represents edits to the caller's profile
type UpdateProfileCommand struct {
	UserID      uuid.UUID
	Username    *string
	DisplayName *string
	Bio         *string
}
