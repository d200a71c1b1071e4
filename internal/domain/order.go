package domain

import (
	"strings"
	"time"

	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a purchase offer
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderApproved  OrderStatus = "approved"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Valid reports whether s names a known state
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderApproved, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Order is a purchase offer from a buyer on a single item
type Order struct {
	ID             uuid.UUID
	ItemID         uuid.UUID
	BuyerID        uuid.UUID
	SellerID       uuid.UUID
	OfferedPrice   decimal.Decimal
	MeetupLocation string
	MeetupTime     *time.Time
	Note           string
	Status         OrderStatus
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PlaceOrder checks that buyer may order item and returns a pending order.
// A zero offered price falls back to the listing price.
func PlaceOrder(item *Item, buyerID uuid.UUID, offered *decimal.Decimal, meetupLocation string, meetupTime *time.Time, note string) (*Order, error) {
	if item.IsOwnedBy(buyerID) {
		return nil, ErrOwnItem
	}
	if item.Status != ItemAvailable {
		return nil, ErrItemNotAvailable
	}

	price := item.Price
	if offered != nil {
		if offered.IsNegative() {
			return nil, apperrors.NewValidationError("offered price must be greater than or equal to 0", "offered_price")
		}
		price = *offered
	}

	now := time.Now().UTC()
	return &Order{
		ID:             uuid.New(),
		ItemID:         item.ID,
		BuyerID:        buyerID,
		SellerID:       item.OwnerID,
		OfferedPrice:   price,
		MeetupLocation: strings.TrimSpace(meetupLocation),
		MeetupTime:     meetupTime,
		Note:           strings.TrimSpace(note),
		Status:         OrderPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Transition is the result of a state change: the order's new state and the
// item status that must accompany it.
type Transition struct {
	From       OrderStatus
	To         OrderStatus
	ItemFrom   ItemStatus
	ItemTo     ItemStatus
	ItemChange bool
}

// Approve moves pending → approved; only the seller of record may do it
func (o *Order) Approve(actor uuid.UUID) (Transition, error) {
	if actor != o.SellerID {
		return Transition{}, ErrNotSellerOfRecord
	}
	if o.Status != OrderPending {
		return Transition{}, ErrInvalidTransition
	}
	return o.move(OrderApproved, Transition{}), nil
}

// Cancel moves pending|approved → cancelled and releases the item
func (o *Order) Cancel(actor uuid.UUID) (Transition, error) {
	if actor != o.SellerID && actor != o.BuyerID {
		return Transition{}, ErrNotOrderParty
	}
	if o.Status != OrderPending && o.Status != OrderApproved {
		return Transition{}, ErrInvalidTransition
	}
	return o.move(OrderCancelled, Transition{ItemFrom: ItemPending, ItemTo: ItemAvailable, ItemChange: true}), nil
}

// Complete moves approved → completed; only the buyer confirms delivery
func (o *Order) Complete(actor uuid.UUID) (Transition, error) {
	if actor != o.BuyerID {
		return Transition{}, ErrNotBuyerOfRecord
	}
	if o.Status != OrderApproved {
		return Transition{}, ErrInvalidTransition
	}
	return o.move(OrderCompleted, Transition{ItemFrom: ItemPending, ItemTo: ItemSold, ItemChange: true}), nil
}

func (o *Order) move(to OrderStatus, t Transition) Transition {
	t.From = o.Status
	t.To = to
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	o.Version++
	return t
}

// IsParty reports whether userID is the buyer or the seller
func (o *Order) IsParty(userID uuid.UUID) bool {
	return o.BuyerID == userID || o.SellerID == userID
}
