package service

import (
	"context"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/events"
	"campus-marketplace/internal/metrics"
	"campus-marketplace/internal/repository"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Roles accepted by ListForUser
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// OrderService runs the order state machine. The order and its item change
// together or not at all.
type OrderService struct {
	base
}

func NewOrderService(store repository.Store, publisher events.EventPublisher, cacheClient cache.Cache, logger *zap.Logger) *OrderService {
	return &OrderService{base: base{store: store, publisher: publisher, cache: cacheClient, logger: logger}}
}

// Place creates a pending order and moves the item to pending. Of two buyers
// racing for one item the second gets ErrItemNotAvailable.
func (s *OrderService) Place(ctx context.Context, cmd commands.PlaceOrderCommand) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		item, err := tx.Items().FindByID(ctx, cmd.ItemID)
		if err != nil {
			return err
		}
		order, err = domain.PlaceOrder(item, cmd.BuyerID, cmd.OfferedPrice, cmd.MeetupLocation, cmd.MeetupTime, cmd.Note)
		if err != nil {
			return err
		}
		if err := tx.Items().CompareAndSetStatus(ctx, item.ID, domain.ItemAvailable, domain.ItemPending); err != nil {
			return mapMismatch(err, domain.ErrItemNotAvailable)
		}
		return tx.Orders().Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitionsTotal.WithLabelValues(string(domain.OrderPending)).Inc()
	s.invalidateSearch(ctx)
	s.publish(ctx, events.OrderPlacedEvent{
		OrderID:      order.ID,
		ItemID:       order.ItemID,
		BuyerID:      order.BuyerID,
		SellerID:     order.SellerID,
		OfferedPrice: order.OfferedPrice.String(),
		OccurredAt:   order.CreatedAt,
	})

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("item_id", order.ItemID.String()))
	return order, nil
}

// Transition applies approve, cancel or complete on behalf of the actor
func (s *OrderService) Transition(ctx context.Context, cmd commands.TransitionOrderCommand) (*domain.Order, error) {
	var (
		order *domain.Order
		tr    domain.Transition
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().FindByID(ctx, cmd.OrderID)
		if err != nil {
			return err
		}

		switch cmd.Action {
		case commands.ActionApprove:
			tr, err = order.Approve(cmd.ActorID)
		case commands.ActionCancel:
			tr, err = order.Cancel(cmd.ActorID)
		case commands.ActionComplete:
			tr, err = order.Complete(cmd.ActorID)
		default:
			return apperrors.NewInvalidRequest("unknown order action", string(cmd.Action))
		}
		if err != nil {
			return err
		}

		if err := tx.Orders().UpdateStatus(ctx, order, tr.From); err != nil {
			return mapMismatch(err, domain.ErrConcurrentUpdate)
		}
		if tr.ItemChange {
			if err := tx.Items().CompareAndSetStatus(ctx, order.ItemID, tr.ItemFrom, tr.ItemTo); err != nil {
				return mapMismatch(err, domain.ErrConcurrentUpdate)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitionsTotal.WithLabelValues(string(tr.To)).Inc()
	event := events.OrderStatusChangedEvent{
		OrderID:    order.ID,
		ItemID:     order.ItemID,
		ActorID:    cmd.ActorID,
		From:       string(tr.From),
		To:         string(tr.To),
		OccurredAt: order.UpdatedAt,
	}
	if tr.ItemChange {
		event.ItemStatus = string(tr.ItemTo)
		s.invalidateSearch(ctx)
	}
	s.publish(ctx, event)

	s.logger.Info("Order transitioned",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)))
	return order, nil
}

// Get returns an order visible to its buyer or seller only
func (s *OrderService) Get(ctx context.Context, id, viewer uuid.UUID) (*domain.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(viewer) {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListForUser lists orders where the user is buyer or seller (role "" means
// either), optionally restricted to one status
func (s *OrderService) ListForUser(ctx context.Context, userID uuid.UUID, role string, status domain.OrderStatus) ([]*domain.Order, error) {
	switch role {
	case "", RoleBuyer, RoleSeller:
	default:
		return nil, apperrors.NewValidationError("role must be buyer or seller", "role")
	}
	if status != "" && !status.Valid() {
		return nil, apperrors.NewValidationError("status must be one of pending, approved, completed, cancelled", "status")
	}
	return s.store.Orders().ListByUser(ctx, userID, role, status)
}
