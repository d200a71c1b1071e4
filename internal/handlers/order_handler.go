package handlers

import (
	"net/http"

	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/service"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	logger *zap.Logger
	orders *service.OrderService
}

func NewOrderHandler(orders *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{logger: logger, orders: orders}
}

// PlaceOrder handles POST /api/v1/items/:id/orders
// @Summary      Place an order
// @Description  Places a pending order on an available item and reserves it. The offered price defaults to the listing price.
//
// Only one order may be active per item: when two buyers race, the second receives 409.
// Send `X-Request-ID` to make retries safe.
//
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string             false  "Idempotency key"
// @Param        id            path      string             true   "Item ID (UUID)"
// @Param        request       body      PlaceOrderRequest  false  "Offer details"
// @Success      201           {object}  OrderResponse
// @Failure      400           {object}  errors.StandardError  "Invalid offer"
// @Failure      404           {object}  errors.StandardError  "Item not found"
// @Failure      409           {object}  errors.StandardError  "Item not available or own item"
// @Router       /items/{id}/orders [post]
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req PlaceOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, errors.NewInvalidRequest("invalid request", err.Error()))
			return
		}
	}

	order, err := h.orders.Place(c.Request.Context(), commands.PlaceOrderCommand{
		ItemID:         itemID,
		BuyerID:        userID,
		OfferedPrice:   req.OfferedPrice,
		MeetupLocation: req.MeetupLocation,
		MeetupTime:     req.MeetupTime,
		Note:           req.Note,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

// ListOrders handles GET /api/v1/orders
// @Summary      List my orders
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        role    query     string  false  "buyer or seller (default: both)"
// @Param        status  query     string  false  "pending, approved, completed or cancelled"
// @Success      200     {object}  OrderListResponse
// @Failure      400     {object}  errors.StandardError  "Invalid filter"
// @Router       /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orders, err := h.orders.ListForUser(c.Request.Context(), userID, c.Query("role"), domain.OrderStatus(c.Query("status")))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderListResponse(orders))
}

// GetOrder handles GET /api/v1/orders/:id
// @Summary      Get an order
// @Description  Visible to the buyer and the seller only; anyone else gets 404.
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order ID (UUID)"
// @Success      200  {object}  OrderResponse
// @Failure      404  {object}  errors.StandardError  "Order not found"
// @Router       /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), id, userID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

// ApproveOrder handles POST /api/v1/orders/:id/approve
// @Summary      Approve an order
// @Description  Seller of record only. pending → approved.
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order ID (UUID)"
// @Success      200  {object}  OrderResponse
// @Failure      409  {object}  errors.StandardError  "Wrong actor or invalid transition"
// @Router       /orders/{id}/approve [post]
func (h *OrderHandler) ApproveOrder(c *gin.Context) {
	h.transition(c, commands.ActionApprove)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
// @Summary      Cancel an order
// @Description  Buyer or seller. pending or approved → cancelled; the item becomes available again.
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order ID (UUID)"
// @Success      200  {object}  OrderResponse
// @Failure      409  {object}  errors.StandardError  "Invalid transition"
// @Router       /orders/{id}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	h.transition(c, commands.ActionCancel)
}

// CompleteOrder handles POST /api/v1/orders/:id/complete
// @Summary      Complete an order
// @Description  Buyer of record confirms the handover. approved → completed; the item is marked sold.
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order ID (UUID)"
// @Success      200  {object}  OrderResponse
// @Failure      409  {object}  errors.StandardError  "Wrong actor or invalid transition"
// @Router       /orders/{id}/complete [post]
func (h *OrderHandler) CompleteOrder(c *gin.Context) {
	h.transition(c, commands.ActionComplete)
}

func (h *OrderHandler) transition(c *gin.Context, action commands.OrderAction) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Transition(c.Request.Context(), commands.TransitionOrderCommand{
		OrderID: id,
		ActorID: userID,
		Action:  action,
	})
	if err != nil {
		h.logger.Debug("Order transition rejected",
			zap.String("order_id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err))
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}
