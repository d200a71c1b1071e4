package handlers

import (
	"net/http"

	"campus-marketplace/internal/auth"
	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/service"
	"campus-marketplace/internal/storage"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHandler serves public profiles and the caller's own dashboard
type UserHandler struct {
	logger    *zap.Logger
	users     *service.UserService
	items     *service.ItemService
	favorites *service.FavoriteService
	orders    *service.OrderService
	images    storage.Store
}

func NewUserHandler(users *service.UserService, items *service.ItemService, favorites *service.FavoriteService, orders *service.OrderService, images storage.Store, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		logger:    logger,
		users:     users,
		items:     items,
		favorites: favorites,
		orders:    orders,
		images:    images,
	}
}

// GetUser handles GET /api/v1/users/:id
// @Summary      Public profile
// @Tags         users
// @Produce      json
// @Param        id   path      string  true  "User ID (UUID)"
// @Success      200  {object}  PublicUserResponse
// @Failure      404  {object}  errors.StandardError  "User not found"
// @Router       /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newPublicUserResponse(user))
}

// GetUserItems handles GET /api/v1/users/:id/items
// @Summary      A user's available listings
// @Tags         users
// @Produce      json
// @Param        id   path      string  true  "User ID (UUID)"
// @Success      200  {object}  ItemListResponse
// @Failure      404  {object}  errors.StandardError  "User not found"
// @Router       /users/{id}/items [get]
func (h *UserHandler) GetUserItems(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	items, err := h.items.ListByOwner(c.Request.Context(), id, true)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemListResponse(items))
}

// GetMe handles GET /api/v1/users/me
// @Summary      My account
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  auth.UserResponse
// @Failure      401  {object}  errors.StandardError
// @Router       /users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}

// UpdateMe handles PUT /api/v1/users/me
// @Summary      Edit my profile
// @Description  Omitted fields are unchanged. Usernames are unique.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      UpdateProfileRequest  true  "Profile fields"
// @Success      200      {object}  auth.UserResponse
// @Failure      400      {object}  errors.StandardError  "Validation error"
// @Failure      409      {object}  errors.StandardError  "Username taken"
// @Router       /users/me [put]
func (h *UserHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.NewInvalidRequest("invalid request", err.Error()))
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), commands.UpdateProfileCommand{
		UserID:      userID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}

// UploadAvatar handles POST /api/v1/users/me/avatar
// @Summary      Set my profile picture
// @Description  Stores a png, jpeg or webp image and makes it the caller's avatar. The type is detected from the bytes.
// @Tags         users
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        profile_image  formData  file  true  "Image file"
// @Success      200            {object}  auth.UserResponse
// @Failure      400            {object}  errors.StandardError  "Missing file, unsupported type or too large"
// @Failure      503            {object}  errors.StandardError  "Object storage unavailable"
// @Router       /users/me/avatar [post]
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	header, err := c.FormFile("profile_image")
	if err != nil {
		abort(c, errors.NewValidationError("profile_image is required", "profile_image"))
		return
	}
	file, err := header.Open()
	if err != nil {
		abort(c, errors.NewInvalidRequest("could not read upload", err.Error()))
		return
	}
	defer file.Close()

	body, err := storage.RestrictTypes(file, storage.AvatarTypes)
	if err != nil {
		abort(c, err)
		return
	}
	image, err := h.images.Put(c.Request.Context(), body)
	if err != nil {
		abort(c, err)
		return
	}
	user, err := h.users.SetAvatar(c.Request.Context(), userID, image.Ref)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}

// MyRecentlyViewed handles GET /api/v1/users/me/recently-viewed
// @Summary      Recently viewed items
// @Description  Listings the caller opened while signed in, newest first. Deleted listings are left out.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Max entries (default 10, clamped to 1-50)"
// @Success      200    {object}  RecentViewListResponse
// @Failure      400    {object}  errors.StandardError  "limit is not an integer"
// @Router       /users/me/recently-viewed [get]
func (h *UserHandler) MyRecentlyViewed(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		abort(c, err)
		return
	}
	views, err := h.users.RecentlyViewed(c.Request.Context(), userID, limit)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newRecentViewListResponse(views))
}

// MyItems handles GET /api/v1/users/me/items
// @Summary      My listings
// @Description  Every listing of the caller regardless of status.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ItemListResponse
// @Router       /users/me/items [get]
func (h *UserHandler) MyItems(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.items.ListByOwner(c.Request.Context(), userID, false)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemListResponse(items))
}

// MyFavorites handles GET /api/v1/users/me/favorites
// @Summary      My favorites
// @Description  Most recently favorited first.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ItemListResponse
// @Router       /users/me/favorites [get]
func (h *UserHandler) MyFavorites(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.favorites.List(c.Request.Context(), userID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemListResponse(items))
}

// MyOrders handles GET /api/v1/users/me/orders
// @Summary      My orders
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        role    query     string  false  "buyer or seller (default: both)"
// @Param        status  query     string  false  "pending, approved, completed or cancelled"
// @Success      200     {object}  OrderListResponse
// @Failure      400     {object}  errors.StandardError  "Invalid filter"
// @Router       /users/me/orders [get]
func (h *UserHandler) MyOrders(c *gin.Context) {
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

// MyStats handles GET /api/v1/users/me/stats
// @Summary      My activity
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.UserStats
// @Router       /users/me/stats [get]
func (h *UserHandler) MyStats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.users.Stats(c.Request.Context(), userID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
