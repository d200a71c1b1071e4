package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/metrics"
	"campus-marketplace/internal/search"
	"campus-marketplace/internal/service"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Searcher ranks available listings
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

type ItemHandler struct {
	logger    *zap.Logger
	items     *service.ItemService
	favorites *service.FavoriteService
	searcher  Searcher
	cache     cache.Cache
	cacheTTL  int
}

// NewItemHandler creates the listings handler; cacheClient may be nil
func NewItemHandler(items *service.ItemService, favorites *service.FavoriteService, searcher Searcher, cacheClient cache.Cache, cacheTTL int, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{
		logger:    logger,
		items:     items,
		favorites: favorites,
		searcher:  searcher,
		cache:     cacheClient,
		cacheTTL:  cacheTTL,
	}
}

// ListItems handles GET /api/v1/items
// @Summary      Search listings
// @Description  Ranks available listings against the free-text query, blending keyword matches with embedding similarity.
//
// An empty `q` returns every available listing, newest first. Category and condition filters are
// applied before ranking. When the query cannot be embedded the ranking falls back to keyword-only
// (`mode` = `keyword_only`). Results are cached until the next listing or order change.
//
// **Examples:**
// - Newest listings: `GET /api/v1/items`
// - Semantic search in a category: `GET /api/v1/items?q=calculus+book&category=books`
// - Cheapest first: `GET /api/v1/items?q=desk&sort_by=price_low&page=2&per_page=10`
//
// @Tags         items
// @Produce      json
// @Param        q          query     string  false  "Free-text query"
// @Param        category   query     string  false  "Category filter"
// @Param        condition  query     string  false  "Condition filter (new, like_new, good, fair, poor)"
// @Param        sort_by    query     string  false  "relevance (default), newest, oldest, price_low, price_high"
// @Param        page       query     int     false  "Page number (default: 1)" example(1)
// @Param        per_page   query     int     false  "Items per page (default: 20, max: 100)" example(20)
// @Success      200        {object}  ListItemsResponse
// @Failure      400        {object}  errors.StandardError  "Invalid paging or sort"
// @Router       /items [get]
func (h *ItemHandler) ListItems(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		abort(c, err)
		return
	}
	perPage, err := intQuery(c, "per_page", search.DefaultPerPage)
	if err != nil {
		abort(c, err)
		return
	}
	sortBy := c.Query("sort_by")
	if !search.ValidSort(sortBy) {
		abort(c, errors.NewValidationError("sort_by must be one of relevance, newest, oldest, price_low, price_high", "sort_by"))
		return
	}

	query := search.Query{
		Text:      c.Query("q"),
		Category:  c.Query("category"),
		Condition: c.Query("condition"),
		SortBy:    sortBy,
		Page:      page,
		PerPage:   perPage,
	}
	query.Normalize()

	ctx := c.Request.Context()
	cacheKey := searchCacheKey(query)

	// Try cache first (if enabled)
	if h.cache != nil {
		var cached ListItemsResponse
		if err := cache.GetJSON(ctx, h.cache, cacheKey, &cached); err == nil {
			metrics.SearchCacheHits.WithLabelValues("hit").Inc()
			h.logger.Debug("Cache hit", zap.String("key", cacheKey))
			c.JSON(http.StatusOK, cached)
			return
		}
		metrics.SearchCacheHits.WithLabelValues("miss").Inc()
	}

	result, err := h.searcher.Search(ctx, query)
	if err != nil {
		h.logger.Error("Failed to search items", zap.Error(err))
		abort(c, err)
		return
	}
	response := newListItemsResponse(result)

	if h.cache != nil {
		if err := cache.SetJSON(ctx, h.cache, cacheKey, response, cache.TTL(h.cacheTTL)); err != nil {
			h.logger.Warn("Failed to cache search results", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, response)
}

// Autocomplete handles GET /api/v1/items/autocomplete
// @Summary      Suggest listings by title
// @Tags         items
// @Produce      json
// @Param        q      query     string  false  "Title prefix or fragment"
// @Param        limit  query     int     false  "Maximum suggestions (default: 8, max: 50)"
// @Success      200    {object}  ItemListResponse
// @Failure      400    {object}  errors.StandardError  "Limit out of range"
// @Router       /items/autocomplete [get]
func (h *ItemHandler) Autocomplete(c *gin.Context) {
	limit, err := intQuery(c, "limit", service.DefaultSuggestLimit)
	if err != nil {
		abort(c, err)
		return
	}
	items, err := h.items.Autocomplete(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemListResponse(items))
}

// GetItem handles GET /api/v1/items/:id
// @Summary      Get a listing
// @Description  Returns the listing with its favorite count; `is_favorited` is set for authenticated callers.
// @Tags         items
// @Produce      json
// @Param        id   path      string  true  "Item ID (UUID)"
// @Success      200  {object}  ItemDetailResponse
// @Failure      400  {object}  errors.StandardError  "Malformed ID"
// @Failure      404  {object}  errors.StandardError  "Item not found"
// @Router       /items/{id} [get]
func (h *ItemHandler) GetItem(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.items.Get(c.Request.Context(), id, optionalUser(c))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemDetailResponse(detail))
}

// CreateItem handles POST /api/v1/items
// @Summary      Create a listing
// @Description  Lists an item for sale by the caller. The listing is searchable immediately; its embedding is computed after the write and retried in the background if the embedding backend is down.
// @Tags         items
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string             false  "Idempotency key; a retry with the same key returns the original response"
// @Param        request       body      CreateItemRequest  true   "Listing"
// @Success      201           {object}  ItemResponse
// @Failure      400           {object}  errors.StandardError  "Validation error"
// @Failure      401           {object}  errors.StandardError
// @Router       /items [post]
func (h *ItemHandler) CreateItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.NewInvalidRequest("invalid request", err.Error()))
		return
	}
	if req.Price == nil {
		abort(c, errors.NewValidationError("price is required", "price"))
		return
	}

	item, err := h.items.Create(c.Request.Context(), commands.CreateItemCommand{
		OwnerID:     userID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       *req.Price,
		Condition:   req.Condition,
		Location:    req.Location,
		Images:      req.Images,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newItemResponse(item))
}

// UpdateItem handles PUT /api/v1/items/:id
// @Summary      Update a listing
// @Description  Partial update by the owner. Changing the title or description re-embeds the listing.
// @Tags         items
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string             true  "Item ID (UUID)"
// @Param        request  body      UpdateItemRequest  true  "Fields to change"
// @Success      200      {object}  ItemResponse
// @Failure      400      {object}  errors.StandardError  "Validation error"
// @Failure      403      {object}  errors.StandardError  "Not the owner"
// @Failure      404      {object}  errors.StandardError  "Item not found"
// @Failure      409      {object}  errors.StandardError  "Concurrent update"
// @Router       /items/{id} [put]
func (h *ItemHandler) UpdateItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.NewInvalidRequest("invalid request", err.Error()))
		return
	}

	item, err := h.items.Update(c.Request.Context(), commands.UpdateItemCommand{
		ID:          id,
		ActorID:     userID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Condition:   req.Condition,
		Location:    req.Location,
		Images:      req.Images,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemResponse(item))
}

// DeleteItem handles DELETE /api/v1/items/:id
// @Summary      Delete a listing
// @Description  Only the owner may delete, and only while the item is available.
// @Tags         items
// @Security     BearerAuth
// @Param        id   path  string  true  "Item ID (UUID)"
// @Success      204
// @Failure      403  {object}  errors.StandardError  "Not the owner"
// @Failure      404  {object}  errors.StandardError  "Item not found"
// @Failure      409  {object}  errors.StandardError  "Item has an active order or is sold"
// @Router       /items/{id} [delete]
func (h *ItemHandler) DeleteItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.items.Delete(c.Request.Context(), commands.DeleteItemCommand{ID: id, ActorID: userID}); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddFavorite handles POST /api/v1/items/:id/favorites
// @Summary      Favorite a listing
// @Description  Idempotent: favoriting twice is not an error.
// @Tags         favorites
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Item ID (UUID)"
// @Success      200  {object}  FavoriteResponse
// @Failure      404  {object}  errors.StandardError  "Item not found"
// @Router       /items/{id}/favorites [post]
func (h *ItemHandler) AddFavorite(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	added, err := h.favorites.Add(c.Request.Context(), userID, id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, FavoriteResponse{ItemID: id, IsFavorited: true, Changed: added})
}

// RemoveFavorite handles DELETE /api/v1/items/:id/favorites
// @Summary      Unfavorite a listing
// @Description  Idempotent: removing a favorite that does not exist is not an error.
// @Tags         favorites
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Item ID (UUID)"
// @Success      200  {object}  FavoriteResponse
// @Router       /items/{id}/favorites [delete]
func (h *ItemHandler) RemoveFavorite(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	removed, err := h.favorites.Remove(c.Request.Context(), userID, id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, FavoriteResponse{ItemID: id, IsFavorited: false, Changed: removed})
}

// searchCacheKey hashes the normalized query so equal searches share an entry
func searchCacheKey(q search.Query) string {
	raw, _ := json.Marshal(q)
	sum := sha256.Sum256(raw)
	return cache.SearchPrefix + hex.EncodeToString(sum[:16])
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name+" must be an integer", name)
	}
	return n, nil
}
