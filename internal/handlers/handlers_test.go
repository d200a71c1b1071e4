package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"campus-marketplace/internal/auth"
	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/database"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/embedding"
	"campus-marketplace/internal/events"
	"campus-marketplace/internal/repository"
	"campus-marketplace/internal/search"
	"campus-marketplace/internal/service"
	"campus-marketplace/internal/storage"
	"campus-marketplace/pkg/errors"
	"campus-marketplace/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingSearcher records how often a search really reaches the ranker
type countingSearcher struct {
	next  Searcher
	calls int32
}

func (s *countingSearcher) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.next.Search(ctx, q)
}

func (s *countingSearcher) count() int32 {
	return atomic.LoadInt32(&s.calls)
}

type handlerEnv struct {
	db       *database.SingleWriterDB
	store    *repository.SQLStore
	cache    cache.Cache
	jwt      *auth.JWTManager
	searcher *countingSearcher
	images   *storage.LocalStore
	router   *gin.Engine
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	logger := zap.NewNop()

	swdb, err := database.NewSingleWriterDB(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { swdb.Close() })

	store := repository.NewSQLStore(swdb)
	cacheClient := cache.NewInMemoryCache(logger)
	publisher := events.NewEventPublisher(logger)
	index := embedding.NewIndex(store.Embeddings(), embedding.NewHashingEmbedder(64), 4, logger)
	ranker, err := search.NewRanker(store.Items(), index, search.DefaultOptions(), logger)
	require.NoError(t, err)
	images, err := storage.NewLocalStore(t.TempDir(), 0, logger)
	require.NoError(t, err)

	items := service.NewItemService(store, index, publisher, cacheClient, logger)
	orders := service.NewOrderService(store, publisher, cacheClient, logger)
	favorites := service.NewFavoriteService(store, logger)
	conversations := service.NewConversationService(store, publisher, logger)
	users := service.NewUserService(store, logger)

	env := &handlerEnv{
		db:       swdb,
		store:    store,
		cache:    cacheClient,
		jwt:      auth.NewJWTManager("handler-test-secret", time.Hour, cacheClient, logger),
		searcher: &countingSearcher{next: ranker},
		images:   images,
	}
	env.router = setupTestRouter(env,
		NewItemHandler(items, favorites, env.searcher, cacheClient, 300, logger),
		NewOrderHandler(orders, logger),
		NewConversationHandler(conversations, logger),
		NewUserHandler(users, items, favorites, orders, images, logger),
		NewUploadHandler(images, logger),
		NewHealthHandler(swdb, index, "campus-marketplace", logger),
	)
	return env
}

func setupTestRouter(env *handlerEnv, items *ItemHandler, orders *OrderHandler, conversations *ConversationHandler, users *UserHandler, uploads *UploadHandler, health *HealthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	router := gin.New()
	router.Use(middleware.ErrorHandler(logger))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", health.Health)
		v1.GET("/monitoring/stats", health.GetStats)

		public := v1.Group("")
		public.Use(middleware.OptionalAuthMiddleware(env.jwt, logger))
		{
			public.GET("/items", items.ListItems)
			public.GET("/items/autocomplete", items.Autocomplete)
			public.GET("/items/:id", items.GetItem)
			public.GET("/users/:id", users.GetUser)
			public.GET("/users/:id/items", users.GetUserItems)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(env.jwt, logger))
		{
			protected.POST("/items", items.CreateItem)
			protected.PUT("/items/:id", items.UpdateItem)
			protected.DELETE("/items/:id", items.DeleteItem)
			protected.POST("/items/:id/favorites", items.AddFavorite)
			protected.DELETE("/items/:id/favorites", items.RemoveFavorite)
			protected.POST("/items/:id/orders", orders.PlaceOrder)

			protected.GET("/orders", orders.ListOrders)
			protected.GET("/orders/:id", orders.GetOrder)
			protected.POST("/orders/:id/approve", orders.ApproveOrder)
			protected.POST("/orders/:id/cancel", orders.CancelOrder)
			protected.POST("/orders/:id/complete", orders.CompleteOrder)

			protected.GET("/conversations", conversations.ListConversations)
			protected.GET("/conversations/unread", conversations.Unread)
			protected.POST("/conversations/messages", conversations.SendMessage)
			protected.GET("/conversations/:id/messages", conversations.GetMessages)
			protected.POST("/conversations/:id/read", conversations.MarkRead)

			protected.GET("/users/me", users.GetMe)
			protected.PUT("/users/me", users.UpdateMe)
			protected.GET("/users/me/items", users.MyItems)
			protected.GET("/users/me/favorites", users.MyFavorites)
			protected.GET("/users/me/orders", users.MyOrders)
			protected.GET("/users/me/stats", users.MyStats)
			protected.GET("/users/me/recently-viewed", users.MyRecentlyViewed)
			protected.POST("/users/me/avatar", users.UploadAvatar)

			protected.POST("/uploads/images", uploads.UploadImage)
			protected.POST("/uploads/presign", uploads.PresignUpload)
		}
	}
	return router
}

// user creates an account and returns it with a bearer token
func (e *handlerEnv) user(t *testing.T, name string) (*domain.User, string) {
	t.Helper()
	user, err := domain.NewUser(name+"@campus.edu", name, "")
	require.NoError(t, err)
	require.NoError(t, e.store.Users().Create(context.Background(), user))
	session, err := e.jwt.GenerateToken(user)
	require.NoError(t, err)
	return user, session.Token
}

func (e *handlerEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createItem lists an item through the API
func (e *handlerEnv) createItem(t *testing.T, token, title, price string) ItemResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/items", token, map[string]interface{}{
		"title":       title,
		"description": "pick up near the library",
		"category":    "books",
		"price":       price,
		"condition":   "good",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var item ItemResponse
	decode(t, w, &item)
	return item
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errors.StandardError
	decode(t, w, &resp)
	return resp.Code
}
