package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-marketplace/internal/auth"
	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/config"
	"campus-marketplace/internal/database"
	"campus-marketplace/internal/embedding"
	"campus-marketplace/internal/events"
	"campus-marketplace/internal/handlers"
	"campus-marketplace/internal/kafka"
	"campus-marketplace/internal/metrics"
	"campus-marketplace/internal/repository"
	"campus-marketplace/internal/search"
	"campus-marketplace/internal/service"
	"campus-marketplace/internal/storage"
	"campus-marketplace/pkg/logger"
	"campus-marketplace/pkg/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "campus-marketplace/docs" // Import docs for Swagger
)

const serviceName = "campus-marketplace"

// @title           Campus Marketplace API
// @version         1.0
// @description     Listings, semantic search, orders, favorites and messaging for a campus second-hand marketplace.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Example: "Bearer eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	appLogger := logger.New(logger.Options{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Service:     serviceName,
	})
	defer appLogger.Sync()

	appLogger.Info("🚀 Starting Campus Marketplace API",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
	)

	appLogger.Info("🔐 JWT Configuration",
		zap.Int("secret_length", len(cfg.JWTSecret)),
		zap.Duration("ttl", cfg.JWTTTL),
	)

	appLogger.Info("🧠 Search Configuration",
		zap.String("embedding_provider", cfg.EmbeddingProvider),
		zap.Int("dimensions", cfg.EmbeddingDimensions),
		zap.Float64("similarity_weight", cfg.SearchSimilarityWeight),
		zap.Float64("keyword_weight", cfg.SearchKeywordWeight),
		zap.Float64("min_similarity", cfg.SearchMinSimilarity),
	)

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database (Single Writer)
	appLogger.Info("🔧 Initializing database...")
	db, err := database.NewSingleWriterDB(cfg.SQLitePath, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	store := repository.NewSQLStore(db)
	appLogger.Info("✅ Database initialized successfully", zap.String("path", cfg.SQLitePath))

	// Initialize cache (Redis or in-memory fallback)
	appLogger.Info("🔧 Initializing cache...")
	cacheClient := cache.NewCache(cfg, appLogger)
	if closer, ok := cacheClient.(io.Closer); ok {
		defer closer.Close()
	}
	appLogger.Info("✅ Cache initialized successfully")

	// Initialize event publisher
	appLogger.Info("🔧 Initializing event publisher...")
	publisher := events.NewPublisher(cfg, appLogger)
	if closer, ok := publisher.(io.Closer); ok {
		defer closer.Close()
	}
	appLogger.Info("✅ Event publisher initialized successfully")

	// Initialize embedding index and search ranker
	appLogger.Info("🔧 Initializing embedding index...")
	embedder, err := embedding.NewFromConfig(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize embedder", zap.Error(err))
	}
	index := embedding.NewIndex(store.Embeddings(), embedder, cfg.EmbeddingRefreshMax, appLogger)
	ranker, err := search.NewRanker(store.Items(), index, search.Options{
		Weights: search.Weights{
			Similarity: cfg.SearchSimilarityWeight,
			Keyword:    cfg.SearchKeywordWeight,
		},
		MinSimilarity: cfg.SearchMinSimilarity,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Invalid search configuration", zap.Error(err))
	}
	appLogger.Info("✅ Embedding index initialized successfully", zap.String("model_version", index.ModelVersion()))

	// Initialize image storage
	appLogger.Info("🔧 Initializing image storage...")
	images, err := storage.NewFromConfig(context.Background(), cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize image storage", zap.Error(err))
	}
	appLogger.Info("✅ Image storage initialized successfully", zap.String("backend", cfg.StorageBackend))

	// Initialize services
	appLogger.Info("🔧 Initializing services...")
	itemService := service.NewItemService(store, index, publisher, cacheClient, appLogger)
	orderService := service.NewOrderService(store, publisher, cacheClient, appLogger)
	favoriteService := service.NewFavoriteService(store, appLogger)
	conversationService := service.NewConversationService(store, publisher, appLogger)
	userService := service.NewUserService(store, appLogger)
	appLogger.Info("✅ Services initialized successfully")

	// Initialize JWT manager
	appLogger.Info("🔧 Initializing JWT manager...")
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL, cacheClient, appLogger)
	appLogger.Info("✅ JWT manager initialized successfully")

	// Initialize auth handler
	appLogger.Info("🔧 Initializing auth handler...")
	googleOAuth := auth.NewGoogleOAuth(cfg, cacheClient, appLogger)
	if googleOAuth == nil {
		appLogger.Info("Google login disabled (GOOGLE_CLIENT_ID not set)")
	}
	authService := auth.NewService(store, jwtManager, auth.NewLogMailer(cfg.MailFrom, appLogger), cfg.PublicURL, appLogger)
	authHandler := auth.NewAuthHandler(authService, googleOAuth, appLogger)
	appLogger.Info("✅ Auth handler initialized successfully")

	// Initialize handlers
	appLogger.Info("🔧 Initializing handlers...")
	itemHandler := handlers.NewItemHandler(itemService, favoriteService, ranker, cacheClient, cfg.CacheTTL, appLogger)
	orderHandler := handlers.NewOrderHandler(orderService, appLogger)
	conversationHandler := handlers.NewConversationHandler(conversationService, appLogger)
	userHandler := handlers.NewUserHandler(userService, itemService, favoriteService, orderService, images, appLogger)
	uploadHandler := handlers.NewUploadHandler(images, appLogger)
	healthHandler := handlers.NewHealthHandler(db, index, serviceName, appLogger)
	appLogger.Info("✅ Handlers initialized successfully")

	// Initialize router
	router := gin.New()

	// CORS middleware (must be first to handle preflight requests)
	router.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	router.Use(middleware.RecoveryHandler(appLogger))
	router.Use(logger.GinMiddleware(appLogger, "/api/v1/health", "/metrics"))

	// Request ID middleware (must be early in the chain)
	router.Use(middleware.RequestIDMiddleware(appLogger))
	router.Use(middleware.MetricsMiddleware())

	// Error handler middleware
	router.Use(middleware.ErrorHandler(appLogger))

	// Swagger documentation and metrics
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", metrics.Handler())

	if local, ok := images.(*storage.LocalStore); ok {
		router.Static(storage.LocalPublicPrefix, local.Dir())
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst, appLogger)
	requireAuth := middleware.AuthMiddleware(jwtManager, appLogger)
	idempotency := middleware.IdempotencyMiddleware(cacheClient, appLogger, 5*time.Minute)

	// API routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint (public)
		v1.GET("/health", healthHandler.Health)
		v1.GET("/monitoring/stats", healthHandler.GetStats)

		authRoutes := v1.Group("/auth")
		{
			limited := authRoutes.Group("")
			limited.Use(rateLimiter.Middleware())
			{
				limited.POST("/signup", authHandler.Signup)
				limited.POST("/login", authHandler.Login)
				limited.POST("/forgot-password", authHandler.ForgotPassword)
				limited.POST("/reset-password", authHandler.ResetPassword)
			}
			authRoutes.POST("/verify-email", authHandler.VerifyEmail)
			authRoutes.GET("/oauth/google", authHandler.GoogleLogin)
			authRoutes.GET("/oauth/google/callback", authHandler.GoogleCallback)

			authRoutes.POST("/logout", requireAuth, authHandler.Logout)
			authRoutes.POST("/resend-verification", requireAuth, authHandler.ResendVerification)
			authRoutes.GET("/me", requireAuth, authHandler.Me)
		}

		// Public reads; a valid token personalizes the response
		public := v1.Group("")
		public.Use(middleware.OptionalAuthMiddleware(jwtManager, appLogger))
		{
			public.GET("/items", itemHandler.ListItems)
			public.GET("/items/autocomplete", itemHandler.Autocomplete)
			public.GET("/items/:id", itemHandler.GetItem)
			public.GET("/users/:id", userHandler.GetUser)
			public.GET("/users/:id/items", userHandler.GetUserItems)
		}

		// Protected endpoints (require JWT authentication)
		protected := v1.Group("")
		protected.Use(requireAuth)
		protected.Use(idempotency)
		{
			items := protected.Group("/items")
			{
				items.POST("", itemHandler.CreateItem)
				items.PUT("/:id", itemHandler.UpdateItem)
				items.DELETE("/:id", itemHandler.DeleteItem)
				items.POST("/:id/favorites", itemHandler.AddFavorite)
				items.DELETE("/:id/favorites", itemHandler.RemoveFavorite)
				items.POST("/:id/orders", orderHandler.PlaceOrder)
			}

			orders := protected.Group("/orders")
			{
				orders.GET("", orderHandler.ListOrders)
				orders.GET("/:id", orderHandler.GetOrder)
				orders.POST("/:id/approve", orderHandler.ApproveOrder)
				orders.POST("/:id/cancel", orderHandler.CancelOrder)
				orders.POST("/:id/complete", orderHandler.CompleteOrder)
			}

			conversations := protected.Group("/conversations")
			{
				conversations.GET("", conversationHandler.ListConversations)
				conversations.GET("/unread", conversationHandler.Unread)
				conversations.POST("/messages", conversationHandler.SendMessage)
				conversations.GET("/:id/messages", conversationHandler.GetMessages)
				conversations.POST("/:id/read", conversationHandler.MarkRead)
			}

			me := protected.Group("/users/me")
			{
				me.GET("", userHandler.GetMe)
				me.PUT("", userHandler.UpdateMe)
				me.GET("/items", userHandler.MyItems)
				me.GET("/favorites", userHandler.MyFavorites)
				me.GET("/orders", userHandler.MyOrders)
				me.GET("/stats", userHandler.MyStats)
				me.GET("/recently-viewed", userHandler.MyRecentlyViewed)
				me.POST("/avatar", userHandler.UploadAvatar)
			}

			uploads := protected.Group("/uploads")
			{
				uploads.POST("/images", uploadHandler.UploadImage)
				uploads.POST("/presign", uploadHandler.PresignUpload)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Without a listener nothing else refreshes stale embeddings
	if !cfg.KafkaEnabled {
		sweeper := kafka.NewSweeper(index, cfg.StaleSweepInterval, cfg.EmbeddingRefreshMax, appLogger)
		go sweeper.Run(ctx)
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Starting marketplace API",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	appLogger.Info("Server exited")
}
