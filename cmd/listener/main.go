package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/config"
	"campus-marketplace/internal/database"
	"campus-marketplace/internal/embedding"
	"campus-marketplace/internal/handlers"
	"campus-marketplace/internal/kafka"
	"campus-marketplace/internal/metrics"
	"campus-marketplace/internal/repository"
	"campus-marketplace/pkg/logger"
	"campus-marketplace/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "campus-marketplace-listener"

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

	appLogger.Info("🚀 Starting Marketplace Listener",
		zap.String("environment", cfg.Environment),
		zap.String("sqlite_path", cfg.SQLitePath),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("kafka_group_id", cfg.KafkaGroupID),
	)

	appLogger.Info("📡 Kafka Configuration",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic_items", cfg.KafkaTopicItems),
		zap.String("topic_orders", cfg.KafkaTopicOrders),
		zap.String("topic_messages", cfg.KafkaTopicMessages),
		zap.String("group_id", cfg.KafkaGroupID),
	)

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
	appLogger.Info("✅ Database initialized successfully")

	// Search results are cached by the API; the listener evicts them
	appLogger.Info("🔧 Initializing cache...")
	cacheClient := cache.NewCache(cfg, appLogger)
	if closer, ok := cacheClient.(io.Closer); ok {
		defer closer.Close()
	}
	appLogger.Info("✅ Cache initialized successfully")

	appLogger.Info("🔧 Initializing embedding index...")
	embedder, err := embedding.NewFromConfig(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize embedder", zap.Error(err))
	}
	index := embedding.NewIndex(store.Embeddings(), embedder, cfg.EmbeddingRefreshMax, appLogger)
	appLogger.Info("✅ Embedding index initialized successfully", zap.String("model_version", index.ModelVersion()))

	// Initialize event handler
	appLogger.Info("🔧 Initializing event handler...")
	eventHandler := kafka.NewEventHandler(cacheClient, index, cfg.EmbeddingRefreshMax, appLogger)
	appLogger.Info("✅ Event handler initialized successfully")

	// Initialize Kafka consumer
	appLogger.Info("🔧 Initializing Kafka consumer...")
	consumer, err := kafka.NewConsumer(cfg, eventHandler, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()
	appLogger.Info("✅ Kafka consumer initialized successfully",
		zap.Strings("topics", []string{cfg.KafkaTopicItems, cfg.KafkaTopicOrders, cfg.KafkaTopicMessages}),
	)

	// Monitoring server
	router := gin.New()
	router.Use(middleware.RecoveryHandler(appLogger))
	router.Use(logger.GinMiddleware(appLogger, "/health", "/metrics"))
	router.Use(middleware.RequestIDMiddleware(appLogger))
	router.Use(middleware.ErrorHandler(appLogger))

	healthHandler := handlers.NewHealthHandler(db, index, serviceName, appLogger)
	router.GET("/health", healthHandler.Health)
	router.GET("/monitoring/stats", healthHandler.GetStats)
	router.GET("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.ListenerPort,
		Handler: router,
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)

	go func() {
		appLogger.Info("📨 Starting Kafka consumer...")
		if err := consumer.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Catches items whose refresh event was lost
	sweeper := kafka.NewSweeper(index, cfg.StaleSweepInterval, cfg.EmbeddingRefreshMax, appLogger)
	go sweeper.Run(ctx)

	go func() {
		appLogger.Info("📊 Starting monitoring server", zap.String("port", cfg.ListenerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		appLogger.Error("Listener error", zap.Error(err))
	case sig := <-quit:
		appLogger.Info("Shutting down listener", zap.String("signal", sig.String()))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Monitoring server forced to shutdown", zap.Error(err))
	}

	appLogger.Info("Listener exited")
}
