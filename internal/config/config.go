package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	// Monitoring port of the listener process
	ListenerPort string
	Environment  string
	LogLevel     string
	PublicURL    string
	// SQLite Configuration
	SQLitePath string
	// JWT Configuration
	JWTSecret string
	JWTTTL    time.Duration
	// Redis Configuration
	UseCache      bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      int // seconds
	// Kafka Configuration
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaTopicItems    string
	KafkaTopicOrders   string
	KafkaTopicMessages string
	KafkaClientID      string
	KafkaGroupID       string
	KafkaAcks          string
	KafkaRetries       int
	// Embedding Configuration
	EmbeddingProvider   string // "hashing" or "openai"
	EmbeddingDimensions int
	EmbeddingModel      string
	EmbeddingEndpoint   string
	EmbeddingAPIKey     string
	EmbeddingTimeout    time.Duration
	EmbeddingCacheSize  int
	EmbeddingRefreshMax int
	StaleSweepInterval  time.Duration
	// Search Configuration
	SearchSimilarityWeight float64
	SearchKeywordWeight    float64
	SearchMinSimilarity    float64
	// Storage Configuration
	StorageBackend   string // "local" or "s3"
	StorageLocalDir  string
	StorageMaxBytes  int64
	S3Bucket         string
	S3Endpoint       string
	S3ForcePathStyle bool
	AWSRegion        string
	// OAuth Configuration
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	// Mail Configuration
	MailFrom string
	// Rate limiting
	RateLimitPerMinute int
	RateLimitBurst     int
	// Browser origins allowed by CORS; "*" allows any
	CORSAllowedOrigins []string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Parse Kafka brokers (comma-separated)
	kafkaBrokers := getEnvAsList("KAFKA_BROKERS", "localhost:9093")

	port := getEnv("PORT", "8080")

	return &Config{
		Port:         port,
		ListenerPort: getEnv("LISTENER_PORT", "8081"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     getEnv("LOG_LEVEL", ""),
		PublicURL:    getEnv("PUBLIC_URL", "http://localhost:"+port),
		SQLitePath:   getEnv("SQLITE_PATH", "./data/marketplace.db"),
		// JWT Configuration
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production-min-32-chars"),
		JWTTTL:    getEnvAsDuration("JWT_TTL", 24*time.Hour),
		// Redis Configuration
		UseCache:      getEnvAsBool("USE_CACHE", true),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL:      getEnvAsInt("CACHE_TTL", 60),
		// Kafka Configuration
		KafkaEnabled:       getEnvAsBool("KAFKA_ENABLED", true),
		KafkaBrokers:       kafkaBrokers,
		KafkaTopicItems:    getEnv("KAFKA_TOPIC_ITEMS", "marketplace.items"),
		KafkaTopicOrders:   getEnv("KAFKA_TOPIC_ORDERS", "marketplace.orders"),
		KafkaTopicMessages: getEnv("KAFKA_TOPIC_MESSAGES", "marketplace.messages"),
		KafkaClientID:      getEnv("KAFKA_CLIENT_ID", "marketplace-api"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "marketplace-listener"),
		KafkaAcks:          getEnv("KAFKA_ACKS", "all"),
		KafkaRetries:       getEnvAsInt("KAFKA_RETRIES", 3),
		// Embedding Configuration
		EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "hashing"),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 256),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingEndpoint:   getEnv("EMBEDDING_ENDPOINT", "https://api.openai.com/v1/embeddings"),
		EmbeddingAPIKey:     getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingTimeout:    getEnvAsDuration("EMBEDDING_TIMEOUT", 5*time.Second),
		EmbeddingCacheSize:  getEnvAsInt("EMBEDDING_CACHE_SIZE", 1024),
		EmbeddingRefreshMax: getEnvAsInt("EMBEDDING_REFRESH_BATCH", 16),
		StaleSweepInterval:  getEnvAsDuration("STALE_SWEEP_INTERVAL", time.Minute),
		// Search Configuration
		SearchSimilarityWeight: getEnvAsFloat("SEARCH_SIMILARITY_WEIGHT", 1.0),
		SearchKeywordWeight:    getEnvAsFloat("SEARCH_KEYWORD_WEIGHT", 1.0),
		SearchMinSimilarity:    getEnvAsFloat("SEARCH_MIN_SIMILARITY", 0.2),
		// Storage Configuration
		StorageBackend:   getEnv("STORAGE_BACKEND", "local"),
		StorageLocalDir:  getEnv("STORAGE_LOCAL_DIR", "./data/uploads"),
		StorageMaxBytes:  int64(getEnvAsInt("STORAGE_MAX_BYTES", 5<<20)),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3ForcePathStyle: getEnvAsBool("S3_FORCE_PATH_STYLE", false),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		// OAuth Configuration
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:"+port+"/api/v1/auth/oauth/google/callback"),
		// Mail Configuration
		MailFrom: getEnv("MAIL_FROM", "no-reply@campus-marketplace.local"),
		// Rate limiting
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 5),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", "*"),
	}
}

// getEnvAsList splits a comma-separated variable, dropping blank entries
func getEnvAsList(key, defaultValue string) []string {
	var list []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
