// Package embedding maps listing and query text to vectors and keeps the
// per-item vectors in step with the listings they describe.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"campus-marketplace/internal/config"

	"go.uber.org/zap"
)

// Embedder turns text into a fixed-length vector. For a given ModelVersion
// the result must be a pure function of the text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelVersion() string
}

// NewFromConfig builds the configured embedder chain:
// backend -> resilience (remote backends only) -> LRU memoization
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (Embedder, error) {
	var base Embedder
	switch cfg.EmbeddingProvider {
	case "", "hashing":
		base = NewHashingEmbedder(cfg.EmbeddingDimensions)
	case "openai":
		httpEmbedder, err := NewHTTPEmbedder(HTTPConfig{
			Endpoint:   cfg.EmbeddingEndpoint,
			APIKey:     cfg.EmbeddingAPIKey,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
			Client:     &http.Client{Timeout: cfg.EmbeddingTimeout},
		})
		if err != nil {
			return nil, err
		}
		base = NewResilientEmbedder(httpEmbedder, ResilienceConfig{
			Name:        "embedding-" + cfg.EmbeddingProvider,
			MaxRetries:  2,
			MaxElapsed:  cfg.EmbeddingTimeout,
			OpenTimeout: 30 * time.Second,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}

	if cfg.EmbeddingCacheSize <= 0 {
		return base, nil
	}
	return NewCachedEmbedder(base, cfg.EmbeddingCacheSize)
}
