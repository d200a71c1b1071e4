package embedding

import (
	"context"
	"errors"
	"time"

	"campus-marketplace/internal/metrics"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ResilienceConfig tunes retries and the circuit breaker around a remote embedder
type ResilienceConfig struct {
	Name             string
	MaxRetries       uint64
	InitialInterval  time.Duration
	MaxElapsed       time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// ResilientEmbedder retries transient failures with exponential backoff and
// stops calling the backend while the breaker is open. Every failure it
// returns is a DependencyUnavailable error.
type ResilientEmbedder struct {
	next    Embedder
	breaker *gobreaker.CircuitBreaker
	config  ResilienceConfig
	logger  *zap.Logger
}

// NewResilientEmbedder wraps next
func NewResilientEmbedder(next Embedder, cfg ResilienceConfig, logger *zap.Logger) *ResilientEmbedder {
	if cfg.Name == "" {
		cfg.Name = "embedding"
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(open)
		},
	}

	return &ResilientEmbedder{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		config:  cfg,
		logger:  logger,
	}
}

func (r *ResilientEmbedder) Dimensions() int      { return r.next.Dimensions() }
func (r *ResilientEmbedder) ModelVersion() string { return r.next.ModelVersion() }

func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.embedWithRetry(ctx, text)
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(r.config.Name, "error").Inc()
		return nil, apperrors.NewDependencyUnavailable("embedding backend", err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(r.config.Name, "success").Inc()
	return result.([]float32), nil
}

func (r *ResilientEmbedder) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.InitialInterval
	b.MaxElapsedTime = r.config.MaxElapsed

	var vec []float32
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		vec, err = r.next.Embed(ctx, text)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		r.logger.Debug("Embedding attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, r.config.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return vec, nil
}
