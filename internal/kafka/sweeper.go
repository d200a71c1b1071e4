package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleIndex is what the sweeper needs from the embedding index
type StaleIndex interface {
	RefreshStale(ctx context.Context, limit int) (int, error)
	CountStale(ctx context.Context) (int, error)
}

// Sweeper re-embeds items whose vectors are missing or stale. It covers
// events that were lost and embeddings that failed while the backend was down.
type Sweeper struct {
	index    StaleIndex
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

func NewSweeper(index StaleIndex, interval time.Duration, batch int, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 16
	}
	return &Sweeper{index: index, interval: interval, batch: batch, logger: logger}
}

// Run sweeps once immediately, then on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("✅ Stale embedding sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stale embedding sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one refresh pass and returns how many items were re-embedded
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.index.RefreshStale(ctx, s.batch)
	if err != nil {
		s.logger.Warn("Stale sweep incomplete", zap.Int("refreshed", n), zap.Error(err))
	} else if n > 0 {
		s.logger.Info("Stale sweep refreshed items", zap.Int("count", n))
	}

	remaining, err := s.index.CountStale(ctx)
	if err != nil {
		s.logger.Warn("Failed to count stale embeddings", zap.Error(err))
		return n
	}
	if remaining > 0 {
		s.logger.Debug("Stale embeddings remaining", zap.Int("count", remaining))
	}
	return n
}
