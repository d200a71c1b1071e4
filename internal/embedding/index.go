package embedding

import (
	"context"

	"campus-marketplace/internal/metrics"
	"campus-marketplace/internal/repository"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Index keeps one vector per active item for the current model version
type Index struct {
	embeddings   repository.EmbeddingRepository
	embedder     Embedder
	refreshBatch int
	logger       *zap.Logger
}

// NewIndex creates an index. After every successful Upsert up to
// refreshBatch stale rows are recomputed as well.
func NewIndex(embeddings repository.EmbeddingRepository, embedder Embedder, refreshBatch int, logger *zap.Logger) *Index {
	return &Index{
		embeddings:   embeddings,
		embedder:     embedder,
		refreshBatch: refreshBatch,
		logger:       logger,
	}
}

// ModelVersion is the version stored vectors must carry to be used
func (ix *Index) ModelVersion() string { return ix.embedder.ModelVersion() }

// EmbedQuery embeds free text with the same embedder used for items
func (ix *Index) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return ix.embed(ctx, text)
}

// Vectors returns the fresh vectors of the given items; missing ids have none
func (ix *Index) Vectors(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID][]float32, error) {
	return ix.embeddings.Fresh(ctx, itemIDs, ix.embedder.ModelVersion())
}

// Upsert recomputes and stores the item's vector. A vector whose text is no
// longer the item's current text is discarded. On backend failure the row is
// left stale and a DependencyUnavailable error is returned.
func (ix *Index) Upsert(ctx context.Context, itemID uuid.UUID, text string) error {
	vec, err := ix.embed(ctx, text)
	if err != nil {
		if markErr := ix.embeddings.MarkStale(ctx, itemID); markErr != nil {
			ix.logger.Error("Failed to flag embedding stale",
				zap.String("item_id", itemID.String()),
				zap.Error(markErr))
		}
		ix.logger.Warn("Embedding unavailable, item left stale",
			zap.String("item_id", itemID.String()),
			zap.Error(err))
		return err
	}
	saved, err := ix.embeddings.Save(ctx, itemID, text, vec, ix.embedder.ModelVersion())
	if err != nil {
		return err
	}
	if !saved {
		ix.logger.Debug("Embedding superseded, item changed while embedding",
			zap.String("item_id", itemID.String()))
	}

	if ix.refreshBatch > 0 {
		if n, err := ix.RefreshStale(ctx, ix.refreshBatch); err != nil {
			ix.logger.Warn("Stale refresh stopped early",
				zap.Int("refreshed", n),
				zap.Error(err))
		}
	}
	return nil
}

// Remove drops the item's vector
func (ix *Index) Remove(ctx context.Context, itemID uuid.UUID) error {
	return ix.embeddings.Delete(ctx, itemID)
}

// MarkStale flags the item for lazy re-embedding
func (ix *Index) MarkStale(ctx context.Context, itemID uuid.UUID) error {
	return ix.embeddings.MarkStale(ctx, itemID)
}

// RefreshStale re-embeds up to limit stale items and returns how many were
// refreshed. It stops at the first backend failure.
func (ix *Index) RefreshStale(ctx context.Context, limit int) (int, error) {
	stale, err := ix.embeddings.ListStale(ctx, ix.embedder.ModelVersion(), limit)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, row := range stale {
		vec, err := ix.embed(ctx, row.Text)
		if err != nil {
			return refreshed, err
		}
		saved, err := ix.embeddings.Save(ctx, row.ItemID, row.Text, vec, ix.embedder.ModelVersion())
		if err != nil {
			return refreshed, err
		}
		if !saved {
			continue
		}
		refreshed++
		metrics.EmbeddingsRefreshed.Inc()
	}

	if refreshed > 0 {
		ix.logger.Debug("Refreshed stale embeddings", zap.Int("count", refreshed))
	}
	return refreshed, nil
}

// CountStale reports how many active items lack a fresh vector
func (ix *Index) CountStale(ctx context.Context) (int, error) {
	n, err := ix.embeddings.CountStale(ctx, ix.embedder.ModelVersion())
	if err == nil {
		metrics.EmbeddingsStale.Set(float64(n))
	}
	return n, err
}

func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := ix.embedder.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if apperrors.HasCode(err, apperrors.CodeDependencyUnavailable) {
		return nil, err
	}
	return nil, apperrors.NewDependencyUnavailable("embedding backend", err)
}
