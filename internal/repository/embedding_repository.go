package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLEmbeddingRepository implements EmbeddingRepository
type SQLEmbeddingRepository struct {
	q sqlx.ExtContext
}

// NewEmbeddingRepository creates an embedding repository over a connection or transaction
func NewEmbeddingRepository(q sqlx.ExtContext) *SQLEmbeddingRepository {
	return &SQLEmbeddingRepository{q: q}
}

func (r *SQLEmbeddingRepository) MarkStale(ctx context.Context, itemID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO item_embeddings (item_id, vector, model_version, stale, updated_at) VALUES (?, NULL, '', 1, ?)
		ON CONFLICT (item_id) DO UPDATE SET vector = NULL, stale = 1, updated_at = excluded.updated_at`,
		itemID.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark embedding stale: %w", err)
	}
	return nil
}

// itemTextSQL mirrors domain.Item.EmbeddingText over the items table
const itemTextSQL = `CASE WHEN i.description = '' THEN i.title ELSE i.title || ' ' || i.description END`

// Save stores a vector computed from text. The write only lands while the item
// is active and text is still its current embedding text; otherwise it
// reports false and leaves the row untouched.
func (r *SQLEmbeddingRepository) Save(ctx context.Context, itemID uuid.UUID, text string, vector []float32, modelVersion string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO item_embeddings (item_id, vector, model_version, stale, updated_at)
		SELECT i.id, ?, ?, 0, ? FROM items i
		WHERE i.id = ? AND i.active = 1 AND `+itemTextSQL+` = ?
		ON CONFLICT (item_id) DO UPDATE SET vector = excluded.vector, model_version = excluded.model_version,
			stale = 0, updated_at = excluded.updated_at`,
		EncodeVector(vector), modelVersion, time.Now().UTC(), itemID.String(), text,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to save embedding: %w", err)
	}
	return n > 0, nil
}

func (r *SQLEmbeddingRepository) Delete(ctx context.Context, itemID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM item_embeddings WHERE item_id = ?`, itemID.String()); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

func (r *SQLEmbeddingRepository) Fresh(ctx context.Context, itemIDs []uuid.UUID, modelVersion string) (map[uuid.UUID][]float32, error) {
	result := make(map[uuid.UUID][]float32, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`
		SELECT item_id, vector FROM item_embeddings
		WHERE stale = 0 AND vector IS NOT NULL AND model_version = ? AND item_id IN (?)`,
		modelVersion, uuidStrings(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding query: %w", err)
	}

	var rows []struct {
		ItemID uuid.UUID `db:"item_id"`
		Vector []byte    `db:"vector"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	for _, row := range rows {
		vec, err := DecodeVector(row.Vector)
		if err != nil {
			return nil, fmt.Errorf("embedding of item %s: %w", row.ItemID, err)
		}
		result[row.ItemID] = vec
	}
	return result, nil
}

// ListStale returns active items whose vector is missing, flagged stale or
// computed by another model, oldest change first
func (r *SQLEmbeddingRepository) ListStale(ctx context.Context, modelVersion string, limit int) ([]StaleEmbedding, error) {
	rows := []StaleEmbedding{}
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT i.id AS item_id, `+itemTextSQL+` AS text
		FROM items i
		LEFT JOIN item_embeddings e ON e.item_id = i.id
		WHERE i.active = 1 AND (e.item_id IS NULL OR e.stale = 1 OR e.model_version <> ?)
		ORDER BY COALESCE(e.updated_at, i.updated_at), i.id
		LIMIT ?`, modelVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale embeddings: %w", err)
	}
	return rows, nil
}

func (r *SQLEmbeddingRepository) CountStale(ctx context.Context, modelVersion string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `
		SELECT COUNT(*) FROM items i
		LEFT JOIN item_embeddings e ON e.item_id = i.id
		WHERE i.active = 1 AND (e.item_id IS NULL OR e.stale = 1 OR e.model_version <> ?)`, modelVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale embeddings: %w", err)
	}
	return count, nil
}

// EncodeVector packs a vector as little-endian float32s
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
