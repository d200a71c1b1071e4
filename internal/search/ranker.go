// Package search ranks available listings for a free-text query by blending
// keyword matching with embedding similarity.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/embedding"
	"campus-marketplace/internal/metrics"
	"campus-marketplace/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sort orders accepted by Search
const (
	SortRelevance = "relevance"
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceLow  = "price_low"
	SortPriceHigh = "price_high"
)

// Ranking modes, reported with each result
const (
	ModeRecency     = "recency"
	ModeRanked      = "ranked"
	ModeKeywordOnly = "keyword_only"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Weights blends the two relevance signals; both must be non-negative
type Weights struct {
	Similarity float64
	Keyword    float64
}

// Options configures a Ranker
type Options struct {
	Weights       Weights
	MinSimilarity float64
}

// DefaultOptions ranks keyword and semantic matches equally
func DefaultOptions() Options {
	return Options{Weights: Weights{Similarity: 1, Keyword: 1}, MinSimilarity: 0.2}
}

// Candidates loads the filtered candidate set
type Candidates interface {
	ListAvailable(ctx context.Context, filter repository.ItemFilter) ([]*domain.Item, error)
}

// VectorIndex supplies the query and item vectors
type VectorIndex interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Vectors(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID][]float32, error)
}

// Query is one search request
type Query struct {
	Text      string
	Category  string
	Condition string
	SortBy    string
	Page      int
	PerPage   int
}

// Hit is a ranked item with the signals that placed it
type Hit struct {
	Item         *domain.Item
	Score        float64
	Similarity   float64
	KeywordMatch bool
}

// Result is one page of hits
type Result struct {
	Hits    []Hit
	Total   int
	Page    int
	PerPage int
	Mode    string
}

// Ranker implements the search contract
type Ranker struct {
	candidates Candidates
	index      VectorIndex
	opts       Options
	logger     *zap.Logger
}

// NewRanker validates the options and creates a ranker
func NewRanker(candidates Candidates, index VectorIndex, opts Options, logger *zap.Logger) (*Ranker, error) {
	if opts.Weights.Similarity < 0 || opts.Weights.Keyword < 0 {
		return nil, fmt.Errorf("search weights must be non-negative, got %+v", opts.Weights)
	}
	if opts.Weights.Similarity == 0 && opts.Weights.Keyword == 0 {
		return nil, fmt.Errorf("at least one search weight must be positive")
	}
	if opts.MinSimilarity < -1 || opts.MinSimilarity > 1 {
		return nil, fmt.Errorf("minimum similarity must be within [-1, 1], got %v", opts.MinSimilarity)
	}
	return &Ranker{candidates: candidates, index: index, opts: opts, logger: logger}, nil
}

// Normalize fills defaults and clamps paging
func (q *Query) Normalize() {
	q.Text = strings.TrimSpace(q.Text)
	q.Category = strings.TrimSpace(q.Category)
	q.Condition = strings.TrimSpace(q.Condition)
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	if q.SortBy == "" {
		q.SortBy = SortRelevance
	}
}

// ValidSort reports whether s is an accepted sort order
func ValidSort(s string) bool {
	switch s {
	case "", SortRelevance, SortNewest, SortOldest, SortPriceLow, SortPriceHigh:
		return true
	}
	return false
}

// Search ranks, optionally re-sorts, and pages the results
func (r *Ranker) Search(ctx context.Context, q Query) (*Result, error) {
	q.Normalize()
	hits, mode, err := r.Rank(ctx, q.Text, repository.ItemFilter{Category: q.Category, Condition: q.Condition})
	if err != nil {
		return nil, err
	}
	applySort(hits, q.SortBy)

	total := len(hits)
	start := (q.Page - 1) * q.PerPage
	if start > total {
		start = total
	}
	end := start + q.PerPage
	if end > total {
		end = total
	}
	return &Result{
		Hits:    hits[start:end],
		Total:   total,
		Page:    q.Page,
		PerPage: q.PerPage,
		Mode:    mode,
	}, nil
}

// Rank returns every included candidate, most relevant first. An empty query
// yields all candidates by recency. Embedding failures degrade to keyword-only
// ranking and are never returned.
func (r *Ranker) Rank(ctx context.Context, text string, filter repository.ItemFilter) ([]Hit, string, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	items, err := r.candidates.ListAvailable(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		hits := make([]Hit, len(items))
		for i, item := range items {
			hits[i] = Hit{Item: item}
		}
		sort.SliceStable(hits, func(a, b int) bool { return newerFirst(hits[a].Item, hits[b].Item) })
		metrics.SearchRequestsTotal.WithLabelValues(ModeRecency).Inc()
		return hits, ModeRecency, nil
	}

	terms := strings.Fields(strings.ToLower(text))
	mode := ModeRanked
	vectors, queryVec, err := r.similarityInputs(ctx, text, items)
	if err != nil {
		r.logger.Warn("Query embedding failed, ranking by keywords only",
			zap.String("query", text),
			zap.Error(err))
		metrics.SearchFallbackTotal.Inc()
		mode = ModeKeywordOnly
	}

	hits := make([]Hit, 0, len(items))
	for _, item := range items {
		hit := Hit{Item: item, KeywordMatch: KeywordMatch(item, terms)}
		if mode == ModeRanked {
			if vec, ok := vectors[item.ID]; ok {
				hit.Similarity = embedding.Cosine(queryVec, vec)
			}
		}
		if !hit.KeywordMatch && (mode != ModeRanked || hit.Similarity < r.opts.MinSimilarity) {
			continue
		}
		hit.Score = r.opts.Weights.Similarity * hit.Similarity
		if hit.KeywordMatch {
			hit.Score += r.opts.Weights.Keyword
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return newerFirst(hits[a].Item, hits[b].Item)
	})
	metrics.SearchRequestsTotal.WithLabelValues(mode).Inc()
	return hits, mode, nil
}

func (r *Ranker) similarityInputs(ctx context.Context, text string, items []*domain.Item) (map[uuid.UUID][]float32, []float32, error) {
	queryVec, err := r.index.EmbedQuery(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	vectors, err := r.index.Vectors(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return vectors, queryVec, nil
}

// KeywordMatch reports whether every term occurs in the title or description,
// ignoring case. No terms means no match.
func KeywordMatch(item *domain.Item, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	title := strings.ToLower(item.Title)
	description := strings.ToLower(item.Description)
	for _, term := range terms {
		if !strings.Contains(title, term) && !strings.Contains(description, term) {
			return false
		}
	}
	return true
}

func newerFirst(a, b *domain.Item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func applySort(hits []Hit, sortBy string) {
	switch sortBy {
	case SortNewest:
		sort.SliceStable(hits, func(a, b int) bool { return newerFirst(hits[a].Item, hits[b].Item) })
	case SortOldest:
		sort.SliceStable(hits, func(a, b int) bool { return newerFirst(hits[b].Item, hits[a].Item) })
	case SortPriceLow:
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].Item.Price.LessThan(hits[b].Item.Price) })
	case SortPriceHigh:
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].Item.Price.GreaterThan(hits[b].Item.Price) })
	}
}
