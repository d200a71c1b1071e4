package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"campus-marketplace/internal/config"
	"campus-marketplace/internal/repository"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEmbeddings is a mock implementation of repository.EmbeddingRepository
type MockEmbeddings struct {
	mock.Mock
}

func (m *MockEmbeddings) MarkStale(ctx context.Context, itemID uuid.UUID) error {
	return m.Called(ctx, itemID).Error(0)
}

func (m *MockEmbeddings) Save(ctx context.Context, itemID uuid.UUID, text string, vector []float32, modelVersion string) (bool, error) {
	args := m.Called(ctx, itemID, text, vector, modelVersion)
	return args.Bool(0), args.Error(1)
}

func (m *MockEmbeddings) Delete(ctx context.Context, itemID uuid.UUID) error {
	return m.Called(ctx, itemID).Error(0)
}

func (m *MockEmbeddings) Fresh(ctx context.Context, itemIDs []uuid.UUID, modelVersion string) (map[uuid.UUID][]float32, error) {
	args := m.Called(ctx, itemIDs, modelVersion)
	return args.Get(0).(map[uuid.UUID][]float32), args.Error(1)
}

func (m *MockEmbeddings) ListStale(ctx context.Context, modelVersion string, limit int) ([]repository.StaleEmbedding, error) {
	args := m.Called(ctx, modelVersion, limit)
	return args.Get(0).([]repository.StaleEmbedding), args.Error(1)
}

func (m *MockEmbeddings) CountStale(ctx context.Context, modelVersion string) (int, error) {
	args := m.Called(ctx, modelVersion)
	return args.Int(0), args.Error(1)
}

// flakyEmbedder fails while down is set
type flakyEmbedder struct {
	down  atomic.Bool
	calls atomic.Int32
	inner *HashingEmbedder
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return nil, errors.New("connection refused")
	}
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) Dimensions() int      { return f.inner.Dimensions() }
func (f *flakyEmbedder) ModelVersion() string { return f.inner.ModelVersion() }

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(128)
	a, err := e.Embed(context.Background(), "Calculus textbook, 8th edition")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Calculus textbook, 8th edition")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-6)
	assert.Equal(t, "hashing-v1-128", e.ModelVersion())
}

func TestHashingEmbedder_RelatedTextIsCloser(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()
	query, _ := e.Embed(ctx, "bike")
	related, _ := e.Embed(ctx, "Mountain bikes for sale")
	unrelated, _ := e.Embed(ctx, "Chemistry lab goggles")

	assert.Greater(t, Cosine(query, related), Cosine(query, unrelated))
}

func TestHashingEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewHashingEmbedder(32)
	vec, err := e.Embed(context.Background(), "  --  ")
	require.NoError(t, err)
	assert.Equal(t, 0.0, Cosine(vec, vec))
}

func TestCosine_EdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 3}), 1e-9)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"mini", "fridge", "2", "door"}, Tokenize("Mini-Fridge (2 door)"))
}

func TestHTTPEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"desk lamp"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[3,4],"index":0}],"model":"test-model"}`))
	}))
	defer server.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: server.URL, APIKey: "secret", Model: "test-model", Dimensions: 2})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "desk lamp")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
	assert.Equal(t, "test-model-2", e.ModelVersion())
}

func TestHTTPEmbedder_RejectsWrongDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2,3],"index":0}]}`))
	}))
	defer server.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: server.URL, APIKey: "k", Model: "m", Dimensions: 2})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewHTTPEmbedder_Validation(t *testing.T) {
	_, err := NewHTTPEmbedder(HTTPConfig{Model: "m", Dimensions: 2})
	assert.Error(t, err)
	_, err = NewHTTPEmbedder(HTTPConfig{APIKey: "k", Dimensions: 2})
	assert.Error(t, err)
}

func TestResilientEmbedder_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,0],"index":0}]}`))
	}))
	defer server.Close()

	base, err := NewHTTPEmbedder(HTTPConfig{Endpoint: server.URL, APIKey: "k", Model: "m", Dimensions: 2})
	require.NoError(t, err)
	e := NewResilientEmbedder(base, ResilienceConfig{MaxRetries: 3, InitialInterval: time.Millisecond}, zap.NewNop())

	vec, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, int32(2), hits.Load())
}

func TestResilientEmbedder_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	base, err := NewHTTPEmbedder(HTTPConfig{Endpoint: server.URL, APIKey: "k", Model: "m", Dimensions: 2})
	require.NoError(t, err)
	e := NewResilientEmbedder(base, ResilienceConfig{MaxRetries: 3, InitialInterval: time.Millisecond}, zap.NewNop())

	_, err = e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, apperrors.ErrDependencyUnavailable)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResilientEmbedder_BreakerOpens(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewHashingEmbedder(16)}
	flaky.down.Store(true)
	e := NewResilientEmbedder(flaky, ResilienceConfig{
		MaxRetries:       0,
		InitialInterval:  time.Millisecond,
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := e.Embed(context.Background(), "x")
		assert.Error(t, err)
	}
	callsBefore := flaky.calls.Load()

	_, err := e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, apperrors.ErrDependencyUnavailable)
	assert.Equal(t, callsBefore, flaky.calls.Load(), "open breaker must not call the backend")
}

func TestCachedEmbedder_Memoizes(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewHashingEmbedder(16)}
	e, err := NewCachedEmbedder(flaky, 8)
	require.NoError(t, err)

	first, err := e.Embed(context.Background(), "lamp")
	require.NoError(t, err)
	flaky.down.Store(true)
	second, err := e.Embed(context.Background(), "lamp")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{EmbeddingProvider: "hashing", EmbeddingDimensions: 64, EmbeddingCacheSize: 4}
	e, err := NewFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimensions())

	cfg.EmbeddingProvider = "word2vec"
	_, err = NewFromConfig(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestIndex_UpsertSavesAndRefreshesStale(t *testing.T) {
	repo := new(MockEmbeddings)
	embedder := NewHashingEmbedder(16)
	ix := NewIndex(repo, embedder, 4, zap.NewNop())
	ctx := context.Background()
	itemID := uuid.New()
	staleID := uuid.New()

	repo.On("Save", ctx, itemID, "desk lamp", mock.Anything, embedder.ModelVersion()).Return(true, nil)
	repo.On("ListStale", ctx, embedder.ModelVersion(), 4).
		Return([]repository.StaleEmbedding{{ItemID: staleID, Text: "old lamp"}}, nil)
	repo.On("Save", ctx, staleID, "old lamp", mock.Anything, embedder.ModelVersion()).Return(true, nil)

	require.NoError(t, ix.Upsert(ctx, itemID, "desk lamp"))
	repo.AssertExpectations(t)
}

func TestIndex_UpsertLeavesItemStaleWhenBackendDown(t *testing.T) {
	repo := new(MockEmbeddings)
	flaky := &flakyEmbedder{inner: NewHashingEmbedder(16)}
	flaky.down.Store(true)
	ix := NewIndex(repo, flaky, 4, zap.NewNop())
	ctx := context.Background()
	itemID := uuid.New()

	repo.On("MarkStale", ctx, itemID).Return(nil)

	err := ix.Upsert(ctx, itemID, "desk lamp")
	assert.ErrorIs(t, err, apperrors.ErrDependencyUnavailable)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIndex_RefreshStaleStopsOnFailure(t *testing.T) {
	repo := new(MockEmbeddings)
	flaky := &flakyEmbedder{inner: NewHashingEmbedder(16)}
	flaky.down.Store(true)
	ix := NewIndex(repo, flaky, 0, zap.NewNop())
	ctx := context.Background()

	repo.On("ListStale", ctx, flaky.ModelVersion(), 10).Return([]repository.StaleEmbedding{
		{ItemID: uuid.New(), Text: "a"},
		{ItemID: uuid.New(), Text: "b"},
	}, nil)

	n, err := ix.RefreshStale(ctx, 10)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, apperrors.ErrDependencyUnavailable)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestIndex_RefreshStaleSkipsSupersededRows(t *testing.T) {
	repo := new(MockEmbeddings)
	embedder := NewHashingEmbedder(16)
	ix := NewIndex(repo, embedder, 0, zap.NewNop())
	ctx := context.Background()
	editedID := uuid.New()
	staleID := uuid.New()

	repo.On("ListStale", ctx, embedder.ModelVersion(), 10).Return([]repository.StaleEmbedding{
		{ItemID: editedID, Text: "retitled since listing"},
		{ItemID: staleID, Text: "desk lamp"},
	}, nil)
	repo.On("Save", ctx, editedID, "retitled since listing", mock.Anything, embedder.ModelVersion()).Return(false, nil)
	repo.On("Save", ctx, staleID, "desk lamp", mock.Anything, embedder.ModelVersion()).Return(true, nil)

	n, err := ix.RefreshStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	repo.AssertExpectations(t)
}
