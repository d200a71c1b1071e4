package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/events"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockIndex is a mock implementation of Indexer and StaleIndex
type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) RefreshStale(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockIndex) Remove(ctx context.Context, itemID uuid.UUID) error {
	args := m.Called(ctx, itemID)
	return args.Error(0)
}

func (m *MockIndex) CountStale(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func seedSearchCache(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, cache.SearchPrefix+"abc", []byte("cached"), time.Minute))
	require.NoError(t, c.Set(ctx, "other:key", []byte("kept"), time.Minute))
}

func assertSearchInvalidated(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	exists, err := c.Exists(ctx, cache.SearchPrefix+"abc")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = c.Exists(ctx, "other:key")
	require.NoError(t, err)
	assert.True(t, exists)
}

func payload(t *testing.T, event interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

func TestHandleEvent_ItemCreatedInvalidatesAndRefreshes(t *testing.T) {
	c := cache.NewInMemoryCache(zap.NewNop())
	seedSearchCache(t, c)
	index := new(MockIndex)
	index.On("RefreshStale", mock.Anything, 8).Return(1, nil)
	handler := NewEventHandler(c, index, 8, zap.NewNop())

	err := handler.HandleEvent(context.Background(), events.TypeItemCreated,
		payload(t, events.ItemCreatedEvent{ItemID: uuid.New(), Title: "Desk"}))
	require.NoError(t, err)

	assertSearchInvalidated(t, c)
	index.AssertExpectations(t)
}

func TestHandleEvent_ItemUpdatedWithoutTextChangeSkipsRefresh(t *testing.T) {
	c := cache.NewInMemoryCache(zap.NewNop())
	seedSearchCache(t, c)
	index := new(MockIndex)
	handler := NewEventHandler(c, index, 8, zap.NewNop())

	err := handler.HandleEvent(context.Background(), events.TypeItemUpdated,
		payload(t, events.ItemUpdatedEvent{ItemID: uuid.New(), TextChanged: false}))
	require.NoError(t, err)

	assertSearchInvalidated(t, c)
	index.AssertNotCalled(t, "RefreshStale", mock.Anything, mock.Anything)
}

func TestHandleEvent_RefreshFailureIsNotAnError(t *testing.T) {
	c := cache.NewInMemoryCache(zap.NewNop())
	index := new(MockIndex)
	index.On("RefreshStale", mock.Anything, 8).Return(0, errors.New("backend down"))
	handler := NewEventHandler(c, index, 8, zap.NewNop())

	err := handler.HandleEvent(context.Background(), events.TypeItemUpdated,
		payload(t, events.ItemUpdatedEvent{ItemID: uuid.New(), TextChanged: true}))
	assert.NoError(t, err)
	index.AssertExpectations(t)
}

func TestHandleEvent_ItemDeletedRemovesVector(t *testing.T) {
	c := cache.NewInMemoryCache(zap.NewNop())
	index := new(MockIndex)
	itemID := uuid.New()
	index.On("Remove", mock.Anything, itemID).Return(nil)
	handler := NewEventHandler(c, index, 8, zap.NewNop())

	err := handler.HandleEvent(context.Background(), events.TypeItemDeleted,
		payload(t, events.ItemDeletedEvent{ItemID: itemID}))
	require.NoError(t, err)
	index.AssertExpectations(t)

	err = handler.HandleEvent(context.Background(), events.TypeItemDeleted, []byte("{not json"))
	assert.Error(t, err)
}

func TestHandleEvent_OrderEventsInvalidateSearch(t *testing.T) {
	for _, eventType := range []string{events.TypeOrderPlaced, events.TypeOrderApproved, events.TypeOrderCancelled, events.TypeOrderCompleted} {
		t.Run(eventType, func(t *testing.T) {
			c := cache.NewInMemoryCache(zap.NewNop())
			seedSearchCache(t, c)
			handler := NewEventHandler(c, new(MockIndex), 8, zap.NewNop())

			require.NoError(t, handler.HandleEvent(context.Background(), eventType, []byte("{}")))
			assertSearchInvalidated(t, c)
		})
	}
}

func TestHandleEvent_UnknownType(t *testing.T) {
	handler := NewEventHandler(cache.NewInMemoryCache(zap.NewNop()), new(MockIndex), 8, zap.NewNop())
	err := handler.HandleEvent(context.Background(), "Bogus", nil)
	assert.Error(t, err)
}

func TestExtractEventType(t *testing.T) {
	headers := []*sarama.RecordHeader{
		{Key: []byte("event-id"), Value: []byte("1")},
		{Key: []byte("Event-Type"), Value: []byte(events.TypeMessageSent)},
	}
	assert.Equal(t, events.TypeMessageSent, extractEventType(headers))
	assert.Equal(t, "", extractEventType(nil))
}

func TestSweeper_Sweep(t *testing.T) {
	index := new(MockIndex)
	index.On("RefreshStale", mock.Anything, 4).Return(3, nil)
	index.On("CountStale", mock.Anything).Return(2, nil)
	sweeper := NewSweeper(index, time.Hour, 4, zap.NewNop())

	assert.Equal(t, 3, sweeper.Sweep(context.Background()))
	index.AssertExpectations(t)
}

type countingIndex struct {
	sweeps atomic.Int32
}

func (c *countingIndex) RefreshStale(ctx context.Context, limit int) (int, error) {
	c.sweeps.Add(1)
	return 0, nil
}

func (c *countingIndex) CountStale(ctx context.Context) (int, error) {
	return 0, nil
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	index := &countingIndex{}
	sweeper := NewSweeper(index, 0, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return index.sweeps.Load() > 0
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
