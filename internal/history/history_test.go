package history_test

import (
	"checkin/backend/internal/history"
	"checkin/backend/internal/models"
	"checkin/backend/internal/storage"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageStore) GetChatHistory(ctx context.Context, room string, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, room, limit)
	msgs, _ := args.Get(0).([]models.ChatMessage)
	return msgs, args.Error(1)
}

func TestBackfill_OrderedAcrossStore(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, store.SaveMessage(ctx, &models.ChatMessage{Room: "general", Author: "alice", Body: body}))
	}
	require.NoError(t, store.SaveMessage(ctx, &models.ChatMessage{Room: "random", Author: "bob", Body: "other"}))

	svc := history.NewService(store)

	msgs, err := svc.Backfill(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "history must be ascending")
	}
	assert.Equal(t, "one", msgs[0].Body)
	assert.Equal(t, "three", msgs[2].Body)

	latest, err := svc.Backfill(ctx, "general", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "two", latest[0].Body)
	assert.Equal(t, "three", latest[1].Body)
}

func TestBackfill_EmptyRoom(t *testing.T) {
	svc := history.NewService(storage.NewMemoryStore())

	msgs, err := svc.Backfill(context.Background(), "quiet", 0)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestBackfill_RoomRequired(t *testing.T) {
	store := new(MockMessageStore)
	svc := history.NewService(store)

	_, err := svc.Backfill(context.Background(), "", 10)
	assert.ErrorIs(t, err, history.ErrRoomRequired)
	store.AssertNotCalled(t, "GetChatHistory", mock.Anything, mock.Anything, mock.Anything)
}

func TestBackfill_StoreFailurePropagates(t *testing.T) {
	store := new(MockMessageStore)
	boom := errors.New("connection refused")
	store.On("GetChatHistory", mock.Anything, "general", 0).Return(nil, boom)

	svc := history.NewService(store)
	msgs, err := svc.Backfill(context.Background(), "general", -5)

	assert.Nil(t, msgs)
	assert.ErrorIs(t, err, boom)
	store.AssertExpectations(t)
}

func TestBackfill_CoalescesConcurrentReads(t *testing.T) {
	store := new(MockMessageStore)
	release := make(chan struct{})
	store.On("GetChatHistory", mock.Anything, "general", 50).
		Run(func(mock.Arguments) { <-release }).
		Return([]models.ChatMessage{{ID: 1, Room: "general", Author: "alice", Body: "hi", CreatedAt: time.Now()}}, nil)

	svc := history.NewService(store)

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]models.ChatMessage, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msgs, err := svc.Backfill(context.Background(), "general", 50)
			assert.NoError(t, err)
			results[i] = msgs
		}(i)
	}

	// Let every caller reach the in-flight read before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	store.AssertNumberOfCalls(t, "GetChatHistory", 1)
	for _, msgs := range results {
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi", msgs[0].Body)
	}

	// Callers get independent copies.
	results[0][0].Body = "changed"
	assert.Equal(t, "hi", results[1][0].Body)
}
