package cleaner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

type mockTrashStore struct {
	mock.Mock
}

func (m *mockTrashStore) List(ctx context.Context, prefix string, recursive bool) ([]storage.ObjectInfo, error) {
	args := m.Called(ctx, prefix, recursive)
	return args.Get(0).([]storage.ObjectInfo), args.Error(1)
}

func (m *mockTrashStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// --- Tests ---

func TestPurgeWorker_RunOnce_HappyPath(t *testing.T) {
	mockStore := new(mockTrashStore)
	ctx := context.Background()

	retention := 30 * 24 * time.Hour
	worker := New(mockStore, time.Hour, retention)

	now := time.Now()
	entries := []storage.ObjectInfo{
		{Key: ".trash/docs/old.txt", Size: 10, ModifiedAt: now.Add(-retention - time.Hour)},
		{Key: ".trash/older.bin", Size: 20, ModifiedAt: now.Add(-2 * retention)},
		{Key: ".trash/docs/fresh.txt", Size: 30, ModifiedAt: now.Add(-time.Hour)},
	}

	mockStore.On("List", ctx, consts.TrashPrefix, true).Return(entries, nil).Once()
	mockStore.On("Delete", ctx, ".trash/docs/old.txt").Return(nil).Once()
	mockStore.On("Delete", ctx, ".trash/older.bin").Return(nil).Once()

	purged, err := worker.RunOnce(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 2, purged)
	mockStore.AssertExpectations(t)
	mockStore.AssertNotCalled(t, "Delete", ctx, ".trash/docs/fresh.txt")
}

func TestPurgeWorker_RunOnce_ListFails(t *testing.T) {
	mockStore := new(mockTrashStore)
	ctx := context.Background()
	worker := New(mockStore, time.Hour, 30*24*time.Hour)

	listErr := errors.New("bucket unreachable")
	mockStore.On("List", ctx, consts.TrashPrefix, true).Return([]storage.ObjectInfo{}, listErr).Once()

	purged, err := worker.RunOnce(ctx)

	assert.Error(t, err)
	assert.ErrorIs(t, err, listErr)
	assert.Equal(t, 0, purged)
	mockStore.AssertExpectations(t)
}

func TestPurgeWorker_RunOnce_DeleteFailureIsSkipped(t *testing.T) {
	mockStore := new(mockTrashStore)
	ctx := context.Background()

	retention := time.Hour
	worker := New(mockStore, time.Hour, retention)

	old := time.Now().Add(-2 * retention)
	entries := []storage.ObjectInfo{
		{Key: ".trash/a.txt", ModifiedAt: old},
		{Key: ".trash/b.txt", ModifiedAt: old},
		{Key: ".trash/c.txt", ModifiedAt: old},
	}

	mockStore.On("List", ctx, consts.TrashPrefix, true).Return(entries, nil).Once()
	mockStore.On("Delete", ctx, ".trash/a.txt").Return(nil).Once()
	mockStore.On("Delete", ctx, ".trash/b.txt").Return(errors.New("delete refused")).Once()
	mockStore.On("Delete", ctx, ".trash/c.txt").Return(nil).Once()

	purged, err := worker.RunOnce(ctx)

	// A stuck entry is skipped, not fatal; it is retried next pass.
	assert.NoError(t, err)
	assert.Equal(t, 2, purged)
	mockStore.AssertExpectations(t)
}

func TestPurgeWorker_RunOnce_EmptyTrash(t *testing.T) {
	mockStore := new(mockTrashStore)
	ctx := context.Background()
	worker := New(mockStore, time.Hour, 30*24*time.Hour)

	mockStore.On("List", ctx, consts.TrashPrefix, true).Return([]storage.ObjectInfo{}, nil).Once()

	purged, err := worker.RunOnce(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 0, purged)
	mockStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestPurgeWorker_RunOnce_CancelledContext(t *testing.T) {
	mockStore := new(mockTrashStore)

	retention := time.Hour
	worker := New(mockStore, time.Hour, retention)

	ctx, cancel := context.WithCancel(context.Background())

	old := time.Now().Add(-2 * retention)
	entries := []storage.ObjectInfo{
		{Key: ".trash/a.txt", ModifiedAt: old},
	}

	mockStore.On("List", ctx, consts.TrashPrefix, true).Run(func(args mock.Arguments) {
		cancel()
	}).Return(entries, nil).Once()

	purged, err := worker.RunOnce(ctx)

	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, purged)
	mockStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestPurgeWorker_StartAndStop(t *testing.T) {
	mockStore := new(mockTrashStore)
	worker := New(mockStore, time.Hour, time.Hour)

	ctx := context.Background()
	worker.Start(ctx)

	// The first tick is an hour away, so stopping immediately must not
	// touch the store at all.
	worker.Stop()
	time.Sleep(50 * time.Millisecond)

	mockStore.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}
