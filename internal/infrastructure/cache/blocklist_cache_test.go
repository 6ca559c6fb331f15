package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stayloop/stayloop-backend/internal/domain/security"
)

type mockBlockStore struct {
	mock.Mock
}

func (m *mockBlockStore) UpsertBlockedIP(ctx context.Context, block security.BlockedIP) error {
	args := m.Called(ctx, block)
	return args.Error(0)
}

func (m *mockBlockStore) GetBlockedIP(ctx context.Context, ip string) (*security.BlockedIP, error) {
	args := m.Called(ctx, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*security.BlockedIP), args.Error(1)
}

func TestBlocklistCache_ReadThrough(t *testing.T) {
	redis, _ := setupTestRedis(t)
	ctx := context.Background()

	row := &security.BlockedIP{
		IPAddress: "10.0.0.1",
		Reason:    "threat pattern FAILED_LOGIN: 5 events in 15m0s",
		ExpiresAt: time.Now().Add(15 * time.Minute).UTC(),
		CreatedAt: time.Now().UTC(),
	}

	store := new(mockBlockStore)
	store.On("GetBlockedIP", mock.Anything, "10.0.0.1").Return(row, nil).Once()

	bc := NewBlocklistCache(store, redis, zap.NewNop())

	// First read hits the store, second is served from cache
	for i := 0; i < 2; i++ {
		got, err := bc.GetBlockedIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, row.IPAddress, got.IPAddress)
	}

	store.AssertNumberOfCalls(t, "GetBlockedIP", 1)
}

func TestBlocklistCache_CachesMisses(t *testing.T) {
	redis, mr := setupTestRedis(t)
	ctx := context.Background()

	store := new(mockBlockStore)
	store.On("GetBlockedIP", mock.Anything, "10.0.0.2").Return(nil, nil)

	bc := NewBlocklistCache(store, redis, zap.NewNop())

	for i := 0; i < 3; i++ {
		got, err := bc.GetBlockedIP(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	store.AssertNumberOfCalls(t, "GetBlockedIP", 1)

	// The miss entry expires faster than a hit entry
	mr.FastForward(11 * time.Second)

	_, err := bc.GetBlockedIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "GetBlockedIP", 2)
}

func TestBlocklistCache_UpsertWritesThrough(t *testing.T) {
	redis, _ := setupTestRedis(t)
	ctx := context.Background()

	store := new(mockBlockStore)
	store.On("GetBlockedIP", mock.Anything, "10.0.0.3").Return(nil, nil).Once()
	store.On("UpsertBlockedIP", mock.Anything, mock.Anything).Return(nil)

	bc := NewBlocklistCache(store, redis, zap.NewNop())

	// Prime a cached miss
	got, err := bc.GetBlockedIP(ctx, "10.0.0.3")
	require.NoError(t, err)
	require.Nil(t, got)

	block := security.BlockedIP{
		IPAddress: "10.0.0.3",
		Reason:    "test",
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, bc.UpsertBlockedIP(ctx, block))

	// The new block is visible immediately despite the cached miss, and
	// without another store read
	got, err = bc.GetBlockedIP(ctx, "10.0.0.3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10.0.0.3", got.IPAddress)
	store.AssertNumberOfCalls(t, "GetBlockedIP", 1)
}

func TestBlocklistCache_StoreErrorPropagates(t *testing.T) {
	redis, _ := setupTestRedis(t)

	store := new(mockBlockStore)
	store.On("GetBlockedIP", mock.Anything, "10.0.0.4").Return(nil, assert.AnError)

	bc := NewBlocklistCache(store, redis, zap.NewNop())

	_, err := bc.GetBlockedIP(context.Background(), "10.0.0.4")
	assert.Error(t, err)
}
