package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

func newTestProjection(t *testing.T) (*AveragesProjection, *miniredis.Miniredis) {
	t.Helper()

	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	projection := NewAveragesProjection(NewCacheFromClient(client, ""))
	projection.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return projection, m
}

func TestAveragesProjection_Project(t *testing.T) {
	projection, m := newTestProjection(t)
	ctx := context.Background()

	err := projection.Project(ctx, []gradebook.AverageEntry{
		{StudentID: "Alice", Average: 90},
		{StudentID: "Bob", Average: 85},
		{StudentID: "Empty", Average: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, "90", m.HGet("gradebook:averages", "Alice"))
	assert.Equal(t, "85", m.HGet("gradebook:averages", "Bob"))
	assert.Equal(t, "0", m.HGet("gradebook:averages", "Empty"))
	assert.Equal(t, "3", m.HGet("gradebook:meta", "total_students"))
	assert.Equal(t, "2024-05-01T12:00:00Z", m.HGet("gradebook:meta", "projected_at"))

	score, err := m.ZScore("gradebook:ranking", "Bob")
	require.NoError(t, err)
	assert.Equal(t, 85.0, score)

	avg, found, err := projection.ProjectedAverage(ctx, "Alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 90.0, avg)
}

func TestAveragesProjection_ReplacesPreviousView(t *testing.T) {
	projection, m := newTestProjection(t)
	ctx := context.Background()

	require.NoError(t, projection.Project(ctx, []gradebook.AverageEntry{
		{StudentID: "Alice", Average: 90},
		{StudentID: "Gone", Average: 10},
	}))
	require.NoError(t, projection.Project(ctx, []gradebook.AverageEntry{
		{StudentID: "Alice", Average: 92.5},
	}))

	assert.Equal(t, "92.5", m.HGet("gradebook:averages", "Alice"))
	assert.Empty(t, m.HGet("gradebook:averages", "Gone"))

	_, found, err := projection.ProjectedAverage(ctx, "Gone")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, projection.Project(ctx, nil))
	assert.False(t, m.Exists("gradebook:averages"))
	assert.False(t, m.Exists("gradebook:ranking"))
	assert.Equal(t, "0", m.HGet("gradebook:meta", "total_students"))
}

func TestAveragesProjection_TopByAverage(t *testing.T) {
	projection, _ := newTestProjection(t)
	ctx := context.Background()

	require.NoError(t, projection.Project(ctx, []gradebook.AverageEntry{
		{StudentID: "Alice", Average: 90},
		{StudentID: "Bob", Average: 85},
		{StudentID: "Carol", Average: 97.5},
	}))

	top, err := projection.TopByAverage(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, RankedAverage{Rank: 1, StudentID: "Carol", Average: 97.5}, top[0])
	assert.Equal(t, RankedAverage{Rank: 2, StudentID: "Alice", Average: 90}, top[1])

	all, err := projection.TopByAverage(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := projection.TopByAverage(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAveragesProjection_UnavailableIsRetryable(t *testing.T) {
	projection, m := newTestProjection(t)
	m.Close()

	err := projection.Project(context.Background(), []gradebook.AverageEntry{{StudentID: "Alice", Average: 1}})
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, "redis", projection.Name())
}

func TestCache_KeyAndPing(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	cache := NewCacheFromClient(client, "test:")
	assert.Equal(t, "test:averages", cache.Key(suffixAverages))
	require.NoError(t, cache.Ping(context.Background()))

	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}

func TestNewCache(t *testing.T) {
	m := miniredis.RunT(t)
	port, err := strconv.Atoi(m.Port())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = m.Host()
	cfg.Port = port
	cfg.KeyPrefix = ""

	cache, err := NewCache(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultKeyPrefix+suffixRanking, cache.Key(suffixRanking))
	require.NoError(t, cache.Close())

	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.MaxRetries = -1
	_, err = NewCache(cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}
