package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AVERAGES PROJECTION
// ══════════════════════════════════════════════════════════════════════════════

// AveragesProjection mirrors the registry's averages into Redis.
//
// Layout:
//   - Hash "<prefix>averages" stores studentID -> average
//   - Sorted Set "<prefix>ranking" stores studentID scored by average
//   - Hash "<prefix>meta" stores projected_at and total_students
//
// Each Project call replaces all three keys inside one MULTI/EXEC, so
// readers never observe a half-written view.
type AveragesProjection struct {
	cache *Cache
	now   func() time.Time
}

// RankedAverage is one entry of the ranking read back for dashboards.
type RankedAverage struct {
	Rank      int64
	StudentID gradebook.StudentID
	Average   float64
}

// NewAveragesProjection creates a new AveragesProjection.
func NewAveragesProjection(cache *Cache) *AveragesProjection {
	return &AveragesProjection{cache: cache, now: time.Now}
}

// Name implements gradebook.ProjectionSink.
func (p *AveragesProjection) Name() string {
	return "redis"
}

// Project implements gradebook.ProjectionSink.
func (p *AveragesProjection) Project(ctx context.Context, entries []gradebook.AverageEntry) error {
	averagesKey := p.cache.Key(suffixAverages)
	rankingKey := p.cache.Key(suffixRanking)
	metaKey := p.cache.Key(suffixMeta)

	pipe := p.cache.Client().TxPipeline()

	// 1. Drop the previous view
	pipe.Del(ctx, averagesKey, rankingKey)

	// 2. Write the new one
	if len(entries) > 0 {
		hashData := make(map[string]interface{}, len(entries))
		zMembers := make([]redis.Z, 0, len(entries))
		for _, e := range entries {
			id := string(e.StudentID)
			hashData[id] = strconv.FormatFloat(e.Average, 'f', -1, 64)
			zMembers = append(zMembers, redis.Z{Score: e.Average, Member: id})
		}
		pipe.HSet(ctx, averagesKey, hashData)
		pipe.ZAdd(ctx, rankingKey, zMembers...)
	}

	// 3. Metadata
	pipe.HSet(ctx, metaKey,
		"projected_at", p.now().UTC().Format(time.RFC3339Nano),
		"total_students", len(entries),
	)

	if _, err := pipe.Exec(ctx); err != nil {
		return classify("Project", err)
	}
	return nil
}

// TopByAverage returns up to n students with the highest projected averages.
// Ties are broken by Redis in reverse lexicographic member order.
func (p *AveragesProjection) TopByAverage(ctx context.Context, n int) ([]RankedAverage, error) {
	if n <= 0 {
		return []RankedAverage{}, nil
	}

	members, err := p.cache.Client().
		ZRevRangeWithScores(ctx, p.cache.Key(suffixRanking), 0, int64(n-1)).
		Result()
	if err != nil {
		return nil, classify("TopByAverage", err)
	}

	out := make([]RankedAverage, 0, len(members))
	for i, m := range members {
		id, _ := m.Member.(string)
		out = append(out, RankedAverage{
			Rank:      int64(i + 1),
			StudentID: gradebook.StudentID(id),
			Average:   m.Score,
		})
	}
	return out, nil
}

// ProjectedAverage reads one student's projected average.
// The second return is false when the student is absent from the projection.
func (p *AveragesProjection) ProjectedAverage(ctx context.Context, id gradebook.StudentID) (float64, bool, error) {
	raw, err := p.cache.Client().HGet(ctx, p.cache.Key(suffixAverages), string(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, classify("ProjectedAverage", err)
	}

	avg, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, shared.WrapError("redis", "ProjectedAverage", shared.ErrInvalidInput,
			"malformed average", err)
	}
	return avg, true, nil
}

// classify maps Redis errors onto the shared error kinds the retry policy understands.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("redis", op, shared.ErrTimeout, "redis operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return shared.WrapError("redis", op, shared.ErrServiceUnavailable, "redis operation failed", err)
}
