package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST AVERAGES QUERY
// Returns every enrolled student's average in ascending order of student id.
// Views are memoized per registry version, so a mutation always misses the cache.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultViewTTL is how long an unchanged averages view stays cached.
	DefaultViewTTL = 5 * time.Minute

	// DefaultViewCleanupInterval is how often expired views are evicted.
	DefaultViewCleanupInterval = 10 * time.Minute
)

// ListAveragesQuery contains parameters for the averages view.
type ListAveragesQuery struct {
	// Limit truncates the view (0 = all entries).
	Limit int
}

// ListAveragesResult contains the sorted averages.
type ListAveragesResult struct {
	Entries    []gradebook.AverageEntry
	TotalCount int
	Version    uint64
	FromCache  bool
}

// ListAveragesHandler handles ListAveragesQuery.
type ListAveragesHandler struct {
	registry *gradebook.Registry
	cache    *gocache.Cache
	viewTTL  time.Duration
	logger   *slog.Logger
}

// ListAveragesConfig configures the handler.
type ListAveragesConfig struct {
	// CacheEnabled turns on the per-version view cache.
	CacheEnabled bool

	// ViewTTL overrides DefaultViewTTL.
	ViewTTL time.Duration

	Logger *slog.Logger
}

// NewListAveragesHandler creates a new ListAveragesHandler.
func NewListAveragesHandler(registry *gradebook.Registry, cfg ListAveragesConfig) *ListAveragesHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ViewTTL <= 0 {
		cfg.ViewTTL = DefaultViewTTL
	}

	h := &ListAveragesHandler{
		registry: registry,
		viewTTL:  cfg.ViewTTL,
		logger:   cfg.Logger,
	}
	if cfg.CacheEnabled {
		h.cache = gocache.New(cfg.ViewTTL, DefaultViewCleanupInterval)
	}
	return h
}

// Handle executes the query.
func (h *ListAveragesHandler) Handle(ctx context.Context, q ListAveragesQuery) (*ListAveragesResult, error) {
	if q.Limit < 0 {
		return nil, fmt.Errorf("list_averages: limit cannot be negative")
	}

	version, entries, fromCache := h.view(ctx)

	total := len(entries)
	if q.Limit > 0 && q.Limit < total {
		entries = entries[:q.Limit]
	}

	// Cached views are shared, callers get their own copy.
	out := make([]gradebook.AverageEntry, len(entries))
	copy(out, entries)

	return &ListAveragesResult{
		Entries:    out,
		TotalCount: total,
		Version:    version,
		FromCache:  fromCache,
	}, nil
}

func (h *ListAveragesHandler) view(ctx context.Context) (uint64, []gradebook.AverageEntry, bool) {
	if h.cache == nil {
		version, entries := h.registry.AveragesSnapshot()
		return version, entries, false
	}

	current := h.registry.Version()
	key := viewKey(current)
	if cached, found := h.cache.Get(key); found {
		if entries, ok := cached.([]gradebook.AverageEntry); ok {
			h.logger.DebugContext(ctx, "averages view cache hit", "key", key)
			return current, entries, true
		}
		h.logger.ErrorContext(ctx, "wrong type in averages view cache", "key", key)
	}

	version, entries := h.registry.AveragesSnapshot()
	h.cache.Set(viewKey(version), entries, h.viewTTL)
	return version, entries, false
}

// Invalidate drops all cached views.
func (h *ListAveragesHandler) Invalidate() {
	if h.cache != nil {
		h.cache.Flush()
	}
}

func viewKey(version uint64) string {
	return fmt.Sprintf("averages:v%d", version)
}
