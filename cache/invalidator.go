package cache

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/capsight/go-valuation/core"
)

const derivedCacheKeyPrefix = "go-valuation::derived::v1"

// ScopeKey returns the deterministic cache key contract for derived-data
// reads: go-valuation::derived::v1::<scope> with the scope URL-path escaped
// after normalization.
func ScopeKey(scope string) string {
	return derivedCacheKeyPrefix + "::" + url.PathEscape(normalizeScope(scope))
}

// FundamentalsScope names the derived cache scope for one market's
// fundamentals reads.
func FundamentalsScope(market string) string {
	return "fundamentals::" + normalizeScope(market)
}

func CompsScope(market string) string {
	return "comps::" + normalizeScope(market)
}

func MacroScope() string {
	return "macro::global"
}

// ValuationsScope names the derived cache scope for persisted valuation
// snapshots in one market.
func ValuationsScope(market string) string {
	return "valuations::" + normalizeScope(market)
}

type Option func(*Invalidator)

func WithLogger(logger core.Logger) Option {
	return func(i *Invalidator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func WithMetrics(recorder core.MetricsRecorder) Option {
	return func(i *Invalidator) {
		if recorder != nil {
			i.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Invalidator) {
		if now != nil {
			i.now = now
		}
	}
}

// Invalidator marks derived-data scopes stale after market writes. Failures
// are logged and counted, never returned; a stale entry expires through its
// TTL either way.
type Invalidator struct {
	cache   repositorycache.CacheService
	logger  core.Logger
	metrics core.MetricsRecorder
	now     func() time.Time

	mu     sync.Mutex
	scopes map[string]time.Time
}

func NewInvalidator(cacheService repositorycache.CacheService, opts ...Option) (*Invalidator, error) {
	if cacheService == nil {
		return nil, fmt.Errorf("cache: cache service is required")
	}
	invalidator := &Invalidator{
		cache:   cacheService,
		metrics: core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
		scopes: map[string]time.Time{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(invalidator)
		}
	}
	return invalidator, nil
}

// Invalidate drops the cached entry for one scope.
func (i *Invalidator) Invalidate(ctx context.Context, scope string) {
	if i == nil || i.cache == nil {
		return
	}
	scope = normalizeScope(scope)
	if scope == "" {
		return
	}
	i.invalidateScope(ctx, scope)
}

// InvalidatePrefix drops every scope previously registered or invalidated
// whose name starts with prefix, plus the prefix scope itself.
func (i *Invalidator) InvalidatePrefix(ctx context.Context, prefix string) {
	if i == nil || i.cache == nil {
		return
	}
	prefix = normalizeScope(prefix)
	if prefix == "" {
		return
	}

	matched := map[string]struct{}{prefix: {}}
	i.mu.Lock()
	for scope := range i.scopes {
		if strings.HasPrefix(scope, prefix) {
			matched[scope] = struct{}{}
		}
	}
	i.mu.Unlock()

	for scope := range matched {
		i.invalidateScope(ctx, scope)
	}
}

// RegisterScope records a scope so prefix invalidation can reach entries
// that were populated by readers rather than by a prior invalidation.
func (i *Invalidator) RegisterScope(scope string) {
	if i == nil {
		return
	}
	scope = normalizeScope(scope)
	if scope == "" {
		return
	}
	i.mu.Lock()
	if _, known := i.scopes[scope]; !known {
		i.scopes[scope] = time.Time{}
	}
	i.mu.Unlock()
}

// LastInvalidated reports when a scope was last successfully invalidated.
func (i *Invalidator) LastInvalidated(scope string) (time.Time, bool) {
	if i == nil {
		return time.Time{}, false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	at, ok := i.scopes[normalizeScope(scope)]
	if !ok || at.IsZero() {
		return time.Time{}, false
	}
	return at, true
}

func (i *Invalidator) invalidateScope(ctx context.Context, scope string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := i.cache.Delete(ctx, ScopeKey(scope)); err != nil {
		core.LogError(ctx, i.logger, "cache invalidation failed", map[string]any{
			"scope": scope,
			"error": err.Error(),
		})
		core.RecordCounter(ctx, i.metrics, "cache.invalidate_failed", 1, map[string]string{"scope": scope})
		return
	}
	at := i.now()
	i.mu.Lock()
	i.scopes[scope] = at
	i.mu.Unlock()
	core.RecordCounter(ctx, i.metrics, "cache.invalidated", 1, map[string]string{"scope": scope})
}

func normalizeScope(scope string) string {
	return strings.TrimSpace(strings.ToLower(scope))
}

var _ core.CacheInvalidator = (*Invalidator)(nil)
