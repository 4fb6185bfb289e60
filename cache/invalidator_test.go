package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

func TestInvalidator_DropsCachedScope(t *testing.T) {
	cacheService := newTestCacheService(t)
	invalidator, err := NewInvalidator(cacheService)
	if err != nil {
		t.Fatalf("new invalidator: %v", err)
	}

	scope := FundamentalsScope("austin-tx")
	fetches := 0
	fetch := func(context.Context) (string, error) {
		fetches++
		return "derived", nil
	}

	if _, err := repositorycache.GetOrFetch(context.Background(), cacheService, ScopeKey(scope), fetch); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if _, err := repositorycache.GetOrFetch(context.Background(), cacheService, ScopeKey(scope), fetch); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("expected cache hit before invalidation, fetches=%d", fetches)
	}

	invalidator.Invalidate(context.Background(), scope)

	if _, err := repositorycache.GetOrFetch(context.Background(), cacheService, ScopeKey(scope), fetch); err != nil {
		t.Fatalf("read after invalidation: %v", err)
	}
	if fetches != 2 {
		t.Fatalf("expected refetch after invalidation, fetches=%d", fetches)
	}
}

func TestInvalidator_RecordsLastInvalidated(t *testing.T) {
	invalidator, err := NewInvalidator(newTestCacheService(t))
	if err != nil {
		t.Fatalf("new invalidator: %v", err)
	}
	current := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	invalidator.now = func() time.Time { return current }

	scope := MacroScope()
	if _, ok := invalidator.LastInvalidated(scope); ok {
		t.Fatalf("expected no record before invalidation")
	}

	invalidator.Invalidate(context.Background(), scope)
	at, ok := invalidator.LastInvalidated(scope)
	if !ok || !at.Equal(current) {
		t.Fatalf("expected invalidation at %v, got %v ok=%v", current, at, ok)
	}
}

func TestInvalidator_PrefixReachesRegisteredScopes(t *testing.T) {
	cacheService := newTestCacheService(t)
	invalidator, err := NewInvalidator(cacheService)
	if err != nil {
		t.Fatalf("new invalidator: %v", err)
	}

	austin := FundamentalsScope("austin-tx")
	dallas := FundamentalsScope("dallas-tx")
	macro := MacroScope()
	invalidator.RegisterScope(austin)
	invalidator.RegisterScope(dallas)
	invalidator.RegisterScope(macro)

	invalidator.InvalidatePrefix(context.Background(), "fundamentals::")

	if _, ok := invalidator.LastInvalidated(austin); !ok {
		t.Fatalf("expected austin scope invalidated")
	}
	if _, ok := invalidator.LastInvalidated(dallas); !ok {
		t.Fatalf("expected dallas scope invalidated")
	}
	if _, ok := invalidator.LastInvalidated(macro); ok {
		t.Fatalf("expected macro scope untouched by prefix invalidation")
	}
}

func TestInvalidator_IgnoresBlankScope(t *testing.T) {
	invalidator, err := NewInvalidator(newTestCacheService(t))
	if err != nil {
		t.Fatalf("new invalidator: %v", err)
	}

	invalidator.Invalidate(context.Background(), "   ")
	invalidator.InvalidatePrefix(context.Background(), "")
	if _, ok := invalidator.LastInvalidated(""); ok {
		t.Fatalf("expected blank scope to be ignored")
	}
}

func TestScopeKey_EscapesAndNormalizes(t *testing.T) {
	key := ScopeKey("  Fundamentals::Austin TX  ")
	if !strings.HasPrefix(key, "go-valuation::derived::v1::") {
		t.Fatalf("expected versioned prefix, got %q", key)
	}
	if strings.Contains(key, " ") {
		t.Fatalf("expected escaped key, got %q", key)
	}
	if key != ScopeKey("fundamentals::austin tx") {
		t.Fatalf("expected normalization to collapse case and padding")
	}
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
