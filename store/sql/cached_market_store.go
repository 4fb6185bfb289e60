package sqlstore

import (
	"context"
	"fmt"

	"github.com/capsight/go-valuation/cache"
	"github.com/capsight/go-valuation/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// CachedMarketDataStore fronts the SQL market data store with the derived
// data cache. Reads go through GetOrFetch keyed by scope; writes land in
// SQL first and then drop the matching scope so the next read refills.
type CachedMarketDataStore struct {
	base  core.MarketDataStore
	cache repositorycache.CacheService
}

func NewCachedMarketDataStore(
	base core.MarketDataStore,
	cacheService repositorycache.CacheService,
) (*CachedMarketDataStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base market data store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: market data cache service is required")
	}
	return &CachedMarketDataStore{base: base, cache: cacheService}, nil
}

func (s *CachedMarketDataStore) UpsertFundamentals(ctx context.Context, fundamentals core.MarketFundamentals) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached market data store is not configured")
	}
	if err := s.base.UpsertFundamentals(ctx, fundamentals); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cache.ScopeKey(cache.FundamentalsScope(fundamentals.Market)))
}

func (s *CachedMarketDataStore) InsertComps(ctx context.Context, comps []core.CompSale) (int, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached market data store is not configured")
	}
	count, err := s.base.InsertComps(ctx, comps)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(comps))
	for _, comp := range comps {
		if _, exists := seen[comp.Market]; exists {
			continue
		}
		seen[comp.Market] = struct{}{}
		if deleteErr := s.cache.Delete(ctx, cache.ScopeKey(cache.CompsScope(comp.Market))); deleteErr != nil {
			return count, deleteErr
		}
	}
	return count, nil
}

func (s *CachedMarketDataStore) UpsertMacro(ctx context.Context, macro core.MacroIndicators) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached market data store is not configured")
	}
	if err := s.base.UpsertMacro(ctx, macro); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cache.ScopeKey(cache.MacroScope()))
}

func (s *CachedMarketDataStore) GetFundamentals(ctx context.Context, market string) (core.MarketFundamentals, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.MarketFundamentals{}, fmt.Errorf("sqlstore: cached market data store is not configured")
	}
	cacheKey := cache.ScopeKey(cache.FundamentalsScope(market))
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.MarketFundamentals, error) {
		return s.base.GetFundamentals(ctx, market)
	})
}

func (s *CachedMarketDataStore) GetMacro(ctx context.Context) (core.MacroIndicators, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.MacroIndicators{}, fmt.Errorf("sqlstore: cached market data store is not configured")
	}
	cacheKey := cache.ScopeKey(cache.MacroScope())
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.MacroIndicators, error) {
		return s.base.GetMacro(ctx)
	})
}

func (s *CachedMarketDataStore) CountComps(ctx context.Context, market string) (int, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached market data store is not configured")
	}
	cacheKey := cache.ScopeKey(cache.CompsScope(market))
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (int, error) {
		return s.base.CountComps(ctx, market)
	})
}

var _ core.MarketDataStore = (*CachedMarketDataStore)(nil)
