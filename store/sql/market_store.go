package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/capsight/go-valuation/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MarketDataStore persists the ingested market inputs the valuation stages
// read from: per-market fundamentals, comparable sales, and the single
// global macro row.
type MarketDataStore struct {
	db *bun.DB
}

func NewMarketDataStore(db *bun.DB) (*MarketDataStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &MarketDataStore{db: db}, nil
}

func (s *MarketDataStore) UpsertFundamentals(ctx context.Context, fundamentals core.MarketFundamentals) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: market data store is not configured")
	}
	fundamentals.Market = strings.TrimSpace(strings.ToLower(fundamentals.Market))
	if fundamentals.Market == "" {
		return fmt.Errorf("sqlstore: market is required")
	}

	record := newMarketFundamentalsRecord(fundamentals, time.Now().UTC())
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (market) DO UPDATE").
		Set("vacancy_rate_pct = EXCLUDED.vacancy_rate_pct").
		Set("cap_rate_pct = EXCLUDED.cap_rate_pct").
		Set("avg_rent_psf = EXCLUDED.avg_rent_psf").
		Set("rent_growth_pct = EXCLUDED.rent_growth_pct").
		Set("expense_ratio_pct = EXCLUDED.expense_ratio_pct").
		Set("as_of = EXCLUDED.as_of").
		Set("source = EXCLUDED.source").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *MarketDataStore) InsertComps(ctx context.Context, comps []core.CompSale) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: market data store is not configured")
	}
	if len(comps) == 0 {
		return 0, nil
	}
	records := make([]compSaleRecord, 0, len(comps))
	for _, comp := range comps {
		comp.Market = strings.TrimSpace(strings.ToLower(comp.Market))
		if comp.Market == "" {
			return 0, fmt.Errorf("sqlstore: comp market is required")
		}
		if strings.TrimSpace(comp.ID) == "" {
			comp.ID = uuid.NewString()
		}
		records = append(records, *newCompSaleRecord(comp))
	}
	if _, err := s.db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *MarketDataStore) UpsertMacro(ctx context.Context, macro core.MacroIndicators) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: market data store is not configured")
	}
	record := newMacroIndicatorsRecord(macro, time.Now().UTC())
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("ten_year_treasury_pct = EXCLUDED.ten_year_treasury_pct").
		Set("fed_funds_rate_pct = EXCLUDED.fed_funds_rate_pct").
		Set("cpi_yoy_pct = EXCLUDED.cpi_yoy_pct").
		Set("as_of = EXCLUDED.as_of").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *MarketDataStore) GetFundamentals(ctx context.Context, market string) (core.MarketFundamentals, error) {
	if s == nil || s.db == nil {
		return core.MarketFundamentals{}, fmt.Errorf("sqlstore: market data store is not configured")
	}
	market = strings.TrimSpace(strings.ToLower(market))
	record := &marketFundamentalsRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.market = ?", market).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.MarketFundamentals{}, fmt.Errorf("sqlstore: fundamentals for market %q not found", market)
		}
		return core.MarketFundamentals{}, err
	}
	return record.toDomain(), nil
}

func (s *MarketDataStore) GetMacro(ctx context.Context) (core.MacroIndicators, error) {
	if s == nil || s.db == nil {
		return core.MacroIndicators{}, fmt.Errorf("sqlstore: market data store is not configured")
	}
	record := &macroIndicatorsRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", macroIndicatorsRowID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.MacroIndicators{}, fmt.Errorf("sqlstore: macro indicators not found")
		}
		return core.MacroIndicators{}, err
	}
	return record.toDomain(), nil
}

func (s *MarketDataStore) CountComps(ctx context.Context, market string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: market data store is not configured")
	}
	market = strings.TrimSpace(strings.ToLower(market))
	count, err := s.db.NewSelect().
		Model((*compSaleRecord)(nil)).
		Where("?TableAlias.market = ?", market).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListComps returns comparable sales for a market, newest closing first.
func (s *MarketDataStore) ListComps(ctx context.Context, market string, limit int) ([]core.CompSale, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: market data store is not configured")
	}
	market = strings.TrimSpace(strings.ToLower(market))
	if limit <= 0 {
		limit = 100
	}
	var records []compSaleRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.market = ?", market).
		Order("closed_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	comps := make([]core.CompSale, 0, len(records))
	for i := range records {
		comps = append(comps, records[i].toDomain())
	}
	return comps, nil
}
