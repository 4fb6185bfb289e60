package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/capsight/go-valuation/core"
)

const (
	baselineTreasuryPct = 4.0
	capRateDriftFactor  = 0.1
	minCapRatePct       = 2.0
	maxCapRatePct       = 20.0
)

// appraisal is the full derived output for one property: income approach
// estimate, twelve-month forecast, and the drivers behind both.
type appraisal struct {
	NOI           float64
	CurrentValue  float64
	ForecastValue float64
	Drivers       []core.ValueDriver
}

// appraise values a property with the direct capitalization income
// approach: NOI over cap rate, with the forecast applying one year of
// rent growth and a treasury-linked cap-rate drift.
func appraise(property core.Property, fundamentals core.MarketFundamentals, macro core.MacroIndicators) (appraisal, error) {
	if property.SquareFeet <= 0 {
		return appraisal{}, fmt.Errorf("pipeline: property %s has invalid square footage", property.ID)
	}
	if fundamentals.CapRatePct <= 0 {
		return appraisal{}, fmt.Errorf("pipeline: market %s has invalid cap rate", property.Market)
	}
	if fundamentals.AvgRentPSF <= 0 {
		return appraisal{}, fmt.Errorf("pipeline: market %s has invalid rent", property.Market)
	}

	grossIncome := fundamentals.AvgRentPSF * property.SquareFeet
	effectiveIncome := grossIncome * (1 - fundamentals.VacancyRatePct/100)
	noi := effectiveIncome * (1 - fundamentals.ExpenseRatioPct/100)
	currentValue := noi / (fundamentals.CapRatePct / 100)

	forecastNOI := noi * (1 + fundamentals.RentGrowthPct/100)
	forecastCapRate := clamp(
		fundamentals.CapRatePct+(macro.TenYearTreasuryPct-baselineTreasuryPct)*capRateDriftFactor,
		minCapRatePct,
		maxCapRatePct,
	)
	forecastValue := forecastNOI / (forecastCapRate / 100)

	return appraisal{
		NOI:           round2(noi),
		CurrentValue:  round2(currentValue),
		ForecastValue: round2(forecastValue),
		Drivers: []core.ValueDriver{
			{Name: "market_rent_psf", Impact: fundamentals.AvgRentPSF},
			{Name: "vacancy_rate_pct", Impact: -fundamentals.VacancyRatePct},
			{Name: "cap_rate_pct", Impact: -fundamentals.CapRatePct},
			{Name: "rent_growth_pct", Impact: fundamentals.RentGrowthPct},
		},
	}, nil
}

// score grades data quality behind a valuation on a 0-100 scale from
// three signals: fundamentals freshness, comparable-sale density, and the
// cap-rate spread over the ten-year treasury.
func score(fundamentals core.MarketFundamentals, compCount int, macro core.MacroIndicators, now time.Time) float64 {
	freshness := 0.0
	if !fundamentals.AsOf.IsZero() {
		ageDays := now.Sub(fundamentals.AsOf).Hours() / 24
		freshness = clamp(1-ageDays/90, 0, 1)
	}
	density := clamp(float64(compCount)/20, 0, 1)
	spread := clamp((fundamentals.CapRatePct-macro.TenYearTreasuryPct)/4, 0, 1)

	return round2(100 * (0.4*freshness + 0.35*density + 0.25*spread))
}

func clamp(value float64, low float64, high float64) float64 {
	return math.Min(math.Max(value, low), high)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
