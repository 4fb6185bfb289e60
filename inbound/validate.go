package inbound

import (
	"fmt"
	"strings"
	"time"

	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/signer"
)

// validateEvent collects every rule violation before rejecting, so one
// response reports the full shape of the problem.
func validateEvent(event core.IngestEvent) []string {
	var problems []string

	if event.EventType == "" {
		problems = append(problems, "event_type: is required")
	} else if !isSupportedEventType(event.EventType) {
		problems = append(problems, fmt.Sprintf(
			"event_type: unsupported %q, expected one of %s",
			event.EventType,
			strings.Join(core.SupportedEventTypes(), ", "),
		))
	}

	if event.EventType == core.EventTypeFundamentalsUpsert || event.EventType == core.EventTypeCompsUpsert {
		if event.Market == "" {
			problems = append(problems, "market: is required")
		}
	}
	if len(event.Payload) == 0 {
		problems = append(problems, "payload: is required")
		return problems
	}

	if checksum := strings.TrimSpace(event.Checksum); checksum != "" {
		if expected, err := signer.IdempotencyKey(event.Payload); err == nil && expected != checksum {
			problems = append(problems, "checksum: does not match payload content")
		}
	}

	switch event.EventType {
	case core.EventTypeFundamentalsUpsert:
		problems = append(problems, validateFundamentalsPayload(event.Payload)...)
	case core.EventTypeCompsUpsert:
		problems = append(problems, validateCompsPayload(event.Payload)...)
	case core.EventTypeMacroUpdate:
		problems = append(problems, validateMacroPayload(event.Payload)...)
	}
	return problems
}

func validateFundamentalsPayload(payload map[string]any) []string {
	var problems []string
	if vacancy, ok := floatField(payload, "vacancy_rate_pct"); !ok {
		problems = append(problems, "vacancy_rate_pct: is required")
	} else if vacancy < 0 || vacancy > 40 {
		problems = append(problems, fmt.Sprintf("vacancy_rate_pct: %.2f outside [0, 40]", vacancy))
	}
	if capRate, ok := floatField(payload, "cap_rate_pct"); !ok {
		problems = append(problems, "cap_rate_pct: is required")
	} else if capRate < 2 || capRate > 20 {
		problems = append(problems, fmt.Sprintf("cap_rate_pct: %.2f outside [2, 20]", capRate))
	}
	if rent, ok := floatField(payload, "avg_rent_psf"); !ok {
		problems = append(problems, "avg_rent_psf: is required")
	} else if rent <= 0 {
		problems = append(problems, fmt.Sprintf("avg_rent_psf: %.2f must be positive", rent))
	}
	if expenseRatio, ok := floatField(payload, "expense_ratio_pct"); ok {
		if expenseRatio < 0 || expenseRatio > 80 {
			problems = append(problems, fmt.Sprintf("expense_ratio_pct: %.2f outside [0, 80]", expenseRatio))
		}
	}
	return problems
}

func validateCompsPayload(payload map[string]any) []string {
	comps, ok := payload["comps"].([]any)
	if !ok || len(comps) == 0 {
		return []string{"comps: must be a non-empty list"}
	}
	var problems []string
	for i, raw := range comps {
		comp, ok := raw.(map[string]any)
		if !ok {
			problems = append(problems, fmt.Sprintf("comps[%d]: must be an object", i))
			continue
		}
		if price, ok := floatField(comp, "sale_price"); !ok || price <= 0 {
			problems = append(problems, fmt.Sprintf("comps[%d].sale_price: must be positive", i))
		}
		if sqft, ok := floatField(comp, "square_feet"); !ok || sqft <= 0 {
			problems = append(problems, fmt.Sprintf("comps[%d].square_feet: must be positive", i))
		}
	}
	return problems
}

func validateMacroPayload(payload map[string]any) []string {
	var problems []string
	if treasury, ok := floatField(payload, "ten_year_treasury_pct"); !ok {
		problems = append(problems, "ten_year_treasury_pct: is required")
	} else if treasury < 0 || treasury > 20 {
		problems = append(problems, fmt.Sprintf("ten_year_treasury_pct: %.2f outside [0, 20]", treasury))
	}
	if fedFunds, ok := floatField(payload, "fed_funds_rate_pct"); ok {
		if fedFunds < 0 || fedFunds > 25 {
			problems = append(problems, fmt.Sprintf("fed_funds_rate_pct: %.2f outside [0, 25]", fedFunds))
		}
	}
	if cpi, ok := floatField(payload, "cpi_yoy_pct"); ok {
		if cpi < -10 || cpi > 30 {
			problems = append(problems, fmt.Sprintf("cpi_yoy_pct: %.2f outside [-10, 30]", cpi))
		}
	}
	return problems
}

func fundamentalsFromPayload(event core.IngestEvent) core.MarketFundamentals {
	payload := event.Payload
	fundamentals := core.MarketFundamentals{
		Market: event.Market,
		AsOf:   eventAsOf(event),
		Source: event.Source,
	}
	fundamentals.VacancyRatePct, _ = floatField(payload, "vacancy_rate_pct")
	fundamentals.CapRatePct, _ = floatField(payload, "cap_rate_pct")
	fundamentals.AvgRentPSF, _ = floatField(payload, "avg_rent_psf")
	fundamentals.RentGrowthPct, _ = floatField(payload, "rent_growth_pct")
	fundamentals.ExpenseRatioPct, _ = floatField(payload, "expense_ratio_pct")
	return fundamentals
}

func compsFromPayload(event core.IngestEvent) []core.CompSale {
	raw, _ := event.Payload["comps"].([]any)
	comps := make([]core.CompSale, 0, len(raw))
	for _, item := range raw {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		comp := core.CompSale{
			Market:       event.Market,
			PropertyType: stringField(fields, "property_type"),
			ClosedAt:     timeField(fields, "closed_at", eventAsOf(event)),
		}
		comp.ID = stringField(fields, "id")
		comp.SalePrice, _ = floatField(fields, "sale_price")
		comp.SquareFeet, _ = floatField(fields, "square_feet")
		if comp.SquareFeet > 0 {
			comp.PricePSF = comp.SalePrice / comp.SquareFeet
		}
		comps = append(comps, comp)
	}
	return comps
}

func macroFromPayload(event core.IngestEvent) core.MacroIndicators {
	macro := core.MacroIndicators{AsOf: eventAsOf(event)}
	macro.TenYearTreasuryPct, _ = floatField(event.Payload, "ten_year_treasury_pct")
	macro.FedFundsRatePct, _ = floatField(event.Payload, "fed_funds_rate_pct")
	macro.CPIYoYPct, _ = floatField(event.Payload, "cpi_yoy_pct")
	return macro
}

func eventAsOf(event core.IngestEvent) time.Time {
	if !event.Timestamp.IsZero() {
		return event.Timestamp.UTC()
	}
	return time.Now().UTC()
}

func isSupportedEventType(eventType string) bool {
	for _, supported := range core.SupportedEventTypes() {
		if supported == eventType {
			return true
		}
	}
	return false
}

func floatField(payload map[string]any, key string) (float64, bool) {
	value, exists := payload[key]
	if !exists {
		return 0, false
	}
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}

func stringField(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return strings.TrimSpace(value)
}

func timeField(payload map[string]any, key string, fallback time.Time) time.Time {
	raw, _ := payload[key].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fallback
	}
	return parsed.UTC()
}
