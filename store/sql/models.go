package sqlstore

import (
	"time"

	"github.com/capsight/go-valuation/core"
	"github.com/uptrace/bun"
)

type pipelineRunRecord struct {
	bun.BaseModel `bun:"table:pipeline_runs,alias:pr"`

	ID                   string            `bun:"id,pk"`
	Status               string            `bun:"status,notnull"`
	StartedAt            time.Time         `bun:"started_at,nullzero,notnull"`
	CompletedAt          *time.Time        `bun:"completed_at,nullzero"`
	RequestedStages      []string          `bun:"requested_stages,type:jsonb,notnull"`
	StageResults         []stageResultJSON `bun:"stage_results,type:jsonb,notnull"`
	TotalProcessed       int               `bun:"total_processed,notnull"`
	SuccessfulProperties int               `bun:"successful_properties,notnull"`
	FailedProperties     int               `bun:"failed_properties,notnull"`
	WebhookEventsSent    int               `bun:"webhook_events_sent,notnull"`
	WebhookEventsFailed  int               `bun:"webhook_events_failed,notnull"`
	DryRun               bool              `bun:"dry_run,notnull"`
	LastError            string            `bun:"last_error"`
	CreatedAt            time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type stageResultJSON struct {
	Stage      string   `json:"stage"`
	Status     string   `json:"status"`
	Processed  int      `json:"processed"`
	Errors     []string `json:"errors,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

func newPipelineRunRecord(run core.PipelineRun, now time.Time) *pipelineRunRecord {
	stages := make([]stageResultJSON, 0, len(run.StageResults))
	for _, result := range run.StageResults {
		stages = append(stages, stageResultJSON{
			Stage:      result.Stage,
			Status:     string(result.Status),
			Processed:  result.Processed,
			Errors:     result.Errors,
			DurationMS: result.Duration.Milliseconds(),
		})
	}
	requested := run.RequestedStages
	if requested == nil {
		requested = []string{}
	}
	return &pipelineRunRecord{
		ID:                   run.ID,
		Status:               string(run.Status),
		StartedAt:            run.StartedAt,
		CompletedAt:          run.CompletedAt,
		RequestedStages:      requested,
		StageResults:         stages,
		TotalProcessed:       run.TotalProcessed,
		SuccessfulProperties: run.SuccessfulProperties,
		FailedProperties:     run.FailedProperties,
		WebhookEventsSent:    run.WebhookEventsSent,
		WebhookEventsFailed:  run.WebhookEventsFailed,
		DryRun:               run.DryRun,
		LastError:            run.LastError,
		UpdatedAt:            now,
	}
}

func (r *pipelineRunRecord) toDomain() core.PipelineRun {
	if r == nil {
		return core.PipelineRun{}
	}
	stages := make([]core.StageResult, 0, len(r.StageResults))
	for _, result := range r.StageResults {
		stages = append(stages, core.StageResult{
			Stage:     result.Stage,
			Status:    core.StageStatus(result.Status),
			Processed: result.Processed,
			Errors:    result.Errors,
			Duration:  time.Duration(result.DurationMS) * time.Millisecond,
		})
	}
	return core.PipelineRun{
		ID:                   r.ID,
		Status:               core.RunStatus(r.Status),
		StartedAt:            r.StartedAt,
		CompletedAt:          r.CompletedAt,
		RequestedStages:      r.RequestedStages,
		StageResults:         stages,
		TotalProcessed:       r.TotalProcessed,
		SuccessfulProperties: r.SuccessfulProperties,
		FailedProperties:     r.FailedProperties,
		WebhookEventsSent:    r.WebhookEventsSent,
		WebhookEventsFailed:  r.WebhookEventsFailed,
		DryRun:               r.DryRun,
		LastError:            r.LastError,
	}
}

type ingestionAuditRecord struct {
	bun.BaseModel `bun:"table:ingestion_audits,alias:ia"`

	ID                string    `bun:"id,pk"`
	EventType         string    `bun:"event_type"`
	Market            string    `bun:"market"`
	Source            string    `bun:"source"`
	Outcome           string    `bun:"outcome,notnull"`
	ProcessedRecords  int       `bun:"processed_records,notnull"`
	InvalidatedScopes []string  `bun:"invalidated_scopes,type:jsonb,notnull"`
	ValidationErrors  []string  `bun:"validation_errors,type:jsonb,notnull"`
	DurationNS        int64     `bun:"duration_ns,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newIngestionAuditRecord(audit core.IngestionAudit) *ingestionAuditRecord {
	scopes := audit.InvalidatedScopes
	if scopes == nil {
		scopes = []string{}
	}
	validationErrors := audit.ValidationErrors
	if validationErrors == nil {
		validationErrors = []string{}
	}
	return &ingestionAuditRecord{
		ID:                audit.ID,
		EventType:         audit.EventType,
		Market:            audit.Market,
		Source:            audit.Source,
		Outcome:           audit.Outcome,
		ProcessedRecords:  audit.ProcessedRecords,
		InvalidatedScopes: scopes,
		ValidationErrors:  validationErrors,
		DurationNS:        audit.Duration.Nanoseconds(),
		CreatedAt:         audit.CreatedAt,
	}
}

func (r *ingestionAuditRecord) toDomain() core.IngestionAudit {
	if r == nil {
		return core.IngestionAudit{}
	}
	return core.IngestionAudit{
		ID:                r.ID,
		EventType:         r.EventType,
		Market:            r.Market,
		Source:            r.Source,
		Outcome:           r.Outcome,
		ProcessedRecords:  r.ProcessedRecords,
		InvalidatedScopes: r.InvalidatedScopes,
		ValidationErrors:  r.ValidationErrors,
		Duration:          time.Duration(r.DurationNS),
		CreatedAt:         r.CreatedAt,
	}
}

type deliveryAttemptRecord struct {
	bun.BaseModel `bun:"table:delivery_attempts,alias:da"`

	ID             string    `bun:"id,pk"`
	IdempotencyKey string    `bun:"idempotency_key"`
	RequestID      string    `bun:"request_id"`
	Attempt        int       `bun:"attempt,notnull"`
	Outcome        string    `bun:"outcome,notnull"`
	StatusCode     int       `bun:"status_code,notnull"`
	LatencyNS      int64     `bun:"latency_ns,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newDeliveryAttemptRecord(attempt core.DeliveryAttempt) *deliveryAttemptRecord {
	return &deliveryAttemptRecord{
		ID:             attempt.ID,
		IdempotencyKey: attempt.IdempotencyKey,
		RequestID:      attempt.RequestID,
		Attempt:        attempt.Attempt,
		Outcome:        attempt.Outcome,
		StatusCode:     attempt.StatusCode,
		LatencyNS:      attempt.Latency.Nanoseconds(),
		CreatedAt:      attempt.CreatedAt,
	}
}

func (r *deliveryAttemptRecord) toDomain() core.DeliveryAttempt {
	if r == nil {
		return core.DeliveryAttempt{}
	}
	return core.DeliveryAttempt{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		RequestID:      r.RequestID,
		Attempt:        r.Attempt,
		Outcome:        r.Outcome,
		StatusCode:     r.StatusCode,
		Latency:        time.Duration(r.LatencyNS),
		CreatedAt:      r.CreatedAt,
	}
}

type marketFundamentalsRecord struct {
	bun.BaseModel `bun:"table:market_fundamentals,alias:mf"`

	Market          string    `bun:"market,pk"`
	VacancyRatePct  float64   `bun:"vacancy_rate_pct,notnull"`
	CapRatePct      float64   `bun:"cap_rate_pct,notnull"`
	AvgRentPSF      float64   `bun:"avg_rent_psf,notnull"`
	RentGrowthPct   float64   `bun:"rent_growth_pct,notnull"`
	ExpenseRatioPct float64   `bun:"expense_ratio_pct,notnull"`
	AsOf            time.Time `bun:"as_of,nullzero,notnull"`
	Source          string    `bun:"source"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newMarketFundamentalsRecord(fundamentals core.MarketFundamentals, now time.Time) *marketFundamentalsRecord {
	return &marketFundamentalsRecord{
		Market:          fundamentals.Market,
		VacancyRatePct:  fundamentals.VacancyRatePct,
		CapRatePct:      fundamentals.CapRatePct,
		AvgRentPSF:      fundamentals.AvgRentPSF,
		RentGrowthPct:   fundamentals.RentGrowthPct,
		ExpenseRatioPct: fundamentals.ExpenseRatioPct,
		AsOf:            fundamentals.AsOf,
		Source:          fundamentals.Source,
		UpdatedAt:       now,
	}
}

func (r *marketFundamentalsRecord) toDomain() core.MarketFundamentals {
	if r == nil {
		return core.MarketFundamentals{}
	}
	return core.MarketFundamentals{
		Market:          r.Market,
		VacancyRatePct:  r.VacancyRatePct,
		CapRatePct:      r.CapRatePct,
		AvgRentPSF:      r.AvgRentPSF,
		RentGrowthPct:   r.RentGrowthPct,
		ExpenseRatioPct: r.ExpenseRatioPct,
		AsOf:            r.AsOf,
		Source:          r.Source,
	}
}

type compSaleRecord struct {
	bun.BaseModel `bun:"table:comp_sales,alias:cs"`

	ID           string    `bun:"id,pk"`
	Market       string    `bun:"market,notnull"`
	PropertyType string    `bun:"property_type"`
	SalePrice    float64   `bun:"sale_price,notnull"`
	SquareFeet   float64   `bun:"square_feet,notnull"`
	PricePSF     float64   `bun:"price_psf,notnull"`
	ClosedAt     time.Time `bun:"closed_at,nullzero,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newCompSaleRecord(comp core.CompSale) *compSaleRecord {
	return &compSaleRecord{
		ID:           comp.ID,
		Market:       comp.Market,
		PropertyType: comp.PropertyType,
		SalePrice:    comp.SalePrice,
		SquareFeet:   comp.SquareFeet,
		PricePSF:     comp.PricePSF,
		ClosedAt:     comp.ClosedAt,
	}
}

func (r *compSaleRecord) toDomain() core.CompSale {
	if r == nil {
		return core.CompSale{}
	}
	return core.CompSale{
		ID:           r.ID,
		Market:       r.Market,
		PropertyType: r.PropertyType,
		SalePrice:    r.SalePrice,
		SquareFeet:   r.SquareFeet,
		PricePSF:     r.PricePSF,
		ClosedAt:     r.ClosedAt,
	}
}

// macroIndicatorsRecord keeps a single global row keyed by macroIndicatorsRowID.
type macroIndicatorsRecord struct {
	bun.BaseModel `bun:"table:macro_indicators,alias:mi"`

	ID                 string    `bun:"id,pk"`
	TenYearTreasuryPct float64   `bun:"ten_year_treasury_pct,notnull"`
	FedFundsRatePct    float64   `bun:"fed_funds_rate_pct,notnull"`
	CPIYoYPct          float64   `bun:"cpi_yoy_pct,notnull"`
	AsOf               time.Time `bun:"as_of,nullzero,notnull"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

const macroIndicatorsRowID = "global"

func newMacroIndicatorsRecord(macro core.MacroIndicators, now time.Time) *macroIndicatorsRecord {
	return &macroIndicatorsRecord{
		ID:                 macroIndicatorsRowID,
		TenYearTreasuryPct: macro.TenYearTreasuryPct,
		FedFundsRatePct:    macro.FedFundsRatePct,
		CPIYoYPct:          macro.CPIYoYPct,
		AsOf:               macro.AsOf,
		UpdatedAt:          now,
	}
}

func (r *macroIndicatorsRecord) toDomain() core.MacroIndicators {
	if r == nil {
		return core.MacroIndicators{}
	}
	return core.MacroIndicators{
		TenYearTreasuryPct: r.TenYearTreasuryPct,
		FedFundsRatePct:    r.FedFundsRatePct,
		CPIYoYPct:          r.CPIYoYPct,
		AsOf:               r.AsOf,
	}
}

type propertySnapshotRecord struct {
	bun.BaseModel `bun:"table:property_snapshots,alias:ps"`

	ID            string    `bun:"id,pk"`
	PropertyID    string    `bun:"property_id,notnull"`
	TenantID      string    `bun:"tenant_id"`
	Market        string    `bun:"market,notnull"`
	PropertyType  string    `bun:"property_type"`
	SquareFeet    float64   `bun:"square_feet,notnull"`
	NOI           float64   `bun:"noi,notnull"`
	CurrentValue  float64   `bun:"current_value,notnull"`
	ForecastValue float64   `bun:"forecast_value,notnull"`
	Score         float64   `bun:"score,notnull"`
	ValuedAt      time.Time `bun:"valued_at,nullzero,notnull"`
	RunID         string    `bun:"run_id,notnull"`
}

func newPropertySnapshotRecord(snapshot core.PropertySnapshot) *propertySnapshotRecord {
	return &propertySnapshotRecord{
		ID:            snapshot.ID,
		PropertyID:    snapshot.PropertyID,
		TenantID:      snapshot.TenantID,
		Market:        snapshot.Market,
		PropertyType:  snapshot.PropertyType,
		SquareFeet:    snapshot.SquareFeet,
		NOI:           snapshot.NOI,
		CurrentValue:  snapshot.CurrentValue,
		ForecastValue: snapshot.ForecastValue,
		Score:         snapshot.Score,
		ValuedAt:      snapshot.ValuedAt,
		RunID:         snapshot.RunID,
	}
}

func (r *propertySnapshotRecord) toDomain() core.PropertySnapshot {
	if r == nil {
		return core.PropertySnapshot{}
	}
	return core.PropertySnapshot{
		ID:            r.ID,
		PropertyID:    r.PropertyID,
		TenantID:      r.TenantID,
		Market:        r.Market,
		PropertyType:  r.PropertyType,
		SquareFeet:    r.SquareFeet,
		NOI:           r.NOI,
		CurrentValue:  r.CurrentValue,
		ForecastValue: r.ForecastValue,
		Score:         r.Score,
		ValuedAt:      r.ValuedAt,
		RunID:         r.RunID,
	}
}
