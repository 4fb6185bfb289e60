package core

import (
	"strings"
	"time"
)

const (
	StageIngestion     = "ingestion"
	StageNormalization = "normalization"
	StageEnrichment    = "enrichment"
	StageValuation     = "valuation"
	StageScoring       = "scoring"
	StagePersistence   = "persistence"
	StageNotification  = "notification"
)

// CanonicalStages returns the full stage sequence in execution order.
func CanonicalStages() []string {
	return []string{
		StageIngestion,
		StageNormalization,
		StageEnrichment,
		StageValuation,
		StageScoring,
		StagePersistence,
		StageNotification,
	}
}

func IsCanonicalStage(name string) bool {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, stage := range CanonicalStages() {
		if stage == name {
			return true
		}
	}
	return false
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type StageStatus string

const (
	StageStatusSuccess StageStatus = "success"
	StageStatusPartial StageStatus = "partial"
	StageStatusFailed  StageStatus = "failed"
	StageStatusSkipped StageStatus = "skipped"
	StageStatusNotRun  StageStatus = "not_run"
)

type StageResult struct {
	Stage     string
	Status    StageStatus
	Processed int
	Errors    []string
	Duration  time.Duration
}

type PipelineRun struct {
	ID                   string
	Status               RunStatus
	StartedAt            time.Time
	CompletedAt          *time.Time
	RequestedStages      []string
	StageResults         []StageResult
	TotalProcessed       int
	SuccessfulProperties int
	FailedProperties     int
	WebhookEventsSent    int
	WebhookEventsFailed  int
	DryRun               bool
	LastError            string
}

const (
	EventTypeFundamentalsUpsert = "market.fundamentals.upsert"
	EventTypeCompsUpsert        = "market.comps.upsert"
	EventTypeMacroUpdate        = "macro.update"
)

func SupportedEventTypes() []string {
	return []string{
		EventTypeFundamentalsUpsert,
		EventTypeCompsUpsert,
		EventTypeMacroUpdate,
	}
}

// IngestEvent is the typed envelope accepted by the inbound receiver.
// Market is the scope key used for cache invalidation after a write.
type IngestEvent struct {
	EventType string         `json:"event_type"`
	Market    string         `json:"market"`
	Payload   map[string]any `json:"payload"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Checksum  string         `json:"checksum,omitempty"`
}

type ModelDescriptor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Estimate struct {
	Value       float64 `json:"value"`
	Currency    string  `json:"currency"`
	AsOf        string  `json:"as_of"`
	Methodology string  `json:"methodology,omitempty"`
}

type ValueDriver struct {
	Name   string  `json:"name"`
	Impact float64 `json:"impact"`
}

type Provenance struct {
	RunID       string `json:"run_id"`
	Source      string `json:"source"`
	GeneratedAt string `json:"generated_at"`
}

// OutboundEvent is the versioned payload delivered to webhook subscribers.
// Immutable once constructed; its idempotency key is derived from content.
type OutboundEvent struct {
	SchemaVersion string          `json:"schema_version"`
	Type          string          `json:"type"`
	TenantID      string          `json:"tenant_id"`
	PropertyID    string          `json:"property_id"`
	Market        string          `json:"market"`
	Model         ModelDescriptor `json:"model"`
	CurrentValue  Estimate        `json:"current_value"`
	Forecast      Estimate        `json:"forecast"`
	Provenance    Provenance      `json:"provenance"`
	Drivers       []ValueDriver   `json:"drivers"`
}

const (
	AttemptOutcomeDelivered      = "delivered"
	AttemptOutcomeFailed         = "failed"
	AttemptOutcomeShortCircuited = "short_circuited"
	AttemptOutcomeCanceled       = "canceled"
)

// DeliveryAttempt is an append-only observation consumed by metrics,
// never a source of truth for business state.
type DeliveryAttempt struct {
	ID             string
	IdempotencyKey string
	RequestID      string
	Attempt        int
	Outcome        string
	StatusCode     int
	Latency        time.Duration
	CreatedAt      time.Time
}

type CircuitStateName string

const (
	CircuitClosed   CircuitStateName = "CLOSED"
	CircuitOpen     CircuitStateName = "OPEN"
	CircuitHalfOpen CircuitStateName = "HALF_OPEN"
)

type CircuitSnapshot struct {
	State               CircuitStateName
	ConsecutiveFailures int
	OpenedAt            *time.Time
}

const (
	IngestionOutcomeDispatched           = "dispatched"
	IngestionOutcomeRejectedUnauthorized = "rejected_unauthorized"
	IngestionOutcomeRejectedValidation   = "rejected_validation"
	IngestionOutcomeFailed               = "failed"
)

// IngestionAudit records one inbound ingestion attempt. Audit writes are
// best-effort and never influence the ingestion outcome.
type IngestionAudit struct {
	ID                string
	EventType         string
	Market            string
	Source            string
	Outcome           string
	ProcessedRecords  int
	InvalidatedScopes []string
	ValidationErrors  []string
	Duration          time.Duration
	CreatedAt         time.Time
}

type MarketFundamentals struct {
	Market          string
	VacancyRatePct  float64
	CapRatePct      float64
	AvgRentPSF      float64
	RentGrowthPct   float64
	ExpenseRatioPct float64
	AsOf            time.Time
	Source          string
}

type CompSale struct {
	ID           string
	Market       string
	PropertyType string
	SalePrice    float64
	SquareFeet   float64
	PricePSF     float64
	ClosedAt     time.Time
}

type MacroIndicators struct {
	TenYearTreasuryPct float64
	FedFundsRatePct    float64
	CPIYoYPct          float64
	AsOf               time.Time
}

type Property struct {
	ID           string
	TenantID     string
	Market       string
	PropertyType string
	SquareFeet   float64
	YearBuilt    int
	OccupancyPct float64
}

type PropertySnapshot struct {
	ID            string
	PropertyID    string
	TenantID      string
	Market        string
	PropertyType  string
	SquareFeet    float64
	NOI           float64
	CurrentValue  float64
	ForecastValue float64
	Score         float64
	ValuedAt      time.Time
	RunID         string
}

type DependencyHealth struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

type HealthStatus struct {
	Healthy      bool                        `json:"healthy"`
	Dependencies map[string]DependencyHealth `json:"dependencies"`
}
