package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// DataSource abstracts the upstream market/valuation feeds. Implementations
// wrap geocoding and macro-data clients; the pipeline only sees typed records.
type DataSource interface {
	ListProperties(ctx context.Context, limit int) ([]Property, error)
	Fundamentals(ctx context.Context, market string) (MarketFundamentals, error)
	Comps(ctx context.Context, market string) ([]CompSale, error)
	Macro(ctx context.Context) (MacroIndicators, error)
	Ping(ctx context.Context) error
}

type PipelineRunStore interface {
	Create(ctx context.Context, run PipelineRun) (PipelineRun, error)
	Update(ctx context.Context, run PipelineRun) (PipelineRun, error)
	Get(ctx context.Context, id string) (PipelineRun, error)
	Ping(ctx context.Context) error
}

type IngestionAuditStore interface {
	Append(ctx context.Context, audit IngestionAudit) error
}

type DeliveryAttemptStore interface {
	Append(ctx context.Context, attempt DeliveryAttempt) error
	ListByIdempotencyKey(ctx context.Context, key string) ([]DeliveryAttempt, error)
}

type MarketDataStore interface {
	UpsertFundamentals(ctx context.Context, fundamentals MarketFundamentals) error
	InsertComps(ctx context.Context, comps []CompSale) (int, error)
	UpsertMacro(ctx context.Context, macro MacroIndicators) error
	GetFundamentals(ctx context.Context, market string) (MarketFundamentals, error)
	GetMacro(ctx context.Context) (MacroIndicators, error)
	CountComps(ctx context.Context, market string) (int, error)
}

type PropertySnapshotStore interface {
	UpsertBatch(ctx context.Context, snapshots []PropertySnapshot) (int, error)
	ListByRun(ctx context.Context, runID string) ([]PropertySnapshot, error)
}

// CacheInvalidator marks derived-data scopes stale after a successful write.
// Invalidation is fire-and-forget: implementations log failures and report
// them through metrics only, never through the return path.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, scope string)
	InvalidatePrefix(ctx context.Context, prefix string)
	LastInvalidated(scope string) (time.Time, bool)
}

// DeliveryReporter exposes the delivery client surface the orchestrator and
// health checks depend on, without pulling in the full client.
type DeliveryReporter interface {
	Circuit() CircuitSnapshot
}
