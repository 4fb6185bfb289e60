package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/capsight/go-valuation/core"
	valuationmigrations "github.com/capsight/go-valuation/migrations"
	sqlstore "github.com/capsight/go-valuation/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-valuation-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"pipeline_runs",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "pipeline_runs" {
		t.Fatalf("expected pipeline_runs table, got %q", tableName)
	}
}

func TestPipelineRunStore_CreateUpdateGet(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.PipelineRunStore()
	if store == nil {
		t.Fatalf("expected pipeline run store from factory")
	}

	created, err := store.Create(ctx, core.PipelineRun{
		RequestedStages: core.CanonicalStages(),
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated run id")
	}
	if created.Status != core.RunStatusRunning {
		t.Fatalf("expected running status, got %q", created.Status)
	}

	completedAt := time.Now().UTC().Truncate(time.Second)
	created.Status = core.RunStatusCompleted
	created.CompletedAt = &completedAt
	created.TotalProcessed = 12
	created.SuccessfulProperties = 11
	created.FailedProperties = 1
	created.WebhookEventsSent = 11
	created.StageResults = []core.StageResult{
		{Stage: core.StageIngestion, Status: core.StageStatusSuccess, Processed: 12, Duration: 80 * time.Millisecond},
		{Stage: core.StageValuation, Status: core.StageStatusPartial, Processed: 11, Errors: []string{"prop-9: cap rate must be positive"}},
	}

	updated, err := store.Update(ctx, created)
	if err != nil {
		t.Fatalf("update run: %v", err)
	}
	if updated.Status != core.RunStatusCompleted {
		t.Fatalf("expected completed status, got %q", updated.Status)
	}

	fetched, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if fetched.TotalProcessed != 12 || fetched.SuccessfulProperties != 11 || fetched.FailedProperties != 1 {
		t.Fatalf("unexpected run counts: %+v", fetched)
	}
	if len(fetched.StageResults) != 2 {
		t.Fatalf("expected 2 stage results, got %d", len(fetched.StageResults))
	}
	if fetched.StageResults[1].Status != core.StageStatusPartial {
		t.Fatalf("expected partial valuation stage, got %q", fetched.StageResults[1].Status)
	}
	if len(fetched.StageResults[1].Errors) != 1 {
		t.Fatalf("expected stage error to round-trip, got %v", fetched.StageResults[1].Errors)
	}
	if fetched.CompletedAt == nil {
		t.Fatalf("expected completed_at to persist")
	}

	if _, err := store.Get(ctx, "does-not-exist"); err == nil {
		t.Fatalf("expected not found error for missing run")
	}

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestMarketDataStore_UpsertsAndReads(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.MarketDataStore()

	asOf := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	fundamentals := core.MarketFundamentals{
		Market:         "Austin-TX",
		VacancyRatePct: 10,
		CapRatePct:     6,
		AvgRentPSF:     30,
		RentGrowthPct:  3,
		AsOf:           asOf,
		Source:         "costar",
	}
	if err := store.UpsertFundamentals(ctx, fundamentals); err != nil {
		t.Fatalf("upsert fundamentals: %v", err)
	}

	fundamentals.CapRatePct = 6.5
	if err := store.UpsertFundamentals(ctx, fundamentals); err != nil {
		t.Fatalf("second upsert fundamentals: %v", err)
	}

	fetched, err := store.GetFundamentals(ctx, "AUSTIN-TX")
	if err != nil {
		t.Fatalf("get fundamentals: %v", err)
	}
	if fetched.Market != "austin-tx" {
		t.Fatalf("expected normalized market, got %q", fetched.Market)
	}
	if fetched.CapRatePct != 6.5 {
		t.Fatalf("expected upsert to replace cap rate, got %.2f", fetched.CapRatePct)
	}

	var fundamentalsRows int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM market_fundamentals WHERE market = ?", "austin-tx",
	).Scan(ctx, &fundamentalsRows); err != nil {
		t.Fatalf("count fundamentals rows: %v", err)
	}
	if fundamentalsRows != 1 {
		t.Fatalf("expected single fundamentals row per market, got %d", fundamentalsRows)
	}

	if _, err := store.GetFundamentals(ctx, "nowhere-zz"); err == nil {
		t.Fatalf("expected not found error for unknown market")
	}

	inserted, err := store.InsertComps(ctx, []core.CompSale{
		{Market: "austin-tx", SalePrice: 4200000, SquareFeet: 21000, PricePSF: 200, ClosedAt: asOf},
		{Market: "austin-tx", SalePrice: 9000000, SquareFeet: 30000, PricePSF: 300, ClosedAt: asOf},
		{Market: "denver-co", SalePrice: 5000000, SquareFeet: 25000, PricePSF: 200, ClosedAt: asOf},
	})
	if err != nil {
		t.Fatalf("insert comps: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("expected 3 comps inserted, got %d", inserted)
	}

	count, err := store.CountComps(ctx, "austin-tx")
	if err != nil {
		t.Fatalf("count comps: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 austin comps, got %d", count)
	}

	comps, err := store.ListComps(ctx, "austin-tx", 10)
	if err != nil {
		t.Fatalf("list comps: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("expected 2 listed comps, got %d", len(comps))
	}

	macro := core.MacroIndicators{TenYearTreasuryPct: 4.2, FedFundsRatePct: 4.5, CPIYoYPct: 2.9, AsOf: asOf}
	if err := store.UpsertMacro(ctx, macro); err != nil {
		t.Fatalf("upsert macro: %v", err)
	}
	macro.TenYearTreasuryPct = 4.4
	if err := store.UpsertMacro(ctx, macro); err != nil {
		t.Fatalf("second upsert macro: %v", err)
	}

	fetchedMacro, err := store.GetMacro(ctx)
	if err != nil {
		t.Fatalf("get macro: %v", err)
	}
	if fetchedMacro.TenYearTreasuryPct != 4.4 {
		t.Fatalf("expected macro upsert to replace treasury, got %.2f", fetchedMacro.TenYearTreasuryPct)
	}

	var macroRows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM macro_indicators").Scan(ctx, &macroRows); err != nil {
		t.Fatalf("count macro rows: %v", err)
	}
	if macroRows != 1 {
		t.Fatalf("expected single global macro row, got %d", macroRows)
	}
}

func TestPropertySnapshotStore_UpsertBatchReplacesRunSnapshots(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.PropertySnapshotStore()

	valuedAt := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)
	first := []core.PropertySnapshot{
		{PropertyID: "prop-1", Market: "austin-tx", NOI: 1890000, CurrentValue: 31500000, ForecastValue: 32445000, Score: 65.56, ValuedAt: valuedAt, RunID: "run-1"},
		{PropertyID: "prop-2", Market: "austin-tx", NOI: 900000, CurrentValue: 15000000, ForecastValue: 15450000, Score: 60.1, ValuedAt: valuedAt, RunID: "run-1"},
	}
	written, err := store.UpsertBatch(ctx, first)
	if err != nil {
		t.Fatalf("upsert batch: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected 2 snapshots written, got %d", written)
	}

	revised := []core.PropertySnapshot{
		{PropertyID: "prop-1", Market: "austin-tx", NOI: 2000000, CurrentValue: 33000000, ForecastValue: 34000000, Score: 70, ValuedAt: valuedAt, RunID: "run-1"},
	}
	if _, err := store.UpsertBatch(ctx, revised); err != nil {
		t.Fatalf("upsert revised batch: %v", err)
	}

	snapshots, err := store.ListByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("list by run: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots for run, got %d", len(snapshots))
	}
	if snapshots[0].PropertyID != "prop-1" || snapshots[0].NOI != 2000000 {
		t.Fatalf("expected revised prop-1 snapshot, got %+v", snapshots[0])
	}

	if _, err := store.UpsertBatch(ctx, []core.PropertySnapshot{{PropertyID: "prop-3", Market: "austin-tx"}}); err == nil {
		t.Fatalf("expected error for snapshot without run id")
	}
}

func TestDeliveryAttemptStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DeliveryAttemptStore()

	base := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)
	attempts := []core.DeliveryAttempt{
		{IdempotencyKey: "key-1", RequestID: "req-1", Attempt: 1, Outcome: core.AttemptOutcomeFailed, StatusCode: 503, CreatedAt: base},
		{IdempotencyKey: "key-1", RequestID: "req-1", Attempt: 2, Outcome: core.AttemptOutcomeDelivered, StatusCode: 200, CreatedAt: base.Add(time.Second)},
		{IdempotencyKey: "key-2", RequestID: "req-2", Attempt: 1, Outcome: core.AttemptOutcomeDelivered, StatusCode: 200, CreatedAt: base},
	}
	for _, attempt := range attempts {
		if err := store.Append(ctx, attempt); err != nil {
			t.Fatalf("append attempt %d: %v", attempt.Attempt, err)
		}
	}

	listed, err := store.ListByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("list by key: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 attempts for key-1, got %d", len(listed))
	}
	if listed[0].Attempt != 1 || listed[1].Attempt != 2 {
		t.Fatalf("expected attempts ordered ascending, got %+v", listed)
	}
	if listed[1].Outcome != core.AttemptOutcomeDelivered {
		t.Fatalf("expected delivered final attempt, got %q", listed[1].Outcome)
	}

	if _, err := store.ListByIdempotencyKey(ctx, "  "); err == nil {
		t.Fatalf("expected error for blank idempotency key")
	}
}

func TestIngestionAuditStore_AppendAndListRecent(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IngestionAuditStore()

	base := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)
	if err := store.Append(ctx, core.IngestionAudit{
		EventType:         core.EventTypeFundamentalsUpsert,
		Market:            "austin-tx",
		Outcome:           core.IngestionOutcomeDispatched,
		ProcessedRecords:  1,
		InvalidatedScopes: []string{"fundamentals::austin-tx"},
		CreatedAt:         base,
	}); err != nil {
		t.Fatalf("append dispatched audit: %v", err)
	}
	if err := store.Append(ctx, core.IngestionAudit{
		EventType:        core.EventTypeMacroUpdate,
		Outcome:          core.IngestionOutcomeRejectedValidation,
		ValidationErrors: []string{"payload.ten_year_treasury_pct: required"},
		CreatedAt:        base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("append rejected audit: %v", err)
	}

	sqlStore, ok := store.(*sqlstore.IngestionAuditStore)
	if !ok {
		t.Fatalf("expected concrete ingestion audit store")
	}
	audits, err := sqlStore.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(audits) != 2 {
		t.Fatalf("expected 2 audits, got %d", len(audits))
	}
	if audits[0].Outcome != core.IngestionOutcomeRejectedValidation {
		t.Fatalf("expected newest audit first, got %q", audits[0].Outcome)
	}
	if len(audits[0].ValidationErrors) != 1 {
		t.Fatalf("expected validation errors to round-trip, got %v", audits[0].ValidationErrors)
	}
	if len(audits[1].InvalidatedScopes) != 1 {
		t.Fatalf("expected invalidated scopes to round-trip, got %v", audits[1].InvalidatedScopes)
	}
}

func TestOpenDB_RejectsUnsupportedDriver(t *testing.T) {
	if _, err := sqlstore.OpenDB("oracle", "dsn"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if _, err := sqlstore.OpenDB("sqlite3", ""); err == nil {
		t.Fatalf("expected error for blank dsn")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:valuation-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = valuationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != valuationmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, valuationmigrations.WithValidationTargets(valuationmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
