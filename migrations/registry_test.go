package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	valuation "github.com/capsight/go-valuation"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestRegister_DefaultsToValuationSourceLabel(t *testing.T) {
	var label string
	_, err := Register(context.Background(), func(_ context.Context, _ string, sourceLabel string, _ fs.FS) error {
		label = sourceLabel
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if label != "go-valuation" {
		t.Fatalf("expected go-valuation source label, got %q", label)
	}
}

func TestValuationSchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := valuation.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260110000001_valuation_schema.up.sql",
		"data/sql/migrations/20260110000001_valuation_schema.down.sql",
		"data/sql/migrations/sqlite/20260110000001_valuation_schema.up.sql",
		"data/sql/migrations/sqlite/20260110000001_valuation_schema.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteValuationSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-valuation-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := valuation.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "20260110000001_valuation_schema.up.sql"); err != nil {
		t.Fatalf("apply schema migration up: %v", err)
	}

	requiredTables := []string{
		"pipeline_runs",
		"ingestion_audits",
		"delivery_attempts",
		"market_fundamentals",
		"comp_sales",
		"macro_indicators",
		"property_snapshots",
	}
	for _, tableName := range requiredTables {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertSnapshot := `
		INSERT INTO property_snapshots
			(id, property_id, tenant_id, market, property_type, square_feet, noi, current_value, forecast_value, score, valued_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertSnapshot,
		"snap-1", "prop-1", "tenant-1", "austin-tx", "office",
		100000, 1890000, 31500000, 32445000, 65.56,
		"2026-01-11T09:00:00Z", "run-1",
	); err != nil {
		t.Fatalf("insert snapshot: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertSnapshot,
		"snap-2", "prop-1", "tenant-1", "austin-tx", "office",
		100000, 1890000, 31500000, 32445000, 65.56,
		"2026-01-11T09:00:00Z", "run-1",
	); err == nil {
		t.Fatalf("expected unique run/property violation on duplicate snapshot insert")
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "20260110000001_valuation_schema.down.sql"); err != nil {
		t.Fatalf("apply schema migration down: %v", err)
	}

	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"property_snapshots",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected property_snapshots to be dropped after down migration")
	}
}

func TestRegister_FailsWithoutRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil register function")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	statements := strings.Split(string(content), ";")
	for _, statement := range statements {
		trimmed := strings.TrimSpace(statement)
		if trimmed == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmed); err != nil {
			return fmt.Errorf("exec %s: %w", filename, err)
		}
	}
	return nil
}
