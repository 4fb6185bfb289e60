package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/capsight/go-valuation/core"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type RepositoryFactory struct {
	db *bun.DB

	runStore      *PipelineRunStore
	auditStore    *IngestionAuditStore
	attemptStore  *DeliveryAttemptStore
	marketStore   *MarketDataStore
	snapshotStore *PropertySnapshotStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.runStore != nil && f.marketStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) PipelineRunStore() core.PipelineRunStore {
	if f == nil {
		return nil
	}
	return f.runStore
}

func (f *RepositoryFactory) IngestionAuditStore() core.IngestionAuditStore {
	if f == nil {
		return nil
	}
	return f.auditStore
}

func (f *RepositoryFactory) DeliveryAttemptStore() core.DeliveryAttemptStore {
	if f == nil {
		return nil
	}
	return f.attemptStore
}

func (f *RepositoryFactory) MarketDataStore() *MarketDataStore {
	if f == nil {
		return nil
	}
	return f.marketStore
}

func (f *RepositoryFactory) PropertySnapshotStore() core.PropertySnapshotStore {
	if f == nil {
		return nil
	}
	return f.snapshotStore
}

func (f *RepositoryFactory) initStores() error {
	runStore, err := NewPipelineRunStore(f.db)
	if err != nil {
		return err
	}
	f.runStore = runStore
	auditStore, err := NewIngestionAuditStore(f.db)
	if err != nil {
		return err
	}
	f.auditStore = auditStore
	attemptStore, err := NewDeliveryAttemptStore(f.db)
	if err != nil {
		return err
	}
	f.attemptStore = attemptStore
	marketStore, err := NewMarketDataStore(f.db)
	if err != nil {
		return err
	}
	f.marketStore = marketStore
	snapshotStore, err := NewPropertySnapshotStore(f.db)
	if err != nil {
		return err
	}
	f.snapshotStore = snapshotStore

	return nil
}

// OpenDB opens a bun database handle for the given driver. Supported
// drivers are sqlite3 and postgres, matching the embedded migration
// dialects.
func OpenDB(driver string, dsn string) (*bun.DB, error) {
	driver = strings.TrimSpace(strings.ToLower(driver))
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	switch driver {
	case "sqlite3", "sqlite":
		sqlDB, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
		}
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	case "postgres", "pg":
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
		}
		return bun.NewDB(sqlDB, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
