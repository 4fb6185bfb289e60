package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/capsight/go-valuation/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PropertySnapshotStore struct {
	db   *bun.DB
	repo repository.Repository[*propertySnapshotRecord]
}

func NewPropertySnapshotStore(db *bun.DB) (*PropertySnapshotStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*propertySnapshotRecord](db, propertySnapshotHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid property snapshot repository wiring: %w", err)
		}
	}
	return &PropertySnapshotStore{
		db:   db,
		repo: repo,
	}, nil
}

// UpsertBatch writes a run's snapshots, replacing any earlier snapshot for
// the same run and property pair.
func (s *PropertySnapshotStore) UpsertBatch(ctx context.Context, snapshots []core.PropertySnapshot) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: property snapshot store is not configured")
	}
	if len(snapshots) == 0 {
		return 0, nil
	}
	records := make([]propertySnapshotRecord, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if strings.TrimSpace(snapshot.RunID) == "" {
			return 0, fmt.Errorf("sqlstore: snapshot run id is required")
		}
		if strings.TrimSpace(snapshot.PropertyID) == "" {
			return 0, fmt.Errorf("sqlstore: snapshot property id is required")
		}
		if strings.TrimSpace(snapshot.ID) == "" {
			snapshot.ID = uuid.NewString()
		}
		records = append(records, *newPropertySnapshotRecord(snapshot))
	}
	if _, err := s.db.NewInsert().
		Model(&records).
		On("CONFLICT (run_id, property_id) DO UPDATE").
		Set("noi = EXCLUDED.noi").
		Set("current_value = EXCLUDED.current_value").
		Set("forecast_value = EXCLUDED.forecast_value").
		Set("score = EXCLUDED.score").
		Set("valued_at = EXCLUDED.valued_at").
		Exec(ctx); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *PropertySnapshotStore) ListByRun(ctx context.Context, runID string) ([]core.PropertySnapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: property snapshot store is not configured")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("sqlstore: run id is required")
	}
	var records []propertySnapshotRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.run_id = ?", runID).
		Order("property_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]core.PropertySnapshot, 0, len(records))
	for i := range records {
		snapshots = append(snapshots, records[i].toDomain())
	}
	return snapshots, nil
}
