package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/capsight/go-valuation/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PipelineRunStore struct {
	db   *bun.DB
	repo repository.Repository[*pipelineRunRecord]
}

func NewPipelineRunStore(db *bun.DB) (*PipelineRunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*pipelineRunRecord](db, pipelineRunHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid pipeline run repository wiring: %w", err)
		}
	}
	return &PipelineRunStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *PipelineRunStore) Create(ctx context.Context, run core.PipelineRun) (core.PipelineRun, error) {
	if s == nil || s.db == nil {
		return core.PipelineRun{}, fmt.Errorf("sqlstore: pipeline run store is not configured")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.Status == "" {
		run.Status = core.RunStatusRunning
	}

	record := newPipelineRunRecord(run, now)
	record.CreatedAt = now
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.PipelineRun{}, err
	}
	return record.toDomain(), nil
}

func (s *PipelineRunStore) Update(ctx context.Context, run core.PipelineRun) (core.PipelineRun, error) {
	if s == nil || s.db == nil {
		return core.PipelineRun{}, fmt.Errorf("sqlstore: pipeline run store is not configured")
	}
	run.ID = strings.TrimSpace(run.ID)
	if run.ID == "" {
		return core.PipelineRun{}, fmt.Errorf("sqlstore: run id is required")
	}

	record := newPipelineRunRecord(run, time.Now().UTC())
	if _, err := s.db.NewUpdate().
		Model(record).
		Column("status", "completed_at", "requested_stages", "stage_results",
			"total_processed", "successful_properties", "failed_properties",
			"webhook_events_sent", "webhook_events_failed", "last_error", "updated_at").
		Where("id = ?", record.ID).
		Exec(ctx); err != nil {
		return core.PipelineRun{}, err
	}
	return s.Get(ctx, run.ID)
}

func (s *PipelineRunStore) Get(ctx context.Context, id string) (core.PipelineRun, error) {
	if s == nil || s.db == nil {
		return core.PipelineRun{}, fmt.Errorf("sqlstore: pipeline run store is not configured")
	}
	record := &pipelineRunRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.PipelineRun{}, fmt.Errorf("sqlstore: pipeline run %q not found", id)
		}
		return core.PipelineRun{}, err
	}
	return record.toDomain(), nil
}

func (s *PipelineRunStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: pipeline run store is not configured")
	}
	return s.db.PingContext(ctx)
}
