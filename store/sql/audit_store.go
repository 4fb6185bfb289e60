package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/capsight/go-valuation/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type IngestionAuditStore struct {
	db   *bun.DB
	repo repository.Repository[*ingestionAuditRecord]
}

func NewIngestionAuditStore(db *bun.DB) (*IngestionAuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ingestionAuditRecord](db, ingestionAuditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ingestion audit repository wiring: %w", err)
		}
	}
	return &IngestionAuditStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *IngestionAuditStore) Append(ctx context.Context, audit core.IngestionAudit) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ingestion audit store is not configured")
	}
	if strings.TrimSpace(audit.ID) == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	record := newIngestionAuditRecord(audit)
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

// ListRecent returns the newest audit entries up to limit, most recent first.
func (s *IngestionAuditStore) ListRecent(ctx context.Context, limit int) ([]core.IngestionAudit, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ingestion audit store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []ingestionAuditRecord
	err := s.db.NewSelect().
		Model(&records).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	audits := make([]core.IngestionAudit, 0, len(records))
	for i := range records {
		audits = append(audits, records[i].toDomain())
	}
	return audits, nil
}
