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

type DeliveryAttemptStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryAttemptRecord]
}

func NewDeliveryAttemptStore(db *bun.DB) (*DeliveryAttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryAttemptRecord](db, deliveryAttemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery attempt repository wiring: %w", err)
		}
	}
	return &DeliveryAttemptStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *DeliveryAttemptStore) Append(ctx context.Context, attempt core.DeliveryAttempt) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	if strings.TrimSpace(attempt.ID) == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	record := newDeliveryAttemptRecord(attempt)
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (s *DeliveryAttemptStore) ListByIdempotencyKey(ctx context.Context, key string) ([]core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sqlstore: idempotency key is required")
	}
	var records []deliveryAttemptRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.idempotency_key = ?", key).
		Order("created_at ASC", "attempt ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	attempts := make([]core.DeliveryAttempt, 0, len(records))
	for i := range records {
		attempts = append(attempts, records[i].toDomain())
	}
	return attempts, nil
}
