package query

import (
	"context"

	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/delivery"
)

type PipelineRunReader interface {
	Get(ctx context.Context, id string) (core.PipelineRun, error)
}

type DeliveryAttemptReader interface {
	ListByIdempotencyKey(ctx context.Context, key string) ([]core.DeliveryAttempt, error)
}

type DeliveryMetricsReader interface {
	Metrics() delivery.Metrics
}

type HealthReader interface {
	HealthCheck(ctx context.Context) core.HealthStatus
}

type GetPipelineRunQuery struct {
	reader PipelineRunReader
}

func NewGetPipelineRunQuery(reader PipelineRunReader) *GetPipelineRunQuery {
	return &GetPipelineRunQuery{reader: reader}
}

func (q *GetPipelineRunQuery) Query(ctx context.Context, msg GetPipelineRunMessage) (core.PipelineRun, error) {
	if q == nil || q.reader == nil {
		return core.PipelineRun{}, queryDependencyError("query: pipeline run reader is required")
	}
	return q.reader.Get(ctx, msg.RunID)
}

type ListDeliveryAttemptsQuery struct {
	reader DeliveryAttemptReader
}

func NewListDeliveryAttemptsQuery(reader DeliveryAttemptReader) *ListDeliveryAttemptsQuery {
	return &ListDeliveryAttemptsQuery{reader: reader}
}

func (q *ListDeliveryAttemptsQuery) Query(
	ctx context.Context,
	msg ListDeliveryAttemptsMessage,
) ([]core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery attempt reader is required")
	}
	return q.reader.ListByIdempotencyKey(ctx, msg.IdempotencyKey)
}

type GetDeliveryMetricsQuery struct {
	reader DeliveryMetricsReader
}

func NewGetDeliveryMetricsQuery(reader DeliveryMetricsReader) *GetDeliveryMetricsQuery {
	return &GetDeliveryMetricsQuery{reader: reader}
}

func (q *GetDeliveryMetricsQuery) Query(_ context.Context, _ GetDeliveryMetricsMessage) (delivery.Metrics, error) {
	if q == nil || q.reader == nil {
		return delivery.Metrics{}, queryDependencyError("query: delivery metrics reader is required")
	}
	return q.reader.Metrics(), nil
}

type GetHealthQuery struct {
	reader HealthReader
}

func NewGetHealthQuery(reader HealthReader) *GetHealthQuery {
	return &GetHealthQuery{reader: reader}
}

func (q *GetHealthQuery) Query(ctx context.Context, _ GetHealthMessage) (core.HealthStatus, error) {
	if q == nil || q.reader == nil {
		return core.HealthStatus{}, queryDependencyError("query: health reader is required")
	}
	return q.reader.HealthCheck(ctx), nil
}
