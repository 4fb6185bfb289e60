package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/delivery"
	goerrors "github.com/goliatone/go-errors"
)

type stubRunReader struct {
	run core.PipelineRun
	err error
}

func (s stubRunReader) Get(_ context.Context, id string) (core.PipelineRun, error) {
	if s.err != nil {
		return core.PipelineRun{}, s.err
	}
	if s.run.ID != id {
		return core.PipelineRun{}, errors.New("run not found")
	}
	return s.run, nil
}

type stubAttemptReader struct {
	attempts []core.DeliveryAttempt
	err      error
}

func (s stubAttemptReader) ListByIdempotencyKey(_ context.Context, _ string) ([]core.DeliveryAttempt, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.attempts, nil
}

type stubMetricsReader struct {
	metrics delivery.Metrics
}

func (s stubMetricsReader) Metrics() delivery.Metrics {
	return s.metrics
}

type stubHealthReader struct {
	status core.HealthStatus
}

func (s stubHealthReader) HealthCheck(_ context.Context) core.HealthStatus {
	return s.status
}

func TestGetPipelineRunQuery_ReturnsRun(t *testing.T) {
	expected := core.PipelineRun{ID: "run-1", Status: core.RunStatusCompleted, TotalProcessed: 4}
	q := NewGetPipelineRunQuery(stubRunReader{run: expected})

	run, err := q.Query(context.Background(), GetPipelineRunMessage{RunID: "run-1"})
	if err != nil {
		t.Fatalf("query run: %v", err)
	}
	if run.ID != expected.ID || run.TotalProcessed != 4 {
		t.Fatalf("unexpected run: %#v", run)
	}
}

func TestGetPipelineRunQuery_PropagatesReaderError(t *testing.T) {
	readerErr := errors.New("store offline")
	q := NewGetPipelineRunQuery(stubRunReader{err: readerErr})

	if _, err := q.Query(context.Background(), GetPipelineRunMessage{RunID: "run-1"}); !errors.Is(err, readerErr) {
		t.Fatalf("expected reader error propagation, got %v", err)
	}
}

func TestGetPipelineRunQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetPipelineRunQuery
	_, err := q.Query(context.Background(), GetPipelineRunMessage{RunID: "run-1"})
	if err == nil {
		t.Fatalf("expected dependency error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

func TestListDeliveryAttemptsQuery_ReturnsOrderedAttempts(t *testing.T) {
	base := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)
	q := NewListDeliveryAttemptsQuery(stubAttemptReader{attempts: []core.DeliveryAttempt{
		{IdempotencyKey: "key-1", Attempt: 1, Outcome: core.AttemptOutcomeFailed, CreatedAt: base},
		{IdempotencyKey: "key-1", Attempt: 2, Outcome: core.AttemptOutcomeDelivered, CreatedAt: base.Add(time.Second)},
	}})

	attempts, err := q.Query(context.Background(), ListDeliveryAttemptsMessage{IdempotencyKey: "key-1"})
	if err != nil {
		t.Fatalf("query attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[1].Outcome != core.AttemptOutcomeDelivered {
		t.Fatalf("expected delivered final attempt, got %q", attempts[1].Outcome)
	}
}

func TestGetDeliveryMetricsQuery_ReportsCounters(t *testing.T) {
	q := NewGetDeliveryMetricsQuery(stubMetricsReader{metrics: delivery.Metrics{
		Sent:           9,
		Failed:         1,
		Retried:        4,
		ShortCircuited: 2,
		CircuitBreaker: core.CircuitSnapshot{State: core.CircuitHalfOpen},
	}})

	metrics, err := q.Query(context.Background(), GetDeliveryMetricsMessage{})
	if err != nil {
		t.Fatalf("query metrics: %v", err)
	}
	if metrics.Sent != 9 || metrics.Retried != 4 {
		t.Fatalf("unexpected metrics: %#v", metrics)
	}
	if metrics.CircuitBreaker.State != core.CircuitHalfOpen {
		t.Fatalf("expected breaker state passthrough, got %q", metrics.CircuitBreaker.State)
	}
}

func TestGetDeliveryMetricsQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetDeliveryMetricsQuery
	if _, err := q.Query(context.Background(), GetDeliveryMetricsMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
}

func TestGetHealthQuery_ReportsDependencies(t *testing.T) {
	q := NewGetHealthQuery(stubHealthReader{status: core.HealthStatus{
		Healthy: false,
		Dependencies: map[string]core.DependencyHealth{
			"data_source":         {Healthy: true},
			"webhook_destination": {Healthy: false, Detail: "circuit open"},
		},
	}})

	status, err := q.Query(context.Background(), GetHealthMessage{})
	if err != nil {
		t.Fatalf("query health: %v", err)
	}
	if status.Healthy {
		t.Fatalf("expected unhealthy aggregate")
	}
	if status.Dependencies["webhook_destination"].Detail != "circuit open" {
		t.Fatalf("unexpected dependency detail: %#v", status.Dependencies)
	}
}

func TestGetPipelineRunMessage_ValidateRequiresRunID(t *testing.T) {
	err := (GetPipelineRunMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ServiceErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorBadInput, rich.TextCode)
	}
}
