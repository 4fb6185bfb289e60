package query

import "strings"

const (
	TypeGetPipelineRun       = "valuation.query.pipeline_run.get"
	TypeListDeliveryAttempts = "valuation.query.delivery_attempts.list"
	TypeGetDeliveryMetrics   = "valuation.query.delivery_metrics.get"
	TypeGetHealth            = "valuation.query.health.get"
)

type GetPipelineRunMessage struct {
	RunID string
}

func (GetPipelineRunMessage) Type() string { return TypeGetPipelineRun }

func (m GetPipelineRunMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return queryValidationError("run_id", "is required")
	}
	return nil
}

type ListDeliveryAttemptsMessage struct {
	IdempotencyKey string
}

func (ListDeliveryAttemptsMessage) Type() string { return TypeListDeliveryAttempts }

func (m ListDeliveryAttemptsMessage) Validate() error {
	if strings.TrimSpace(m.IdempotencyKey) == "" {
		return queryValidationError("idempotency_key", "is required")
	}
	return nil
}

type GetDeliveryMetricsMessage struct{}

func (GetDeliveryMetricsMessage) Type() string { return TypeGetDeliveryMetrics }

func (GetDeliveryMetricsMessage) Validate() error { return nil }

type GetHealthMessage struct{}

func (GetHealthMessage) Type() string { return TypeGetHealth }

func (GetHealthMessage) Validate() error { return nil }
