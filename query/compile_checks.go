package query

import (
	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/delivery"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetPipelineRunMessage, core.PipelineRun]              = (*GetPipelineRunQuery)(nil)
	_ gocmd.Querier[ListDeliveryAttemptsMessage, []core.DeliveryAttempt] = (*ListDeliveryAttemptsQuery)(nil)
	_ gocmd.Querier[GetDeliveryMetricsMessage, delivery.Metrics]         = (*GetDeliveryMetricsQuery)(nil)
	_ gocmd.Querier[GetHealthMessage, core.HealthStatus]                 = (*GetHealthQuery)(nil)
)
