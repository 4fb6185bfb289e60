package pipeline

import (
	"context"
	"fmt"

	"github.com/capsight/go-valuation/core"
)

// HealthCheck probes every dependency without running a pipeline. An open
// circuit breaker reports the webhook destination unhealthy because new
// deliveries would short-circuit.
func (o *Orchestrator) HealthCheck(ctx context.Context) core.HealthStatus {
	status := core.HealthStatus{
		Healthy:      true,
		Dependencies: map[string]core.DependencyHealth{},
	}
	if o == nil {
		status.Healthy = false
		status.Dependencies["orchestrator"] = core.DependencyHealth{Detail: "not configured"}
		return status
	}
	if ctx == nil {
		ctx = context.Background()
	}

	status.Dependencies["data_source"] = probe(func() error {
		if o.deps.Source == nil {
			return fmt.Errorf("not configured")
		}
		return o.deps.Source.Ping(ctx)
	})
	status.Dependencies["run_store"] = probe(func() error {
		if o.deps.Runs == nil {
			return fmt.Errorf("not configured")
		}
		return o.deps.Runs.Ping(ctx)
	})

	breaker := core.DependencyHealth{Healthy: true}
	if o.deps.Delivery != nil {
		snapshot := o.deps.Delivery.Circuit()
		if snapshot.State == core.CircuitOpen {
			breaker = core.DependencyHealth{
				Detail: fmt.Sprintf("circuit breaker %s after %d consecutive failures",
					snapshot.State, snapshot.ConsecutiveFailures),
			}
		}
	}
	status.Dependencies["webhook_destination"] = breaker

	for _, dependency := range status.Dependencies {
		if !dependency.Healthy {
			status.Healthy = false
		}
	}
	return status
}

func probe(check func() error) core.DependencyHealth {
	if err := check(); err != nil {
		return core.DependencyHealth{Detail: err.Error()}
	}
	return core.DependencyHealth{Healthy: true}
}
