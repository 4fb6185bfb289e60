package gocommand

import (
	"context"
	"fmt"
	"strings"

	valuationcommand "github.com/capsight/go-valuation/command"
	"github.com/capsight/go-valuation/query"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// RuntimeDependencies holds the services and readers backing the valuation
// command/query surface.
type RuntimeDependencies struct {
	Pipeline  valuationcommand.PipelineService
	Ingestion valuationcommand.IngestionService
	Runs      query.PipelineRunReader
	Attempts  query.DeliveryAttemptReader
	Metrics   query.DeliveryMetricsReader
	Health    query.HealthReader
}

// Runtime keeps the dispatcher subscriptions alive until Close.
type Runtime struct {
	subscriptions []commanddispatcher.Subscription
}

func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for _, sub := range r.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	r.subscriptions = nil
}

// RegisterValuationRuntime registers the pipeline run and ingest commands
// plus the run, delivery attempt, and health queries against a single
// registry, then initializes it. Nil dependencies are skipped so callers can
// stand up partial runtimes in tests.
func RegisterValuationRuntime(adapter *RegistryAdapter, deps RuntimeDependencies) (*Runtime, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}

	runtime := &Runtime{}
	fail := func(err error) (*Runtime, error) {
		runtime.Close()
		return nil, err
	}

	if deps.Pipeline != nil {
		sub, err := RegisterAndSubscribe(adapter, valuationcommand.NewRunPipelineCommand(deps.Pipeline))
		if err != nil {
			return fail(err)
		}
		runtime.subscriptions = append(runtime.subscriptions, sub)
	}
	if deps.Ingestion != nil {
		sub, err := RegisterAndSubscribe(adapter, valuationcommand.NewIngestEventCommand(deps.Ingestion))
		if err != nil {
			return fail(err)
		}
		runtime.subscriptions = append(runtime.subscriptions, sub)
	}
	if deps.Runs != nil {
		sub, err := RegisterAndSubscribeQuery(adapter, query.NewGetPipelineRunQuery(deps.Runs))
		if err != nil {
			return fail(err)
		}
		runtime.subscriptions = append(runtime.subscriptions, sub)
	}
	if deps.Attempts != nil {
		sub, err := RegisterAndSubscribeQuery(adapter, query.NewListDeliveryAttemptsQuery(deps.Attempts))
		if err != nil {
			return fail(err)
		}
		runtime.subscriptions = append(runtime.subscriptions, sub)
	}
	if deps.Metrics != nil {
		sub, err := RegisterAndSubscribeQuery(adapter, query.NewGetDeliveryMetricsQuery(deps.Metrics))
		if err != nil {
			return fail(err)
		}
		runtime.subscriptions = append(runtime.subscriptions, sub)
	}
	if deps.Health != nil {
		sub, err := RegisterAndSubscribeQuery(adapter, query.NewGetHealthQuery(deps.Health))
		if err != nil {
			return fail(err)
		}
		runtime.subscriptions = append(runtime.subscriptions, sub)
	}

	if err := adapter.Initialize(); err != nil {
		return fail(err)
	}
	return runtime, nil
}
