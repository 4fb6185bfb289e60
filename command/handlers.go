package command

import (
	"context"

	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/inbound"
	"github.com/capsight/go-valuation/pipeline"
	gocmd "github.com/goliatone/go-command"
)

type PipelineService interface {
	RunFullPipeline(ctx context.Context, options pipeline.RunOptions) (core.PipelineRun, error)
}

type IngestionService interface {
	Receive(ctx context.Context, req inbound.Request) (inbound.Receipt, error)
}

type RunPipelineCommand struct {
	service PipelineService
}

func NewRunPipelineCommand(service PipelineService) *RunPipelineCommand {
	return &RunPipelineCommand{service: service}
}

func (c *RunPipelineCommand) Execute(ctx context.Context, msg RunPipelineMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: pipeline service is required")
	}
	out, err := c.service.RunFullPipeline(ctx, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IngestEventCommand struct {
	service IngestionService
}

func NewIngestEventCommand(service IngestionService) *IngestEventCommand {
	return &IngestEventCommand{service: service}
}

func (c *IngestEventCommand) Execute(ctx context.Context, msg IngestEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingestion service is required")
	}
	out, err := c.service.Receive(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
