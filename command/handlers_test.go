package command

import (
	"context"
	"errors"
	"testing"

	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/inbound"
	"github.com/capsight/go-valuation/pipeline"
	gocmd "github.com/goliatone/go-command"
)

type stubPipelineService struct {
	runFn func(ctx context.Context, options pipeline.RunOptions) (core.PipelineRun, error)
}

func (s stubPipelineService) RunFullPipeline(ctx context.Context, options pipeline.RunOptions) (core.PipelineRun, error) {
	return s.runFn(ctx, options)
}

type stubIngestionService struct {
	receiveFn func(ctx context.Context, req inbound.Request) (inbound.Receipt, error)
}

func (s stubIngestionService) Receive(ctx context.Context, req inbound.Request) (inbound.Receipt, error) {
	return s.receiveFn(ctx, req)
}

func TestRunPipelineCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.PipelineRun{ID: "run-1", Status: core.RunStatusCompleted}
	called := false

	svc := stubPipelineService{
		runFn: func(_ context.Context, options pipeline.RunOptions) (core.PipelineRun, error) {
			called = true
			if options.TenantID != "tenant-1" {
				t.Fatalf("expected tenant-1, got %q", options.TenantID)
			}
			if !options.EnableWebhooks {
				t.Fatalf("expected webhooks enabled")
			}
			return expected, nil
		},
	}

	cmd := NewRunPipelineCommand(svc)
	collector := gocmd.NewResult[core.PipelineRun]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, RunPipelineMessage{Options: pipeline.RunOptions{
		TenantID:       "tenant-1",
		EnableWebhooks: true,
	}})
	if err != nil {
		t.Fatalf("execute run pipeline: %v", err)
	}
	if !called {
		t.Fatalf("expected pipeline service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ID != expected.ID || result.Status != expected.Status {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRunPipelineCommand_PropagatesServiceError(t *testing.T) {
	serviceErr := errors.New("source offline")
	svc := stubPipelineService{
		runFn: func(_ context.Context, _ pipeline.RunOptions) (core.PipelineRun, error) {
			return core.PipelineRun{}, serviceErr
		},
	}

	cmd := NewRunPipelineCommand(svc)
	if err := cmd.Execute(context.Background(), RunPipelineMessage{}); !errors.Is(err, serviceErr) {
		t.Fatalf("expected service error propagation, got %v", err)
	}
}

func TestIngestEventCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := inbound.Receipt{Success: true, IngestionID: "ing-1", ProcessedRecords: 3}
	called := false

	svc := stubIngestionService{
		receiveFn: func(_ context.Context, req inbound.Request) (inbound.Receipt, error) {
			called = true
			if len(req.Body) == 0 {
				t.Fatalf("expected request body")
			}
			return expected, nil
		},
	}

	cmd := NewIngestEventCommand(svc)
	collector := gocmd.NewResult[inbound.Receipt]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, IngestEventMessage{Request: inbound.Request{
		Body:      []byte(`{"event_type":"macro.update"}`),
		Signature: "sha256=abc",
		Timestamp: "1760000000",
	}})
	if err != nil {
		t.Fatalf("execute ingest event: %v", err)
	}
	if !called {
		t.Fatalf("expected ingestion service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected receipt to be stored")
	}
	if result.IngestionID != expected.IngestionID || result.ProcessedRecords != 3 {
		t.Fatalf("unexpected receipt: %#v", result)
	}
}

func TestRunPipelineMessage_ValidateRejectsUnknownStage(t *testing.T) {
	msg := RunPipelineMessage{Options: pipeline.RunOptions{SkipStages: []string{"distillation"}}}
	if err := msg.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown stage")
	}

	valid := RunPipelineMessage{Options: pipeline.RunOptions{SkipStages: []string{core.StageNotification}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected canonical stage to validate, got %v", err)
	}
}
