package command

import (
	"strings"

	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/inbound"
	"github.com/capsight/go-valuation/pipeline"
)

const (
	TypeRunPipeline = "valuation.command.pipeline.run"
	TypeIngestEvent = "valuation.command.ingest.event"
)

type RunPipelineMessage struct {
	Options pipeline.RunOptions
}

func (RunPipelineMessage) Type() string { return TypeRunPipeline }

func (m RunPipelineMessage) Validate() error {
	if m.Options.MaxProperties < 0 {
		return commandValidationError("max_properties", "must not be negative")
	}
	for _, stage := range m.Options.SkipStages {
		if !core.IsCanonicalStage(stage) {
			return commandValidationError("skip_stages", "unknown stage "+strings.TrimSpace(stage))
		}
	}
	return nil
}

type IngestEventMessage struct {
	Request inbound.Request
}

func (IngestEventMessage) Type() string { return TypeIngestEvent }

func (m IngestEventMessage) Validate() error {
	if len(m.Request.Body) == 0 {
		return commandValidationError("body", "is required")
	}
	return nil
}
