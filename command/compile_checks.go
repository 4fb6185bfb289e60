package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RunPipelineMessage] = (*RunPipelineCommand)(nil)
	_ gocmd.Commander[IngestEventMessage] = (*IngestEventCommand)(nil)
)
