package pipeline

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/capsight/go-valuation/core"
)

// RunOptions shapes one pipeline execution. The zero value runs every
// canonical stage with webhooks disabled.
type RunOptions struct {
	RunID          string
	TenantID       string
	MaxProperties  int
	EnableWebhooks bool
	DryRun         bool
	SkipStages     []string
}

// normalized returns a copy with defaults applied and stage names folded
// to canonical form. Unknown stage names are rejected before a run record
// is ever created.
func (o RunOptions) normalized(config core.PipelineConfig) (RunOptions, error) {
	out := o
	out.RunID = strings.TrimSpace(out.RunID)
	if out.RunID == "" {
		out.RunID = uuid.NewString()
	}
	out.TenantID = strings.TrimSpace(out.TenantID)
	if out.MaxProperties < 1 {
		out.MaxProperties = config.MaxProperties
	}

	seen := map[string]struct{}{}
	normalizedSkips := make([]string, 0, len(out.SkipStages))
	for _, stage := range out.SkipStages {
		stage = strings.TrimSpace(strings.ToLower(stage))
		if stage == "" {
			continue
		}
		if !core.IsCanonicalStage(stage) {
			return RunOptions{}, goerrors.New(
				fmt.Sprintf("pipeline: unknown stage %q, valid stages are %s", stage, strings.Join(core.CanonicalStages(), ", ")),
				goerrors.CategoryBadInput,
			).
				WithCode(http.StatusBadRequest).
				WithTextCode(core.ServiceErrorBadInput).
				WithMetadata(map[string]any{
					"stage":        stage,
					"valid_stages": core.CanonicalStages(),
				})
		}
		if _, duplicate := seen[stage]; duplicate {
			continue
		}
		seen[stage] = struct{}{}
		normalizedSkips = append(normalizedSkips, stage)
	}
	out.SkipStages = normalizedSkips
	return out, nil
}

func (o RunOptions) skips(stage string) bool {
	for _, skipped := range o.SkipStages {
		if skipped == stage {
			return true
		}
	}
	return false
}

// requestedStages returns the canonical sequence minus explicit skips.
func (o RunOptions) requestedStages() []string {
	stages := make([]string, 0, len(core.CanonicalStages()))
	for _, stage := range core.CanonicalStages() {
		if !o.skips(stage) {
			stages = append(stages, stage)
		}
	}
	return stages
}
