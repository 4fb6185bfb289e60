package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/capsight/go-valuation/cache"
	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/delivery"
)

// EventSender is the delivery surface the notification stage depends on.
type EventSender interface {
	Send(ctx context.Context, event core.OutboundEvent, requestID string) (delivery.Result, error)
	Circuit() core.CircuitSnapshot
}

const (
	outboundSchemaVersion = "1.0"
	outboundEventType     = "valuation.updated"
	valuationModelName    = "income-capitalization"
	valuationModelVersion = "2026.01"
)

// Dependencies carries every collaborator the orchestrator touches. Source,
// MarketData, and Runs are required; the rest degrade to no-ops.
type Dependencies struct {
	Source      core.DataSource
	MarketData  core.MarketDataStore
	Runs        core.PipelineRunStore
	Snapshots   core.PropertySnapshotStore
	Delivery    EventSender
	Invalidator core.CacheInvalidator
	Logger      core.Logger
	Metrics     core.MetricsRecorder
}

// Orchestrator drives the canonical stage sequence over a batch of
// properties. Item failures isolate; a stage-level failure aborts the run
// and marks every unstarted stage not-run.
type Orchestrator struct {
	deps   Dependencies
	config core.PipelineConfig
	Now    func() time.Time
}

func NewOrchestrator(deps Dependencies, config core.PipelineConfig) (*Orchestrator, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("pipeline: data source is required")
	}
	if deps.MarketData == nil {
		return nil, fmt.Errorf("pipeline: market data store is required")
	}
	if deps.Runs == nil {
		return nil, fmt.Errorf("pipeline: run store is required")
	}
	defaults := core.DefaultConfig().Pipeline
	if config.MaxProperties < 1 {
		config.MaxProperties = defaults.MaxProperties
	}
	if config.StageConcurrency < 1 {
		config.StageConcurrency = defaults.StageConcurrency
	}
	if deps.Metrics == nil {
		deps.Metrics = core.NopMetricsRecorder{}
	}
	return &Orchestrator{
		deps:   deps,
		config: config,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// runState accumulates intermediate results across stages for one run.
type runState struct {
	options    RunOptions
	properties []core.Property

	mu           sync.Mutex
	failed       map[string]string
	fundamentals map[string]core.MarketFundamentals
	compCounts   map[string]int
	macro        core.MacroIndicators
	appraisals   map[string]appraisal
	snapshots    []core.PropertySnapshot
	sent         int
	sendFailed   int
}

func (s *runState) failItem(propertyID string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, already := s.failed[propertyID]; !already {
		s.failed[propertyID] = reason
	}
}

func (s *runState) isFailed(propertyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, failed := s.failed[propertyID]
	return failed
}

func (s *runState) liveProperties() []core.Property {
	live := make([]core.Property, 0, len(s.properties))
	for _, property := range s.properties {
		if !s.isFailed(property.ID) {
			live = append(live, property)
		}
	}
	return live
}

type stageFunc func(ctx context.Context, state *runState, result *core.StageResult) error

// RunFullPipeline executes one end-to-end run. The returned PipelineRun is
// always populated, including on abort, so callers can inspect partial
// progress.
func (o *Orchestrator) RunFullPipeline(ctx context.Context, options RunOptions) (core.PipelineRun, error) {
	if o == nil {
		return core.PipelineRun{}, goerrors.New("pipeline: orchestrator is nil", goerrors.CategoryInternal).
			WithTextCode(core.ServiceErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	normalized, err := options.normalized(o.config)
	if err != nil {
		return core.PipelineRun{}, err
	}
	options = normalized

	run := core.PipelineRun{
		ID:              options.RunID,
		Status:          core.RunStatusRunning,
		StartedAt:       o.now(),
		RequestedStages: options.requestedStages(),
		DryRun:          options.DryRun,
	}
	created, err := o.deps.Runs.Create(ctx, run)
	if err != nil {
		return core.PipelineRun{}, goerrors.Wrap(err, goerrors.CategoryOperation, "pipeline: create run record").
			WithTextCode(core.ServiceErrorDependencyUnavailable)
	}
	run = created

	state := &runState{
		options:      options,
		failed:       map[string]string{},
		fundamentals: map[string]core.MarketFundamentals{},
		compCounts:   map[string]int{},
		appraisals:   map[string]appraisal{},
	}

	stages := []struct {
		name string
		fn   stageFunc
	}{
		{core.StageIngestion, o.stageIngestion},
		{core.StageNormalization, o.stageNormalization},
		{core.StageEnrichment, o.stageEnrichment},
		{core.StageValuation, o.stageValuation},
		{core.StageScoring, o.stageScoring},
		{core.StagePersistence, o.stagePersistence},
		{core.StageNotification, o.stageNotification},
	}

	for index, stage := range stages {
		if options.skips(stage.name) {
			run.StageResults = append(run.StageResults, core.StageResult{
				Stage:  stage.name,
				Status: core.StageStatusSkipped,
			})
			continue
		}

		started := o.now()
		result := core.StageResult{Stage: stage.name, Status: core.StageStatusSuccess}
		stageErr := stage.fn(ctx, state, &result)
		result.Duration = o.now().Sub(started)

		if stageErr != nil {
			result.Status = core.StageStatusFailed
			result.Errors = append(result.Errors, stageErr.Error())
			run.StageResults = append(run.StageResults, result)
			for _, unstarted := range stages[index+1:] {
				run.StageResults = append(run.StageResults, core.StageResult{
					Stage:  unstarted.name,
					Status: core.StageStatusNotRun,
				})
			}
			return o.finishRun(ctx, run, state, core.RunStatusFailed, stageErr)
		}

		if len(result.Errors) > 0 {
			result.Status = core.StageStatusPartial
		}
		run.StageResults = append(run.StageResults, result)
		core.RecordHistogram(ctx, o.deps.Metrics, "pipeline.stage_duration_ms",
			float64(result.Duration.Milliseconds()), map[string]string{"stage": stage.name})
	}

	return o.finishRun(ctx, run, state, core.RunStatusCompleted, nil)
}

func (o *Orchestrator) finishRun(
	ctx context.Context,
	run core.PipelineRun,
	state *runState,
	status core.RunStatus,
	cause error,
) (core.PipelineRun, error) {
	completedAt := o.now()
	run.Status = status
	run.CompletedAt = &completedAt
	run.TotalProcessed = len(state.properties)
	run.FailedProperties = len(state.failed)
	run.SuccessfulProperties = run.TotalProcessed - run.FailedProperties
	run.WebhookEventsSent = state.sent
	run.WebhookEventsFailed = state.sendFailed
	if cause != nil {
		run.LastError = cause.Error()
	}

	updated, updateErr := o.deps.Runs.Update(ctx, run)
	if updateErr != nil {
		core.LogError(ctx, o.deps.Logger, "pipeline run update failed", map[string]any{
			"run_id": run.ID,
			"error":  updateErr.Error(),
		})
		updated = run
	}

	core.LogInfo(ctx, o.deps.Logger, "pipeline run finished", map[string]any{
		"run_id":     updated.ID,
		"status":     string(updated.Status),
		"total":      updated.TotalProcessed,
		"successful": updated.SuccessfulProperties,
		"failed":     updated.FailedProperties,
		"dry_run":    updated.DryRun,
	})
	core.RecordCounter(ctx, o.deps.Metrics, "pipeline.runs", 1, map[string]string{"status": string(updated.Status)})

	if cause != nil {
		return updated, goerrors.Wrap(cause, goerrors.CategoryOperation, "pipeline: run aborted").
			WithTextCode(core.ServiceErrorInternal).
			WithMetadata(map[string]any{"run_id": updated.ID})
	}
	return updated, nil
}

func (o *Orchestrator) stageIngestion(ctx context.Context, state *runState, result *core.StageResult) error {
	properties, err := o.deps.Source.ListProperties(ctx, state.options.MaxProperties)
	if err != nil {
		return fmt.Errorf("pipeline: list properties: %w", err)
	}
	if state.options.TenantID != "" {
		filtered := properties[:0]
		for _, property := range properties {
			if property.TenantID == state.options.TenantID {
				filtered = append(filtered, property)
			}
		}
		properties = filtered
	}
	state.properties = properties
	result.Processed = len(properties)
	return nil
}

func (o *Orchestrator) stageNormalization(_ context.Context, state *runState, result *core.StageResult) error {
	kept := state.properties[:0]
	for _, property := range state.properties {
		property.ID = strings.TrimSpace(property.ID)
		property.Market = strings.TrimSpace(strings.ToLower(property.Market))
		property.PropertyType = strings.TrimSpace(strings.ToLower(property.PropertyType))

		// Records without an id cannot be tracked per item. Drop them from
		// the batch so they are never valued, persisted, or counted.
		if property.ID == "" {
			result.Errors = append(result.Errors, "property with empty id dropped")
			continue
		}

		switch {
		case property.Market == "":
			state.failItem(property.ID, "missing market")
			result.Errors = append(result.Errors, fmt.Sprintf("property %s: missing market", property.ID))
		case property.SquareFeet <= 0:
			state.failItem(property.ID, "invalid square footage")
			result.Errors = append(result.Errors, fmt.Sprintf("property %s: invalid square footage", property.ID))
		default:
			result.Processed++
		}
		kept = append(kept, property)
	}
	state.properties = kept
	return nil
}

func (o *Orchestrator) stageEnrichment(ctx context.Context, state *runState, result *core.StageResult) error {
	macro, err := o.deps.MarketData.GetMacro(ctx)
	if err != nil {
		macro, err = o.deps.Source.Macro(ctx)
		if err != nil {
			return fmt.Errorf("pipeline: macro indicators unavailable: %w", err)
		}
	}
	state.macro = macro

	markets := map[string]struct{}{}
	for _, property := range state.liveProperties() {
		markets[property.Market] = struct{}{}
	}

	for market := range markets {
		fundamentals, err := o.fetchFundamentals(ctx, market)
		if err != nil {
			for _, property := range state.liveProperties() {
				if property.Market == market {
					state.failItem(property.ID, "fundamentals unavailable")
					result.Errors = append(result.Errors, fmt.Sprintf("property %s: fundamentals unavailable for %s", property.ID, market))
				}
			}
			continue
		}
		state.fundamentals[market] = fundamentals

		count, countErr := o.deps.MarketData.CountComps(ctx, market)
		if countErr != nil {
			count = 0
		}
		state.compCounts[market] = count
	}
	result.Processed = len(state.liveProperties())
	return nil
}

// fetchFundamentals prefers ingested market data and falls back to the
// upstream feed for markets no inbound event has covered yet.
func (o *Orchestrator) fetchFundamentals(ctx context.Context, market string) (core.MarketFundamentals, error) {
	fundamentals, err := o.deps.MarketData.GetFundamentals(ctx, market)
	if err == nil {
		return fundamentals, nil
	}
	return o.deps.Source.Fundamentals(ctx, market)
}

func (o *Orchestrator) stageValuation(ctx context.Context, state *runState, result *core.StageResult) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.StageConcurrency)

	var mu sync.Mutex
	for _, property := range state.liveProperties() {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			fundamentals, ok := state.fundamentals[property.Market]
			if !ok {
				state.failItem(property.ID, "no fundamentals")
				mu.Lock()
				result.Errors = append(result.Errors, fmt.Sprintf("property %s: no fundamentals", property.ID))
				mu.Unlock()
				return nil
			}
			valued, err := appraise(property, fundamentals, state.macro)
			if err != nil {
				state.failItem(property.ID, err.Error())
				mu.Lock()
				result.Errors = append(result.Errors, err.Error())
				mu.Unlock()
				return nil
			}
			state.mu.Lock()
			state.appraisals[property.ID] = valued
			state.mu.Unlock()
			mu.Lock()
			result.Processed++
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("pipeline: valuation canceled: %w", err)
	}
	sortStageErrors(result)
	return nil
}

func (o *Orchestrator) stageScoring(_ context.Context, state *runState, result *core.StageResult) error {
	now := o.now()
	for _, property := range state.liveProperties() {
		valued, ok := state.appraisals[property.ID]
		if !ok {
			continue
		}
		fundamentals := state.fundamentals[property.Market]
		quality := score(fundamentals, state.compCounts[property.Market], state.macro, now)

		state.snapshots = append(state.snapshots, core.PropertySnapshot{
			ID:            uuid.NewString(),
			PropertyID:    property.ID,
			TenantID:      property.TenantID,
			Market:        property.Market,
			PropertyType:  property.PropertyType,
			SquareFeet:    property.SquareFeet,
			NOI:           valued.NOI,
			CurrentValue:  valued.CurrentValue,
			ForecastValue: valued.ForecastValue,
			Score:         quality,
			ValuedAt:      now,
			RunID:         state.options.RunID,
		})
		result.Processed++
	}
	return nil
}

func (o *Orchestrator) stagePersistence(ctx context.Context, state *runState, result *core.StageResult) error {
	if state.options.DryRun {
		result.Status = core.StageStatusSkipped
		return nil
	}
	if o.deps.Snapshots == nil {
		return fmt.Errorf("pipeline: snapshot store is not configured")
	}
	if len(state.snapshots) == 0 {
		return nil
	}
	persisted, err := o.deps.Snapshots.UpsertBatch(ctx, state.snapshots)
	if err != nil {
		return fmt.Errorf("pipeline: persist snapshots: %w", err)
	}
	result.Processed = persisted

	if o.deps.Invalidator != nil {
		markets := map[string]struct{}{}
		for _, snapshot := range state.snapshots {
			markets[snapshot.Market] = struct{}{}
		}
		for market := range markets {
			o.deps.Invalidator.Invalidate(ctx, cache.ValuationsScope(market))
		}
	}
	return nil
}

func (o *Orchestrator) stageNotification(ctx context.Context, state *runState, result *core.StageResult) error {
	if state.options.DryRun || !state.options.EnableWebhooks {
		result.Status = core.StageStatusSkipped
		return nil
	}
	if o.deps.Delivery == nil {
		return fmt.Errorf("pipeline: delivery client is not configured")
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.StageConcurrency)

	var mu sync.Mutex
	for _, snapshot := range state.snapshots {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			event := o.outboundEvent(snapshot)
			sendResult, err := o.deps.Delivery.Send(groupCtx, event, uuid.NewString())
			mu.Lock()
			defer mu.Unlock()
			if err != nil || !sendResult.Success {
				state.sendFailed++
				reason := fmt.Sprintf("property %s: webhook delivery failed", snapshot.PropertyID)
				if err != nil {
					reason = fmt.Sprintf("%s: %v", reason, err)
				}
				result.Errors = append(result.Errors, reason)
				return nil
			}
			state.sent++
			result.Processed++
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("pipeline: notification canceled: %w", err)
	}
	sortStageErrors(result)
	return nil
}

func (o *Orchestrator) outboundEvent(snapshot core.PropertySnapshot) core.OutboundEvent {
	valued := snapshot.ValuedAt
	return core.OutboundEvent{
		SchemaVersion: outboundSchemaVersion,
		Type:          outboundEventType,
		TenantID:      snapshot.TenantID,
		PropertyID:    snapshot.PropertyID,
		Market:        snapshot.Market,
		Model: core.ModelDescriptor{
			Name:    valuationModelName,
			Version: valuationModelVersion,
		},
		CurrentValue: core.Estimate{
			Value:       snapshot.CurrentValue,
			Currency:    "USD",
			AsOf:        valued.Format(time.RFC3339),
			Methodology: valuationModelName,
		},
		Forecast: core.Estimate{
			Value:    snapshot.ForecastValue,
			Currency: "USD",
			AsOf:     valued.AddDate(0, 12, 0).Format(time.RFC3339),
		},
		Provenance: core.Provenance{
			RunID:       snapshot.RunID,
			Source:      "go-valuation",
			GeneratedAt: valued.Format(time.RFC3339),
		},
		Drivers: []core.ValueDriver{
			{Name: "noi", Impact: snapshot.NOI},
			{Name: "score", Impact: snapshot.Score},
		},
	}
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// sortStageErrors keeps concurrent stage output deterministic for callers
// comparing run records.
func sortStageErrors(result *core.StageResult) {
	sort.Strings(result.Errors)
}
