package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/delivery"
	"github.com/capsight/go-valuation/inbound"
	"github.com/capsight/go-valuation/pipeline"
	"github.com/capsight/go-valuation/ratelimit"
)

// IngestReceiver accepts raw provider webhook deliveries.
type IngestReceiver interface {
	Receive(ctx context.Context, req inbound.Request) (inbound.Receipt, error)
}

// PipelineRunner starts one end-to-end valuation run.
type PipelineRunner interface {
	RunFullPipeline(ctx context.Context, options pipeline.RunOptions) (core.PipelineRun, error)
}

// HealthChecker probes dependency health without running a pipeline.
type HealthChecker interface {
	HealthCheck(ctx context.Context) core.HealthStatus
}

// MetricsSource exposes outbound delivery counters.
type MetricsSource interface {
	Metrics() delivery.Metrics
}

// Dependencies carries the collaborators behind the HTTP surface. Receiver,
// Pipeline, and Health are required; Deliveries and Limiter degrade to
// zero metrics and an unlimited surface.
type Dependencies struct {
	Receiver   IngestReceiver
	Pipeline   PipelineRunner
	Health     HealthChecker
	Deliveries MetricsSource
	Limiter    *ratelimit.FixedWindowLimiter
	Logger     core.Logger
}

// NewRouter wires the public endpoints.
// POST /webhooks/ingest, POST /pipeline/runs, GET /health, GET /metrics
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Receiver == nil {
		return nil, fmt.Errorf("server: ingest receiver is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("server: pipeline runner is required")
	}
	if deps.Health == nil {
		return nil, fmt.Errorf("server: health checker is required")
	}

	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(rateLimitMiddleware(deps.Limiter))

	r.POST("/webhooks/ingest", ingestHandler(deps))
	r.POST("/pipeline/runs", runHandler(deps))

	r.GET("/health", func(c *gin.Context) {
		status := deps.Health.HealthCheck(c.Request.Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	r.GET("/metrics", func(c *gin.Context) {
		metrics := delivery.Metrics{CircuitBreaker: core.CircuitSnapshot{State: core.CircuitClosed}}
		if deps.Deliveries != nil {
			metrics = deps.Deliveries.Metrics()
		}
		c.JSON(http.StatusOK, metrics)
	})

	return r, nil
}

func ingestHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}

		receipt, err := deps.Receiver.Receive(c.Request.Context(), inbound.RequestFromHTTP(body, c.Request.Header))
		if receipt.StatusCode == 0 {
			receipt.StatusCode = http.StatusInternalServerError
			if err == nil {
				receipt.StatusCode = http.StatusOK
			}
		}
		if err != nil {
			core.LogError(c.Request.Context(), deps.Logger, "inbound delivery rejected", map[string]any{
				"request_id":   requestID(c),
				"ingestion_id": receipt.IngestionID,
				"status_code":  receipt.StatusCode,
				"error":        err.Error(),
			})
		}
		c.JSON(receipt.StatusCode, receipt)
	}
}

type runRequest struct {
	RunID          string   `json:"run_id"`
	TenantID       string   `json:"tenant_id"`
	// Pointer so an explicit zero can be told apart from an absent field.
	MaxProperties  *int     `json:"max_properties"`
	EnableWebhooks bool     `json:"enable_webhooks"`
	DryRun         bool     `json:"dry_run"`
	SkipStages     []string `json:"skip_stages"`
}

type stageResultView struct {
	Stage      string   `json:"stage"`
	Status     string   `json:"status"`
	Processed  int      `json:"processed"`
	Errors     []string `json:"errors,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

type runResponse struct {
	ID                   string            `json:"id"`
	Status               string            `json:"status"`
	StartedAt            time.Time         `json:"started_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	RequestedStages      []string          `json:"requested_stages"`
	StageResults         []stageResultView `json:"stage_results"`
	TotalProcessed       int               `json:"total_processed"`
	SuccessfulProperties int               `json:"successful_properties"`
	FailedProperties     int               `json:"failed_properties"`
	WebhookEventsSent    int               `json:"webhook_events_sent"`
	WebhookEventsFailed  int               `json:"webhook_events_failed"`
	DryRun               bool              `json:"dry_run"`
	LastError            string            `json:"last_error,omitempty"`
}

func newRunResponse(run core.PipelineRun) runResponse {
	out := runResponse{
		ID:                   run.ID,
		Status:               string(run.Status),
		StartedAt:            run.StartedAt,
		CompletedAt:          run.CompletedAt,
		RequestedStages:      run.RequestedStages,
		StageResults:         make([]stageResultView, 0, len(run.StageResults)),
		TotalProcessed:       run.TotalProcessed,
		SuccessfulProperties: run.SuccessfulProperties,
		FailedProperties:     run.FailedProperties,
		WebhookEventsSent:    run.WebhookEventsSent,
		WebhookEventsFailed:  run.WebhookEventsFailed,
		DryRun:               run.DryRun,
		LastError:            run.LastError,
	}
	if out.RequestedStages == nil {
		out.RequestedStages = []string{}
	}
	for _, result := range run.StageResults {
		out.StageResults = append(out.StageResults, stageResultView{
			Stage:      result.Stage,
			Status:     string(result.Status),
			Processed:  result.Processed,
			Errors:     result.Errors,
			DurationMS: result.Duration.Milliseconds(),
		})
	}
	return out
}

func runHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req runRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		maxProperties := 0
		if req.MaxProperties != nil {
			if *req.MaxProperties <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "max_properties must be positive"})
				return
			}
			maxProperties = *req.MaxProperties
		}

		run, err := deps.Pipeline.RunFullPipeline(c.Request.Context(), pipeline.RunOptions{
			RunID:          req.RunID,
			TenantID:       req.TenantID,
			MaxProperties:  maxProperties,
			EnableWebhooks: req.EnableWebhooks,
			DryRun:         req.DryRun,
			SkipStages:     req.SkipStages,
		})
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, newRunResponse(run))
	}
}

func renderError(c *gin.Context, err error) {
	rich := core.MapError(err)
	c.JSON(rich.Code, gin.H{
		"error":     rich.Message,
		"text_code": rich.TextCode,
	})
}
