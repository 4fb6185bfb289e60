package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/signer"
)

const (
	HeaderSignature   = "X-Capsight-Signature"
	HeaderPayloadHash = "X-Payload-Hash"
	HeaderRequestID   = "X-Request-Id"
	HeaderTimestamp   = "X-Timestamp"
)

// Doer is the minimal HTTP client surface, injectable for tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	Destination      string
	Secret           string
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	RequestTimeout   time.Duration
	MaxPayloadBytes  int
	FailureThreshold int
	Cooldown         time.Duration
}

// ConfigFromCore flattens the service configuration into the client view.
func ConfigFromCore(cfg core.Config) Config {
	return Config{
		Destination:      cfg.Webhook.Destination,
		Secret:           cfg.Webhook.Secret,
		MaxAttempts:      cfg.Delivery.MaxAttempts,
		InitialBackoff:   cfg.Delivery.InitialBackoff,
		MaxBackoff:       cfg.Delivery.MaxBackoff,
		RequestTimeout:   cfg.Delivery.RequestTimeout,
		MaxPayloadBytes:  cfg.Delivery.MaxPayloadBytes,
		FailureThreshold: cfg.Delivery.FailureThreshold,
		Cooldown:         cfg.Delivery.Cooldown,
	}
}

func (c Config) withDefaults() Config {
	defaults := core.DefaultConfig().Delivery
	if c.MaxAttempts < 1 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = defaults.MaxPayloadBytes
	}
	if c.FailureThreshold < 1 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaults.Cooldown
	}
	return c
}

// Result reports one Send call, counting every network attempt made.
type Result struct {
	Success        bool
	Outcome        string
	StatusCode     int
	Attempts       int
	Duration       time.Duration
	IdempotencyKey string
	RequestID      string
}

// Metrics is a point-in-time snapshot of delivery counters.
type Metrics struct {
	Sent           int64                `json:"sent"`
	Failed         int64                `json:"failed"`
	Retried        int64                `json:"retried"`
	ShortCircuited int64                `json:"short_circuited"`
	CircuitBreaker core.CircuitSnapshot `json:"circuit_breaker"`
}

type Option func(*Client)

func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(recorder core.MetricsRecorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

func WithAttemptStore(store core.DeliveryAttemptStore) Option {
	return func(c *Client) {
		c.attempts = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithJitter(jitter func(time.Duration) time.Duration) Option {
	return func(c *Client) {
		if jitter != nil {
			c.jitter = jitter
		}
	}
}

func WithWait(wait func(ctx context.Context, delay time.Duration) error) Option {
	return func(c *Client) {
		if wait != nil {
			c.wait = wait
		}
	}
}

// Client delivers outbound webhook events with bounded retries behind a
// circuit breaker. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient Doer
	breaker    *CircuitBreaker
	attempts   core.DeliveryAttemptStore
	logger     core.Logger
	metrics    core.MetricsRecorder

	now    func() time.Time
	jitter func(time.Duration) time.Duration
	wait   func(ctx context.Context, delay time.Duration) error

	mu             sync.Mutex
	sent           int64
	failed         int64
	retried        int64
	shortCircuited int64
}

func New(config Config, opts ...Option) *Client {
	config = config.withDefaults()
	client := &Client{
		config:     config,
		httpClient: &http.Client{},
		breaker:    NewCircuitBreaker(config.FailureThreshold, config.Cooldown),
		metrics:    core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
		jitter: defaultJitter,
		wait:   waitWithContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Send delivers the event to the configured destination. A non-2xx status or
// transport error is retried with capped exponential backoff; cancellation
// stops immediately and is never counted against the circuit breaker.
func (c *Client) Send(ctx context.Context, event core.OutboundEvent, requestID string) (Result, error) {
	if c == nil {
		return Result{}, goerrors.New("delivery: client is nil", goerrors.CategoryInternal).
			WithTextCode(core.ServiceErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	result := Result{RequestID: requestID}

	if strings.TrimSpace(c.config.Destination) == "" {
		return result, goerrors.New("delivery: destination is not configured", goerrors.CategoryBadInput).
			WithTextCode(core.ServiceErrorBadInput)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return result, goerrors.Wrap(err, goerrors.CategoryBadInput, "delivery: encode event").
			WithTextCode(core.ServiceErrorBadInput)
	}
	if len(body) > c.config.MaxPayloadBytes {
		return result, goerrors.New("delivery: payload exceeds size limit", goerrors.CategoryBadInput).
			WithTextCode(core.ServiceErrorBadInput).
			WithMetadata(map[string]any{
				"payload_bytes": len(body),
				"limit_bytes":   c.config.MaxPayloadBytes,
			})
	}

	key, err := signer.IdempotencyKey(event)
	if err != nil {
		return result, goerrors.Wrap(err, goerrors.CategoryInternal, "delivery: derive idempotency key").
			WithTextCode(core.ServiceErrorInternal)
	}
	result.IdempotencyKey = key

	allowed, trial := c.breaker.Allow()
	if !allowed {
		c.count(&c.shortCircuited)
		result.Outcome = core.AttemptOutcomeShortCircuited
		c.recordAttempt(ctx, result, 0, core.AttemptOutcomeShortCircuited, 0, 0)
		core.RecordCounter(ctx, c.metrics, "delivery.short_circuited", 1, nil)
		return result, goerrors.New("delivery: circuit breaker is open", goerrors.CategoryExternal).
			WithTextCode(core.ServiceErrorDeliveryFailed).
			WithMetadata(map[string]any{"idempotency_key": key})
	}

	maxAttempts := c.config.MaxAttempts
	if trial {
		// HALF_OPEN admits a single trial; the retry budget does not apply.
		maxAttempts = 1
	}

	started := c.now()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, attemptErr := c.attemptOnce(ctx, body, key, requestID)
		result.Attempts = attempt
		result.StatusCode = status

		if attemptErr == nil && status >= 200 && status < 300 {
			result.Success = true
			result.Outcome = core.AttemptOutcomeDelivered
			result.Duration = c.now().Sub(started)
			c.count(&c.sent)
			c.breaker.RecordSuccess()
			c.recordAttempt(ctx, result, attempt, core.AttemptOutcomeDelivered, status, result.Duration)
			core.RecordCounter(ctx, c.metrics, "delivery.sent", 1, nil)
			core.RecordHistogram(ctx, c.metrics, "delivery.duration_ms", float64(result.Duration.Milliseconds()), nil)
			return result, nil
		}

		if ctx.Err() != nil {
			result.Outcome = core.AttemptOutcomeCanceled
			result.Duration = c.now().Sub(started)
			if trial {
				c.breaker.ReleaseTrial()
			}
			c.recordAttempt(ctx, result, attempt, core.AttemptOutcomeCanceled, status, result.Duration)
			return result, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "delivery: canceled").
				WithTextCode(core.ServiceErrorInternal)
		}

		c.recordAttempt(ctx, result, attempt, core.AttemptOutcomeFailed, status, c.now().Sub(started))
		c.logAttemptFailure(ctx, key, requestID, attempt, status, attemptErr)

		if attempt < maxAttempts {
			c.count(&c.retried)
			core.RecordCounter(ctx, c.metrics, "delivery.retried", 1, nil)
			if waitErr := c.wait(ctx, c.backoffDelay(attempt)); waitErr != nil {
				result.Outcome = core.AttemptOutcomeCanceled
				result.Duration = c.now().Sub(started)
				if trial {
					c.breaker.ReleaseTrial()
				}
				return result, goerrors.Wrap(waitErr, goerrors.CategoryOperation, "delivery: canceled during backoff").
					WithTextCode(core.ServiceErrorInternal)
			}
		}
	}

	result.Outcome = core.AttemptOutcomeFailed
	result.Duration = c.now().Sub(started)
	c.count(&c.failed)
	c.breaker.RecordFailure()
	core.RecordCounter(ctx, c.metrics, "delivery.failed", 1, nil)
	return result, goerrors.New("delivery: all attempts exhausted", goerrors.CategoryExternal).
		WithTextCode(core.ServiceErrorDeliveryFailed).
		WithMetadata(map[string]any{
			"idempotency_key": key,
			"attempts":        result.Attempts,
			"last_status":     result.StatusCode,
		})
}

func (c *Client) attemptOnce(ctx context.Context, body []byte, key string, requestID string) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.config.Destination, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}

	timestamp := c.now().Format(time.RFC3339)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signer.Sign(c.config.Secret, timestamp, body))
	req.Header.Set(HeaderPayloadHash, key)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set(HeaderTimestamp, timestamp)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

// Circuit implements core.DeliveryReporter.
func (c *Client) Circuit() core.CircuitSnapshot {
	if c == nil {
		return core.CircuitSnapshot{State: core.CircuitClosed}
	}
	return c.breaker.Snapshot()
}

func (c *Client) Metrics() Metrics {
	if c == nil {
		return Metrics{CircuitBreaker: core.CircuitSnapshot{State: core.CircuitClosed}}
	}
	c.mu.Lock()
	snapshot := Metrics{
		Sent:           c.sent,
		Failed:         c.failed,
		Retried:        c.retried,
		ShortCircuited: c.shortCircuited,
	}
	c.mu.Unlock()
	snapshot.CircuitBreaker = c.breaker.Snapshot()
	return snapshot
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.config.MaxBackoff {
			delay = c.config.MaxBackoff
			break
		}
	}
	if delay > c.config.MaxBackoff {
		delay = c.config.MaxBackoff
	}
	return c.jitter(delay)
}

func (c *Client) count(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

func (c *Client) recordAttempt(ctx context.Context, result Result, attempt int, outcome string, status int, latency time.Duration) {
	if c.attempts == nil {
		return
	}
	record := core.DeliveryAttempt{
		ID:             uuid.NewString(),
		IdempotencyKey: result.IdempotencyKey,
		RequestID:      result.RequestID,
		Attempt:        attempt,
		Outcome:        outcome,
		StatusCode:     status,
		Latency:        latency,
		CreatedAt:      c.now(),
	}
	if err := c.attempts.Append(context.WithoutCancel(ctx), record); err != nil {
		core.LogError(ctx, c.logger, "delivery attempt record failed", map[string]any{
			"idempotency_key": result.IdempotencyKey,
			"error":           err.Error(),
		})
	}
}

func (c *Client) logAttemptFailure(ctx context.Context, key string, requestID string, attempt int, status int, err error) {
	fields := map[string]any{
		"idempotency_key": key,
		"request_id":      requestID,
		"attempt":         attempt,
		"status":          status,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	core.LogError(ctx, c.logger, "delivery attempt failed", fields)
}

// defaultJitter spreads a delay across [75%, 125%] of its nominal value.
func defaultJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	half := int64(delay) / 2
	if half <= 0 {
		return delay
	}
	return time.Duration(int64(delay)*3/4 + rand.Int63n(half))
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ core.DeliveryReporter = (*Client)(nil)
