package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capsight/go-valuation/cache"
	"github.com/capsight/go-valuation/core"
	"github.com/capsight/go-valuation/signer"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// Request is one raw inbound webhook delivery: the unparsed body plus the
// authentication headers exactly as they arrived.
type Request struct {
	Body      []byte
	Signature string
	Timestamp string
}

// RequestFromHTTP lifts the wire headers out of an HTTP request shell.
func RequestFromHTTP(body []byte, headers http.Header) Request {
	req := Request{Body: body}
	if headers != nil {
		req.Signature = headers.Get(HeaderSignature)
		req.Timestamp = headers.Get(HeaderTimestamp)
	}
	return req
}

// Receipt is the single normalized response shape for every inbound
// outcome, success or rejection.
type Receipt struct {
	StatusCode       int      `json:"-"`
	Success          bool     `json:"success"`
	IngestionID      string   `json:"ingestion_id"`
	ProcessedRecords int      `json:"processed_records"`
	CacheInvalidated []string `json:"cache_invalidated"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

type Option func(*Receiver)

func WithLogger(logger core.Logger) Option {
	return func(r *Receiver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(recorder core.MetricsRecorder) Option {
	return func(r *Receiver) {
		if recorder != nil {
			r.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Receiver) {
		if now != nil {
			r.now = now
		}
	}
}

func WithAuditStore(store core.IngestionAuditStore) Option {
	return func(r *Receiver) {
		r.audits = store
	}
}

func WithInvalidator(invalidator core.CacheInvalidator) Option {
	return func(r *Receiver) {
		r.invalidator = invalidator
	}
}

// Receiver authenticates and applies provider market events. Market writes
// go through the data store; derived caches are invalidated per scope after
// a successful write.
type Receiver struct {
	secret       string
	replayWindow time.Duration
	store        core.MarketDataStore
	invalidator  core.CacheInvalidator
	audits       core.IngestionAuditStore
	logger       core.Logger
	metrics      core.MetricsRecorder
	now          func() time.Time
}

func NewReceiver(secret string, replayWindow time.Duration, store core.MarketDataStore, opts ...Option) (*Receiver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("inbound: webhook secret is required")
	}
	if store == nil {
		return nil, fmt.Errorf("inbound: market data store is required")
	}
	if replayWindow <= 0 {
		replayWindow = core.DefaultConfig().Webhook.ReplayWindow
	}
	receiver := &Receiver{
		secret:       secret,
		replayWindow: replayWindow,
		store:        store,
		metrics:      core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(receiver)
		}
	}
	return receiver, nil
}

// Receive runs one delivery through the full lifecycle. The returned
// Receipt always carries an ingestion id, including on rejection, so
// callers can correlate a failure with its audit record.
func (r *Receiver) Receive(ctx context.Context, req Request) (Receipt, error) {
	if r == nil {
		return Receipt{StatusCode: http.StatusInternalServerError}, inboundInternal(nil, "inbound: receiver is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	started := r.now()
	receipt := Receipt{
		IngestionID:      uuid.NewString(),
		CacheInvalidated: []string{},
	}

	if err := r.authenticate(req); err != nil {
		receipt.StatusCode = http.StatusUnauthorized
		r.audit(ctx, core.IngestionAudit{
			ID:        receipt.IngestionID,
			Outcome:   core.IngestionOutcomeRejectedUnauthorized,
			Duration:  r.now().Sub(started),
			CreatedAt: r.now(),
		})
		core.RecordCounter(ctx, r.metrics, "inbound.rejected_unauthorized", 1, nil)
		return receipt, err
	}

	var event core.IngestEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		receipt.StatusCode = http.StatusBadRequest
		receipt.ValidationErrors = []string{"body: invalid json"}
		r.audit(ctx, core.IngestionAudit{
			ID:               receipt.IngestionID,
			Outcome:          core.IngestionOutcomeRejectedValidation,
			ValidationErrors: receipt.ValidationErrors,
			Duration:         r.now().Sub(started),
			CreatedAt:        r.now(),
		})
		return receipt, inboundValidation("inbound: request body is not valid json", map[string]any{
			"ingestion_id": receipt.IngestionID,
		})
	}

	event.EventType = strings.TrimSpace(strings.ToLower(event.EventType))
	event.Market = strings.TrimSpace(strings.ToLower(event.Market))
	event.Source = strings.TrimSpace(event.Source)

	if validationErrors := validateEvent(event); len(validationErrors) > 0 {
		receipt.StatusCode = http.StatusBadRequest
		receipt.ValidationErrors = validationErrors
		r.audit(ctx, core.IngestionAudit{
			ID:               receipt.IngestionID,
			EventType:        event.EventType,
			Market:           event.Market,
			Source:           event.Source,
			Outcome:          core.IngestionOutcomeRejectedValidation,
			ValidationErrors: validationErrors,
			Duration:         r.now().Sub(started),
			CreatedAt:        r.now(),
		})
		core.RecordCounter(ctx, r.metrics, "inbound.rejected_validation", 1, map[string]string{"event_type": event.EventType})
		return receipt, inboundValidation("inbound: event validation failed", map[string]any{
			"ingestion_id":      receipt.IngestionID,
			"event_type":        event.EventType,
			"validation_errors": validationErrors,
		})
	}

	processed, scopes, err := r.dispatch(ctx, event)
	if err != nil {
		receipt.StatusCode = http.StatusInternalServerError
		r.audit(ctx, core.IngestionAudit{
			ID:        receipt.IngestionID,
			EventType: event.EventType,
			Market:    event.Market,
			Source:    event.Source,
			Outcome:   core.IngestionOutcomeFailed,
			Duration:  r.now().Sub(started),
			CreatedAt: r.now(),
		})
		core.RecordCounter(ctx, r.metrics, "inbound.failed", 1, map[string]string{"event_type": event.EventType})
		return receipt, inboundInternal(err, "inbound: apply event", map[string]any{
			"ingestion_id": receipt.IngestionID,
			"event_type":   event.EventType,
		})
	}

	if r.invalidator != nil {
		for _, scope := range scopes {
			r.invalidator.Invalidate(ctx, scope)
		}
	}

	receipt.StatusCode = http.StatusOK
	receipt.Success = true
	receipt.ProcessedRecords = processed
	receipt.CacheInvalidated = scopes

	r.audit(ctx, core.IngestionAudit{
		ID:                receipt.IngestionID,
		EventType:         event.EventType,
		Market:            event.Market,
		Source:            event.Source,
		Outcome:           core.IngestionOutcomeDispatched,
		ProcessedRecords:  processed,
		InvalidatedScopes: scopes,
		Duration:          r.now().Sub(started),
		CreatedAt:         r.now(),
	})
	core.RecordCounter(ctx, r.metrics, "inbound.dispatched", 1, map[string]string{"event_type": event.EventType})
	core.LogInfo(ctx, r.logger, "inbound event dispatched", map[string]any{
		"ingestion_id":      receipt.IngestionID,
		"event_type":        event.EventType,
		"market":            event.Market,
		"processed_records": processed,
	})
	return receipt, nil
}

func (r *Receiver) authenticate(req Request) error {
	timestamp := strings.TrimSpace(req.Timestamp)
	if timestamp == "" || strings.TrimSpace(req.Signature) == "" {
		return inboundUnauthorized("inbound: missing signature or timestamp header", nil)
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return inboundUnauthorized("inbound: timestamp header is not unix seconds", nil)
	}
	drift := r.now().Sub(time.Unix(unix, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > r.replayWindow {
		return inboundUnauthorized("inbound: stale timestamp outside replay window", map[string]any{
			"drift_seconds": int64(drift.Seconds()),
		})
	}

	if !signer.Verify(r.secret, timestamp, req.Body, req.Signature) {
		return inboundUnauthorized("inbound: signature verification failed", nil)
	}
	return nil
}

func (r *Receiver) dispatch(ctx context.Context, event core.IngestEvent) (int, []string, error) {
	switch event.EventType {
	case core.EventTypeFundamentalsUpsert:
		fundamentals := fundamentalsFromPayload(event)
		if err := r.store.UpsertFundamentals(ctx, fundamentals); err != nil {
			return 0, nil, err
		}
		return 1, []string{cache.FundamentalsScope(event.Market)}, nil
	case core.EventTypeCompsUpsert:
		comps := compsFromPayload(event)
		inserted, err := r.store.InsertComps(ctx, comps)
		if err != nil {
			return 0, nil, err
		}
		return inserted, []string{cache.CompsScope(event.Market)}, nil
	case core.EventTypeMacroUpdate:
		macro := macroFromPayload(event)
		if err := r.store.UpsertMacro(ctx, macro); err != nil {
			return 0, nil, err
		}
		return 1, []string{cache.MacroScope()}, nil
	default:
		return 0, nil, fmt.Errorf("inbound: unreachable event type %q", event.EventType)
	}
}

func (r *Receiver) audit(ctx context.Context, record core.IngestionAudit) {
	if r.audits == nil {
		return
	}
	if err := r.audits.Append(context.WithoutCancel(ctx), record); err != nil {
		core.LogError(ctx, r.logger, "ingestion audit write failed", map[string]any{
			"ingestion_id": record.ID,
			"error":        err.Error(),
		})
	}
}
