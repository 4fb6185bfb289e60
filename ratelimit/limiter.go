package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/capsight/go-valuation/core"
)

// ThrottledError is returned when a client exceeds its window budget.
type ThrottledError struct {
	ClientID   string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: client %q exceeded rate limit, retry after %s",
		strings.TrimSpace(e.ClientID),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"client_id": strings.TrimSpace(e.ClientID),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ServiceErrorRateLimited).
		WithMetadata(metadata)
}

// Decision carries everything a transport layer needs to emit rate-limit
// headers for one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type window struct {
	startedAt time.Time
	count     int
}

// FixedWindowLimiter counts requests per client over a fixed interval.
// Expired windows are replaced lazily on the next request for that client,
// so the map never accumulates dead entries per key.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	windows map[string]window
}

func NewFixedWindowLimiter(limit int, interval time.Duration) *FixedWindowLimiter {
	defaults := core.DefaultConfig().RateLimit
	if limit < 1 {
		limit = defaults.Limit
	}
	if interval <= 0 {
		interval = defaults.Window
	}
	return &FixedWindowLimiter{
		limit:   limit,
		window:  interval,
		Now:     func() time.Time { return time.Now().UTC() },
		windows: map[string]window{},
	}
}

// Allow records one request for the client and reports whether it fits the
// current window. Unknown or blank client ids share the "anonymous" bucket.
func (l *FixedWindowLimiter) Allow(clientID string) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	clientID = normalizeClientID(clientID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[clientID]
	if !ok || now.Sub(current.startedAt) >= l.window {
		current = window{startedAt: now}
	}

	resetAt := current.startedAt.Add(l.window)
	if current.count >= l.limit {
		l.windows[clientID] = current
		return Decision{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	current.count++
	l.windows[clientID] = current
	return Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - current.count,
		ResetAt:   resetAt,
	}
}

// Snapshot reports the live request count for a client without consuming
// budget. Expired windows read as zero.
func (l *FixedWindowLimiter) Snapshot(clientID string) (int, bool) {
	if l == nil {
		return 0, false
	}
	clientID = normalizeClientID(clientID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[clientID]
	if !ok || now.Sub(current.startedAt) >= l.window {
		return 0, false
	}
	return current.count, true
}

func (l *FixedWindowLimiter) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeClientID(clientID string) string {
	clientID = strings.TrimSpace(strings.ToLower(clientID))
	if clientID == "" {
		return "anonymous"
	}
	return clientID
}
