package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/capsight/go-valuation/ratelimit"
)

const (
	HeaderRequestID          = "X-Request-Id"
	HeaderClientID           = "X-Client-Id"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"

	requestIDContextKey = "request_id"
)

// requestIDMiddleware echoes the caller's request id or generates one, so
// every response is correlatable with delivery attempts and audit rows.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDContextKey)
}

// rateLimitMiddleware applies the fixed-window budget per client. Clients
// identify via X-Client-Id; anonymous callers fall back to the remote ip
// bucket.
func rateLimitMiddleware(limiter *ratelimit.FixedWindowLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		clientID := strings.TrimSpace(c.GetHeader(HeaderClientID))
		if clientID == "" {
			clientID = c.ClientIP()
		}

		decision := limiter.Allow(clientID)
		c.Header(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
		c.Header(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
		c.Header(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))

		svcErr := ratelimit.ThrottledError{
			ClientID:   clientID,
			RetryAfter: decision.RetryAfter,
		}.ToServiceError()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":     svcErr.Message,
			"text_code": svcErr.TextCode,
		})
	}
}
