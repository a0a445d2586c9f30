// Package middleware provides gin middleware for the telemetry service.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// DefaultRequestsPerMinute is used when no positive limit is configured
const DefaultRequestsPerMinute = 100

// NewRateLimitMiddleware creates a per-IP rate limiting middleware allowing
// limit requests per minute. Telemetry requests are expensive upstream, so
// this guards the data service as much as this one.
func NewRateLimitMiddleware(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		limit = DefaultRequestsPerMinute
	}
	return NewRateLimitMiddlewareWithConfig(limit, time.Minute)
}

// NewRateLimitMiddlewareWithConfig creates a rate limiting middleware with custom configuration
func NewRateLimitMiddlewareWithConfig(limit int64, period time.Duration) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)
	middleware := mgin.NewMiddleware(instance)

	return middleware
}
