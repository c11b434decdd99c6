package ginserver

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"roomstay/internal/infra/redisstore"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (redisstore.Decision, error)
	Limit() int
}

// RateLimit throttles by client IP. Limiter failures let the request
// through.
func RateLimit(limiter RateLimiter, scope string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		decision, err := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
			}
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			secs := int(math.Ceil(decision.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: errorPayload{Kind: "rate_limited", Code: "too_many_requests", Message: "too many requests"}})
			return
		}
		c.Next()
	}
}
