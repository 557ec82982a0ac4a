package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redisStore "pix-gateway/internal/adapter/storage/redis"
	"pix-gateway/pkg/apperror"
	"pix-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitStore counts requests per key in fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redisStore.RateLimitResult, error)
}

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules derives per-group limits from the per-minute budget.
// Charge and deposit creation hit acquirers, so they get a quarter of it each.
func DefaultRateLimitRules(perMinute int64) map[string]RateLimitRule {
	write := perMinute / 4
	if write < 1 {
		write = 1
	}
	return map[string]RateLimitRule{
		"charges":  {Limit: write, Window: time.Minute},
		"deposits": {Limit: write, Window: time.Minute},
		"reads":    {Limit: perMinute, Window: time.Minute},
		"webhooks": {Limit: perMinute * 10, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Store failures let the request through.
func RateLimiter(store RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated calls by merchant and the rest by client IP.
func extractIdentifier(c *gin.Context) string {
	if id, ok := MerchantID(c); ok {
		return id.String()
	}
	if code := c.Param("acquirer"); code != "" {
		return "acquirer:" + code
	}
	return c.ClientIP()
}
