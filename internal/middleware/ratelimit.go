package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/config"
	"github.com/atharvakonge/papertrade/internal/logger"
)

// RateLimit allows cfg.Limit requests per cfg.Window for each user, or
// each client IP before authentication. Counters live in redis so every
// instance shares them. When redis fails the request is let through.
func RateLimit(rdb *redis.Client, cfg config.RateLimitConfig, log *logger.Logger) gin.HandlerFunc {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	return func(c *gin.Context) {
		var identifier string
		if userID := UserID(c); userID != "" {
			identifier = fmt.Sprintf("ratelimit:user:%s", userID)
		} else {
			identifier = fmt.Sprintf("ratelimit:ip:%s", c.ClientIP())
		}

		ctx := c.Request.Context()

		// Count first and compare after, so concurrent requests cannot all
		// slip under the limit.
		pipe := rdb.Pipeline()
		incr := pipe.Incr(ctx, identifier)
		ttl := pipe.TTL(ctx, identifier)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn("Rate limiting unavailable", zap.String("key", identifier), zap.Error(err))
			c.Next()
			return
		}
		// A counter without a TTL was just created, or lost its expiry.
		if ttl.Val() < 0 {
			if err := rdb.Expire(ctx, identifier, window).Err(); err != nil {
				log.Warn("Failed to set rate limit window", zap.String("key", identifier), zap.Error(err))
			}
		}

		count := int(incr.Val())
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(limit-count, 0)))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))

		if count > limit {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			AbortWithError(c, apperr.New(apperr.CodeRateLimited, "Rate limit exceeded"))
			return
		}

		c.Next()
	}
}
