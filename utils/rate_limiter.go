package utils

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// rateCounter increments the counter for a fixed window key and returns the
// new count. Implementations must set the key to expire with the window.
type rateCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisRateCounter struct{}

func (redisRateCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	client := GetRedisClient()
	if client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	pipe := client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimitMiddleware enforces a fixed 60-second window limit per client IP.
// Redis failures fail open: dropping provider webhooks because our Redis is
// down would lose customer messages.
func RateLimitMiddleware(scope string, limit int) gin.HandlerFunc {
	return rateLimitMiddleware(scope, limit, time.Minute, redisRateCounter{})
}

func rateLimitMiddleware(scope string, limit int, window time.Duration, counter rateCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		windowStart := time.Now().Unix() / int64(window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, c.ClientIP(), windowStart)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		count, err := counter.Incr(ctx, key, window)
		cancel()

		if err != nil {
			log.Printf("[RATE_LIMIT] Counter error for %s: %v. Allowing request.", scope, err)
			c.Next()
			return
		}

		if count > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
