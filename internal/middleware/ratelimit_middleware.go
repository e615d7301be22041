package middleware

import (
	"context"
	"net/http"
	"strconv"

	"catalog-search/internal/redis"
	"catalog-search/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// SearchRateLimitMiddleware limits query traffic per client IP.
func SearchRateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return rateLimit(limiter, (*redis.RateLimiter).AllowSearch, "search rate limit exceeded")
}

// AdminRateLimitMiddleware limits index and queue control requests per client IP.
func AdminRateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return rateLimit(limiter, (*redis.RateLimiter).AllowAdmin, "admin rate limit exceeded")
}

type allowFunc func(*redis.RateLimiter, context.Context, string) (*redis.RateLimitResult, error)

func rateLimit(limiter *redis.RateLimiter, allow allowFunc, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		result, err := allow(limiter, c.Request.Context(), c.ClientIP())
		if err != nil {
			// Fail open when Redis is unreachable.
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse(message, "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
