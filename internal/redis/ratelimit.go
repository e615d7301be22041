package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{ip}:search - per-window search and autocomplete requests
// - ratelimit:{ip}:admin  - per-window index and queue control requests

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	SearchLimit  int
	SearchWindow time.Duration
	AdminLimit   int
	AdminWindow  time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		SearchLimit:  600,
		SearchWindow: 60 * time.Second,
		AdminLimit:   60,
		AdminWindow:  60 * time.Second,
	}
}

// RateLimiter handles fixed window rate limiting in Redis
type RateLimiter struct {
	client goredis.UniversalClient
	config RateLimitConfig
	script *goredis.Script
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	end
	return {0, 0, ttl}
`)

func NewRateLimiter(client goredis.UniversalClient, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config, script: limitScript}
}

// AllowSearch checks if an IP can run another query
func (r *RateLimiter) AllowSearch(ctx context.Context, ip string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, fmt.Sprintf("ratelimit:%s:search", ip), r.config.SearchLimit, r.config.SearchWindow)
}

// AllowAdmin checks if an IP can issue another control request
func (r *RateLimiter) AllowAdmin(ctx context.Context, ip string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, fmt.Sprintf("ratelimit:%s:admin", ip), r.config.AdminLimit, r.config.AdminWindow)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := r.script.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := resultSlice[0].(int64)
	remaining, _ := resultSlice[1].(int64)
	ttl, _ := resultSlice[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}

// Reset clears the counters of an IP (admin operation)
func (r *RateLimiter) Reset(ctx context.Context, ip string) error {
	return r.client.Del(ctx,
		fmt.Sprintf("ratelimit:%s:search", ip),
		fmt.Sprintf("ratelimit:%s:admin", ip),
	).Err()
}
