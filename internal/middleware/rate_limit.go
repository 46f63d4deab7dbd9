package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/damoang/coinchat/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	RequestsPerMinute int
	KeyPrefix         string
	Message           string
}

// rateLimitScript sliding window counter, atomic per key
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window_start = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, math.ceil(window / 1000) + 1)
    return {1, limit - count - 1, 0}
else
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset_at = 0
    if #oldest >= 2 then
        reset_at = tonumber(oldest[2]) + window
    end
    return {0, 0, reset_at}
end
`)

// RateLimitByIP limits unauthenticated surfaces such as the payment webhook.
func RateLimitByIP(redisClient *redis.Client, requestsPerMinute int) gin.HandlerFunc {
	return rateLimit(redisClient, RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		KeyPrefix:         "coinchat:ratelimit:ip:",
		Message:           "Too many requests",
	}, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitPerUser keyed by the authenticated user, falling back to IP.
func RateLimitPerUser(redisClient *redis.Client, prefix string, requestsPerMinute int) gin.HandlerFunc {
	return rateLimit(redisClient, RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		KeyPrefix:         "coinchat:ratelimit:" + prefix + ":",
		Message:           "Too many requests, slow down",
	}, func(c *gin.Context) string {
		if userID := GetUserID(c); userID != "" {
			return userID
		}
		return "ip:" + c.ClientIP()
	})
}

func rateLimit(redisClient *redis.Client, cfg RateLimitConfig, keyOf func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || cfg.RequestsPerMinute <= 0 {
			c.Next()
			return
		}

		now := time.Now().UnixMilli()
		windowMs := int64(60 * 1000)
		result, err := rateLimitScript.Run(c.Request.Context(), redisClient, []string{cfg.KeyPrefix + keyOf(c)},
			cfg.RequestsPerMinute, windowMs, now,
		).Int64Slice()
		if err != nil {
			// Fail open
			c.Next()
			return
		}

		allowed := result[0] == 1
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result[1], 10))

		if !allowed {
			retryAfter := (result[2] - now) / 1000
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			common.ErrorResponse(c, http.StatusTooManyRequests, cfg.Message, nil)
			return
		}

		c.Next()
	}
}
