package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/jkorir/bookhold/internal/database"
)

type RateLimiter struct {
	redisClient *database.RedisClient
}

type RateLimit struct {
	Requests int           // Number of requests
	Window   time.Duration // Time window
}

func NewRateLimiter(redisClient *database.RedisClient) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
	}
}

func (rl *RateLimiter) Limit(limit RateLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()

		// Create a key based on client IP
		key := fmt.Sprintf("rate_limit:%s", c.ClientIP())

		rl.enforce(ctx, c, key, limit)
	}
}

func (rl *RateLimiter) APILimit() gin.HandlerFunc {
	return rl.Limit(RateLimit{
		Requests: 100,
		Window:   time.Minute,
	})
}

func (rl *RateLimiter) ReserveLimit() gin.HandlerFunc {
	return rl.Limit(RateLimit{
		Requests: 10,
		Window:   time.Minute,
	})
}

func (rl *RateLimiter) UserSpecificLimit(userID string, limit RateLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()

		// Create a key based on user ID
		key := fmt.Sprintf("rate_limit:user:%s", userID)

		rl.enforce(ctx, c, key, limit)
	}
}

func (rl *RateLimiter) enforce(ctx context.Context, c *gin.Context, key string, limit RateLimit) {
	// Get current count
	val, err := rl.redisClient.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		// If Redis is down, allow the request
		c.Next()
		return
	}

	var count int
	if errors.Is(err, redis.Nil) {
		count = 0
	} else {
		count, _ = strconv.Atoi(val)
	}

	if count >= limit.Requests {
		// Rate limit exceeded
		ttl, _ := rl.redisClient.TTL(ctx, key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		c.Header("X-RateLimit-Remaining", "0")
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Too many requests. Please try again later.",
			},
		})
		c.Abort()
		return
	}

	// Increment counter and refresh the window
	if err := rl.redisClient.IncrWindow(ctx, key, limit.Window); err != nil {
		// If Redis is down, allow the request
		c.Next()
		return
	}

	// Set rate limit headers
	remaining := limit.Requests - count - 1
	if remaining < 0 {
		remaining = 0
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(limit.Window).Unix(), 10))

	c.Next()
}
