package middleware

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/cache"
)

const (
	APIMaxRequests     = 120
	APIWindow          = time.Minute
	CartMaxWrites      = 30
	CheckoutMaxPerHour = 20
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (cache.Decision, error)
}

// KeyFunc picks what a limit is counted against. An empty key skips the limit.
type KeyFunc func(c *gin.Context) string

func ByIP(c *gin.Context) string { return c.ClientIP() }

// ByUser counts per signed-in user, falling back to the client address.
func ByUser(c *gin.Context) string {
	if id := c.GetString("user_id"); id != "" {
		return "u:" + id
	}
	return "ip:" + c.ClientIP()
}

// RateLimit answers 429 once key has made limit requests within window.
// When the limiter itself fails the request goes through.
func RateLimit(l Limiter, name string, limit int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		d, err := l.Allow(c.Request.Context(), name+":"+k, limit, window)
		if err != nil {
			log.Printf("⚠️ rate limiter %s unavailable: %v", name, err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			retry := int(d.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			RespondError(c, apperr.New(apperr.ErrRateLimited, "too many requests, retry later", map[string]any{"retry_after": retry}))
			return
		}
		c.Next()
	}
}

func APIRateLimit(l Limiter) gin.HandlerFunc {
	return RateLimit(l, "api", APIMaxRequests, APIWindow, ByIP)
}

func CartRateLimit(l Limiter) gin.HandlerFunc {
	return RateLimit(l, "cart", CartMaxWrites, time.Minute, ByUser)
}

func CheckoutRateLimit(l Limiter) gin.HandlerFunc {
	return RateLimit(l, "checkout", CheckoutMaxPerHour, time.Hour, ByUser)
}
