package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/identity-service/internal/service"
	"go.uber.org/zap"
)

// RateLimitMiddleware creates a rate limiting middleware. Limiter failures let
// the request through so a Redis outage does not lock users out.
func RateLimitMiddleware(rateLimiter service.RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		allowed, retryAfter, err := rateLimiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		if !allowed {
			seconds := int(retryAfter.Seconds())
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.Header("X-RateLimit-Remaining", "0")
			abortWithError(c, http.StatusTooManyRequests, service.CodeRateLimited,
				fmt.Sprintf("rate limit exceeded, try again in %ds", seconds))
			return
		}

		if remaining, err := rateLimiter.Remaining(c.Request.Context(), key, limit, window); err == nil {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		c.Next()
	}
}

// IPBasedKey extracts rate limit key from client IP, preferring the first forwarded hop
func IPBasedKey(c *gin.Context) string {
	if ip := forwardedIP(c); ip != "" {
		return ip
	}
	return c.ClientIP()
}

// RouteAndIPKey scopes the limit to one route per client IP
func RouteAndIPKey(c *gin.Context) string {
	return fmt.Sprintf("%s:%s", c.FullPath(), IPBasedKey(c))
}
