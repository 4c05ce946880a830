// Package middleware carries the gin middleware stack: request ids,
// security headers, the per-IP rate limiter, body caps, and the
// auto-remember observer that runs after successful tool calls.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RequestID assigns a UUID v4 to every request and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// SecurityHeaders sets the standard response hardening headers. HSTS is
// only meaningful behind TLS, so it is skipped in debug mode.
func SecurityHeaders(debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		if !debug {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// BodyLimit caps the request body. Oversized bodies surface as a
// MaxBytesError during read, which the handlers map to 413.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// Timeout bounds each request with a deadline.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ipLimitSkip lists path prefixes that are either free to poll or already
// key-gated by the admission pipeline.
var ipLimitSkip = []string{"/health", "/ready", "/metrics", "/mcp/", "/v1/"}

// IPRateLimit is the coarse per-IP fixed window applied above admission.
// Redis failures degrade open.
func IPRateLimit(rdb *redis.Client, perMinute int, log *zap.Logger, onReject func()) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if perMinute <= 0 {
			c.Next()
			return
		}
		for _, prefix := range ipLimitSkip {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		key := fmt.Sprintf("iprate:%s:%d", c.ClientIP(), time.Now().Unix()/60)
		pipe := rdb.Pipeline()
		incr := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, 2*time.Minute)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			log.Warn("ip rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if incr.Val() > int64(perMinute) {
			if onReject != nil {
				onReject()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
