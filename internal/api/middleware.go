package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderAPIKey   = "X-API-Key"

	ctxTenantID = "tenantID"
	ctxAPIKey   = "apiKey"
)

// requestLogger logs every request once it completes.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := logger.Debug()
		if status >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("tenant_id", c.GetString(ctxTenantID)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// apiKeyAuth checks X-API-Key against the configured keys. With no keys configured
// every request passes and rate limiting falls back to the client IP.
func apiKeyAuth(keys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Set(ctxAPIKey, c.ClientIP())
			c.Next()
			return
		}

		got := c.GetHeader(HeaderAPIKey)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: "missing_api_key", Message: "X-API-Key header is required"})
			return
		}
		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(got), []byte(k)) == 1 {
				c.Set(ctxAPIKey, k)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: "invalid_api_key", Message: "API key is not valid"})
	}
}

// limiterStore holds one token bucket per API key.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLimiterStore(perSecond float64, burst int) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = limiter
	}
	return limiter
}

func rateLimit(store *limiterStore, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ctxAPIKey)
		if !store.get(key).Allow() {
			logger.Warn().Str("path", c.FullPath()).Msg("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Code: "rate_limited", Message: "rate limit exceeded, try again later"})
			return
		}
		c.Next()
	}
}

// tenantScope requires X-Tenant-ID, which the upstream gateway sets.
func tenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(HeaderTenantID)
		if tenantID == "" {
			badRequest(c, "X-Tenant-ID header is required")
			return
		}
		c.Set(ctxTenantID, tenantID)
		c.Next()
	}
}

// requestTimeout bounds the request context so storage calls give up on time.
func requestTimeout(d time.Duration) gin.HandlerFunc {
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
