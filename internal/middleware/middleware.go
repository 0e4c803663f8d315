package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/models"
	"ticket-checkout/internal/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	HeaderBuyerID    = "X-Buyer-ID"
	HeaderBuyerEmail = "X-Buyer-Email"
	HeaderRequestID  = "X-Request-ID"

	buyerKey = "buyer"
)

func EnhancedLogger(log *logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		duration := param.Latency.String()
		status := fmt.Sprintf("%d", param.StatusCode)

		if param.StatusCode >= 500 {
			log.Error("API", fmt.Sprintf("%s %s - %s (%s) - ERROR: %s",
				param.Method, param.Path, status, duration, param.ErrorMessage))
		} else if param.StatusCode >= 400 {
			log.Warn("API", fmt.Sprintf("%s %s - %s (%s) - Client Error",
				param.Method, param.Path, status, duration))
		} else {
			log.LogAPI(param.Method, param.Path, status, duration)
		}

		log.Debug("REQUEST", fmt.Sprintf("IP: %s, UserAgent: %s, RequestID: %s",
			param.ClientIP, param.Request.UserAgent(), param.Request.Header.Get(HeaderRequestID)))

		// output is handled by the logger above
		return ""
	})
}

func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("PANIC", fmt.Sprintf("Recovered from panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, utils.ErrorResponse("Internal server error", ""))
	})
}

// RequestID propagates or assigns an X-Request-ID for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = utils.GenerateRequestID()
			c.Request.Header.Set(HeaderRequestID, id)
		}
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Idempotency-Key, X-Buyer-ID, X-Buyer-Email, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit allows rps requests per second per client IP, with an equal burst.
func RateLimit(rps int, log *logger.Logger) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := newClientLimiters(rps, limiterIdleTTL)

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			log.LogSecurity("RATE_LIMIT", fmt.Sprintf("Rate limit exceeded for IP: %s", c.ClientIP()))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, utils.ErrorResponse("Rate limit exceeded", "retry after 1s"))
			return
		}
		c.Next()
	}
}

// limiterIdleTTL is how long a client's limiter survives without requests.
const limiterIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientLimiters struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiters(rps int, ttl time.Duration) *clientLimiters {
	return &clientLimiters{
		visitors:  make(map[string]*visitor),
		rps:       rps,
		ttl:       ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// get returns the limiter for ip, dropping idle clients at most once per ttl.
func (l *clientLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.ttl {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.ttl {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.rps), l.rps)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func SecurityHeaders(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Cache-Control", "no-store")

		if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
			log.Debug("SECURITY", fmt.Sprintf("Request via proxy from: %s", fwd))
		}

		c.Next()
	}
}

// Buyer requires the identity forwarded by the upstream auth layer.
func Buyer(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderBuyerID))
		if id == "" {
			log.LogSecurity("MISSING_BUYER", fmt.Sprintf("%s %s without buyer identity from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Buyer identity required", HeaderBuyerID+" header is missing"))
			return
		}
		c.Set(buyerKey, models.Buyer{
			ID:    id,
			Email: strings.TrimSpace(c.GetHeader(HeaderBuyerEmail)),
		})
		c.Next()
	}
}

// BuyerFrom returns the buyer set by Buyer.
func BuyerFrom(c *gin.Context) (models.Buyer, bool) {
	v, ok := c.Get(buyerKey)
	if !ok {
		return models.Buyer{}, false
	}
	buyer, ok := v.(models.Buyer)
	return buyer, ok
}

// Timeout bounds the request context; handlers see ctx.Done() after d.
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
