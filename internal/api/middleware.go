package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Armour007/parcelclaims-backend/internal/intake"
)

const msgRateLimited = "Слишком много запросов. Попробуйте позже"

// RequestIDMiddleware ensures every request has an X-Request-ID. If absent, generate one.
// The id is also attached to the request context for intake stage logs.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" || len(rid) > 128 {
			rid = uuid.New().String()
		}
		c.Request = c.Request.WithContext(intake.WithRequestID(c.Request.Context(), rid))
		c.Set("requestID", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// --- Simple in-memory rate limiter (per client IP, fixed window) ---
type clientWindow struct {
	count       int
	windowStart time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	window  time.Duration
	now     func() time.Time
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cw, ok := l.clients[ip]
	if !ok {
		if len(l.clients) > 10000 {
			l.sweep(now)
		}
		l.clients[ip] = &clientWindow{count: 1, windowStart: now}
		return true, 0
	}
	if now.Sub(cw.windowStart) >= l.window {
		cw.count = 1
		cw.windowStart = now
		return true, 0
	}
	if cw.count < l.limit {
		cw.count++
		return true, 0
	}
	retryAfter := l.window - now.Sub(cw.windowStart)
	return false, retryAfter
}

// sweep drops expired windows. Caller holds mu.
func (l *ipLimiter) sweep(now time.Time) {
	for ip, cw := range l.clients {
		if now.Sub(cw.windowStart) >= l.window {
			delete(l.clients, ip)
		}
	}
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if net.ParseIP(ip) == nil {
		return "unknown"
	}
	return ip
}

func rejectRateLimited(c *gin.Context, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": msgRateLimited})
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(limitPerMinute int) gin.HandlerFunc {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	limiter := newIPLimiter(limitPerMinute, time.Minute)
	return func(c *gin.Context) {
		if ok, retryAfter := limiter.allow(clientIP(c)); !ok {
			rejectRateLimited(c, retryAfter)
			return
		}
		c.Next()
	}
}

// RedisRateLimitMiddleware shares per-minute counters across instances through Redis.
// When Redis is unreachable it falls back to an in-process limiter.
func RedisRateLimitMiddleware(rc redis.UniversalClient, limitPerMinute int) gin.HandlerFunc {
	if rc == nil {
		return RateLimitMiddleware(limitPerMinute)
	}
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	fallback := RateLimitMiddleware(limitPerMinute)
	return func(c *gin.Context) {
		ip := clientIP(c)
		now := time.Now().UTC()
		key := fmt.Sprintf("rl:%s:%04d%02d%02d%02d%02d", ip, now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute())
		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		n, err := rc.Incr(ctx, key).Result()
		if err != nil {
			fallback(c)
			return
		}
		if n == 1 {
			_ = rc.Expire(ctx, key, 61*time.Second).Err()
		}
		if int(n) > limitPerMinute {
			rejectRateLimited(c, time.Duration(60-now.Second())*time.Second)
			return
		}
		c.Next()
	}
}
