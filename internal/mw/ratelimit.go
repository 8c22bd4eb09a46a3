package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiters hands out one token bucket per client IP.
type ipLimiters struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	lim rate.Limit
	b   int
}

func newIPLimiters(lim rate.Limit, b int) *ipLimiters {
	return &ipLimiters{m: make(map[string]*rate.Limiter), lim: lim, b: b}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.m[ip]
	if !ok {
		limiter = rate.NewLimiter(l.lim, l.b)
		l.m[ip] = limiter
	}
	return limiter
}

// RateLimiter is a middleware for IP-based request rate limiting.
func RateLimiter(lim rate.Limit, burst int) gin.HandlerFunc {
	limiters := newIPLimiters(lim, burst)
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
