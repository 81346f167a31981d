package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter stores a rate limiter per client IP and evicts idle entries.
type IPRateLimiter struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	r       rate.Limit
	b       int
	maxIdle time.Duration
}

// NewIPRateLimiter creates a new IPRateLimiter. Entries idle for longer than
// maxIdle are dropped on the next sweep.
func NewIPRateLimiter(r rate.Limit, b int, maxIdle time.Duration) *IPRateLimiter {
	l := &IPRateLimiter{
		clients: make(map[string]*clientLimiter),
		r:       r,
		b:       b,
		maxIdle: maxIdle,
	}
	go l.sweep()
	return l
}

// GetLimiter returns the rate limiter for an IP address, creating one if
// needed, and refreshes its last-seen time.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	cl, exists := i.clients[ip]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(i.r, i.b)}
		i.clients[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (i *IPRateLimiter) sweep() {
	ticker := time.NewTicker(i.maxIdle)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-i.maxIdle)
		i.mu.Lock()
		for ip, cl := range i.clients {
			if cl.lastSeen.Before(cutoff) {
				delete(i.clients, ip)
			}
		}
		i.mu.Unlock()
	}
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(r, b, 10*time.Minute)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
