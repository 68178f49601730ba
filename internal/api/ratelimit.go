package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Per-IP fixed-window rate limiter for the admin routes. POST /record burns
// real CPU on proof mining before it ever touches the index, so an
// unthrottled client could pin every miner slot.
//
// Windows are pruned lazily on the request path — no background goroutine —
// and the whole state is one map under one mutex: request counts reset when
// a window expires, and Retry-After is simply the remainder of the window.

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter allows `limit` requests per `window` per client IP.
type RateLimiter struct {
	limit  int
	window time.Duration
	label  string

	mu     sync.Mutex
	seen   map[string]*rateWindow
	lastGC time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		label:  fmt.Sprintf("%d requests per %s per IP", limit, window),
		seen:   make(map[string]*rateWindow),
	}
}

// take consumes one slot for ip, reporting the wait until the window turns
// over when the budget is spent.
func (rl *RateLimiter) take(ip string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Piggyback expiry of idle entries on the request path, at most once
	// per few windows, so transient IPs cannot grow the map forever.
	if now.Sub(rl.lastGC) > 4*rl.window {
		for addr, w := range rl.seen {
			if now.Sub(w.start) >= rl.window {
				delete(rl.seen, addr)
			}
		}
		rl.lastGC = now
	}

	w, ok := rl.seen[ip]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.seen[ip] = &rateWindow{start: now, count: 1}
		return true, 0
	}
	if w.count < rl.limit {
		w.count++
		return true, 0
	}
	return false, w.start.Add(rl.window).Sub(now)
}

// Middleware returns a Gin handler that enforces the rate limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := rl.take(c.ClientIP(), time.Now())
		if !allowed {
			c.Header("Retry-After", retryAfter.Round(time.Second).String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"retryAfter": retryAfter.Round(time.Second).String(),
				"limit":      rl.label,
			})
			return
		}
		c.Next()
	}
}
