package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/minimarbles/pkg/response"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client and request class (read or write).
// Idle clients are swept inline at most once a minute, so a Limiter owns no goroutine.
type Limiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time

	writeLimit rate.Limit
	writeBurst int
	readLimit  rate.Limit
	readBurst  int
	idleAfter  time.Duration
}

const sweepEvery = time.Minute

// NewLimiter creates a limiter allowing the given requests per minute per client.
// Each class gets a burst of a tenth of its per-minute budget, at least one.
func NewLimiter(writesPerMinute, readsPerMinute int) *Limiter {
	return &Limiter{
		visitors:   make(map[string]*visitor),
		lastSweep:  time.Now(),
		now:        time.Now,
		writeLimit: rate.Limit(float64(writesPerMinute) / 60.0),
		writeBurst: burstOf(writesPerMinute),
		readLimit:  rate.Limit(float64(readsPerMinute) / 60.0),
		readBurst:  burstOf(readsPerMinute),
		idleAfter:  3 * time.Minute,
	}
}

func (l *Limiter) getLimiter(method, clientIP string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweep(now)
	}

	class, limit, burst := "read", l.readLimit, l.readBurst
	if method != http.MethodGet && method != http.MethodHead {
		class, limit, burst = "write", l.writeLimit, l.writeBurst
	}

	key := clientIP + ":" + class
	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		l.visitors[key] = v
	}

	v.lastSeen = now
	return v.limiter
}

func burstOf(perMinute int) int {
	if perMinute < 10 {
		return 1
	}
	return perMinute / 10
}

// sweep drops clients idle for longer than idleAfter. Callers hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idleAfter {
			delete(l.visitors, key)
		}
	}
	l.lastSweep = now
}

// RateLimit rejects requests beyond the client's budget with 429
func RateLimit(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.getLimiter(c.Request.Method, c.ClientIP()).Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			return
		}

		c.Next()
	}
}

// RequestLogger logs one line per request through zerolog
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
