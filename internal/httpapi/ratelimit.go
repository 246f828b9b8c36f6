package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"typerace/internal/metrics"
)

const (
	rateLimitWindow      = 15 * time.Minute
	rateLimitRequests    = 100
	rateLimiterIdleAfter = 30 * time.Minute
)

// ipRateLimiter grants each client IP a token bucket refilling to
// rateLimitRequests tokens over rateLimitWindow, mirroring the
// per-operation rate.Limiter pattern the reference fleet uses for
// health checks and commands, but keyed by remote address instead of
// operation name.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter() *ipRateLimiter {
	r := &ipRateLimiter{limiters: make(map[string]*entry)}
	go r.sweepLoop()
	return r
}

// sweepLoop runs for the lifetime of the process, evicting idle entries
// every rateLimiterIdleAfter so a long-running server doesn't accumulate
// one map entry per distinct client IP forever.
func (r *ipRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterIdleAfter)
	defer ticker.Stop()
	for now := range ticker.C {
		r.sweep(now)
	}
}

func (r *ipRateLimiter) allow(ip string) bool {
	r.mu.Lock()
	e, ok := r.limiters[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(rateLimitWindow/rateLimitRequests), rateLimitRequests)}
		r.limiters[ip] = e
	}
	e.lastSeen = time.Now()
	r.mu.Unlock()
	return e.limiter.Allow()
}

// sweep evicts limiters for IPs that haven't made a request recently.
func (r *ipRateLimiter) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ip, e := range r.limiters {
		if now.Sub(e.lastSeen) > rateLimiterIdleAfter {
			delete(r.limiters, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// rateLimit wraps next so requests beyond rateLimitRequests per
// rateLimitWindow per IP get a 429.
func (s *Server) rateLimit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			metrics.HTTPRateLimitedCounter.WithLabelValues(route).Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
