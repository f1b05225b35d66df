package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Limit defines a token bucket for an endpoint pattern.
type Limit struct {
	Rate  rate.Limit
	Burst int
}

type keyLimiter struct {
	lim *rate.Limiter
	ts  time.Time
}

// RateLimiter applies per-IP token buckets keyed by endpoint pattern.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*keyLimiter
	limits  map[string]Limit
	ttl     time.Duration
	logger  zerolog.Logger
	stop    chan struct{}
}

// NewRateLimiter creates a rate limiter with per-endpoint limits. Call Stop
// to end its cleanup goroutine.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*keyLimiter),
		ttl:     2 * time.Minute,
		logger:  logger,
		stop:    make(chan struct{}),
		limits: map[string]Limit{
			"POST /rooms": {rate.Every(6 * time.Second), 10},
			"GET /rooms":  {rate.Every(500 * time.Millisecond), 60},
			"GET /client": {rate.Every(time.Second), 30},
			"GET /ws/":    {rate.Every(2 * time.Second), 30},
		},
	}
	go rl.gc()
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	select {
	case <-rl.stop:
	default:
		close(rl.stop)
	}
}

func (rl *RateLimiter) get(key string, limit Limit) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	kl, ok := rl.buckets[key]
	if ok {
		kl.ts = time.Now()
		return kl.lim
	}
	lim := rate.NewLimiter(limit.Rate, limit.Burst)
	rl.buckets[key] = &keyLimiter{lim: lim, ts: time.Now()}
	return lim
}

// gc drops buckets that have been idle longer than the TTL.
func (rl *RateLimiter) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for k, v := range rl.buckets {
				if now.Sub(v.ts) > rl.ttl {
					delete(rl.buckets, k)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// findLimit finds the matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) (string, Limit, bool) {
	key := r.Method + " " + r.URL.Path
	for pattern, limit := range rl.limits {
		if strings.HasPrefix(key, pattern) {
			return pattern, limit, true
		}
	}
	return "", Limit{}, false
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pattern, limit, ok := rl.findLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r.RemoteAddr)
		lim := rl.get(ip+"|"+pattern, limit)

		allowed := lim.Allow()
		remaining := int(lim.Tokens())
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			retryAfter := int(time.Duration(float64(time.Second) / float64(limit.Rate)).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			rl.logger.Warn().
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("pattern", pattern).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from a remote address.
func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
