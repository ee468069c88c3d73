package httpx

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyperfoil/horreum-auth/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines a per-key request budget.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Rate limit profiles for the different endpoint classes.
var (
	// StrictLimit guards credential issuance and other abuse-prone writes.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit covers authenticated mutations.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit covers authenticated reads and health probes.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}
)

// KeyExtractor derives the grouping key a request is limited under.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor groups requests by client IP, honouring proxy headers.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserKeyExtractor groups requests by authenticated username, empty when
// anonymous.
func UserKeyExtractor(r *http.Request) string {
	if id, ok := IdentityFromContext(r.Context()); ok {
		return id.Username
	}
	return ""
}

type limiterPool struct {
	limiters    sync.Map // key -> *rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func (p *limiterPool) get(key string) *rate.Limiter {
	if l, ok := p.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := p.limiters.LoadOrStore(key, rate.NewLimiter(p.rate, p.burst))
	p.maybeCleanup()
	return l.(*rate.Limiter)
}

// Drop limiters whose buckets have refilled completely; they have been idle
// for at least a full window.
func (p *limiterPool) maybeCleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastCleanup) < 5*time.Minute {
		return
	}
	p.lastCleanup = time.Now()

	p.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(p.burst) {
			p.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit limits requests per extracted key using a token bucket.
func RateLimit(cfg RateLimitConfig, extract KeyExtractor) Middleware {
	pool := &limiterPool{
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extract(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := pool.get(key)
			if !limiter.Allow() {
				res := limiter.Reserve()
				delay := res.Delay()
				res.Cancel()

				retryAfter := max(int(delay.Seconds()), 1)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"key", key, "path", r.URL.Path)
				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client IP only.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimit(cfg, IPKeyExtractor)
}

// RateLimitByUser limits by authenticated username, falling back to IP for
// anonymous requests.
func RateLimitByUser(cfg RateLimitConfig) Middleware {
	return RateLimit(cfg, func(r *http.Request) string {
		if user := UserKeyExtractor(r); user != "" {
			return user
		}
		return IPKeyExtractor(r)
	})
}
