package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

// Limit is a token bucket: Requests per Per on average, with Burst
// requests allowed back to back.
type Limit struct {
	Requests int
	Per      time.Duration
	Burst    int
}

var (
	// LoginLimit guards the unauthenticated auth endpoints.
	LoginLimit = Limit{Requests: 10, Per: time.Minute, Burst: 10}
	// APILimit applies to everything else.
	APILimit = Limit{Requests: 1000, Per: time.Minute, Burst: 1000}
)

// PerMinute is a Limit of n requests a minute with a burst of n.
func PerMinute(n int) Limit { return Limit{Requests: n, Per: time.Minute, Burst: n} }

func (l Limit) every() rate.Limit {
	if l.Per <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(l.Requests) / l.Per.Seconds())
}

// KeyFunc picks the bucket a request is charged to. An empty key is not
// limited.
type KeyFunc func(*http.Request) string

// ClientIP keys by the caller's address, honouring X-Forwarded-For and
// X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserOrIP keys by the authenticated user, falling back to ClientIP. It must
// run after BearerAuth.
func UserOrIP(r *http.Request) string {
	if id := UserID(r.Context()); id != "" {
		return "user:" + id
	}
	return ClientIP(r)
}

// Limiter holds one bucket per key.
type Limiter struct {
	limit Limit
	key   KeyFunc

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewLimiter(limit Limit, key KeyFunc) *Limiter {
	return &Limiter{limit: limit, key: key, buckets: map[string]*rate.Limiter{}}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit.every(), l.limit.Burst)
		l.buckets[key] = b
	}
	return b
}

// Sweep drops buckets that have refilled completely and reports how many
// were dropped. A full bucket is indistinguishable from a new one.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if b.Tokens() >= float64(l.limit.Burst) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.key(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			b := l.bucket(key)
			if !b.Allow() {
				res := b.Reserve()
				wait := res.Delay()
				res.Cancel()

				retryAfter := max(int(wait.Round(time.Second).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit.Requests))
				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"key", key, "path", r.URL.Path, "retry_after", retryAfter)
				WriteError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
