package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests per second allowed per
	// IP on rate-limited endpoints when no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst is the maximum burst size per IP when no explicit
	// burst is configured.
	defaultRateBurst = 20

	// limiterTTL is how long an idle IP entry survives before eviction.
	limiterTTL = 5 * time.Minute

	// evictInterval is how often the eviction sweep runs.
	evictInterval = time.Minute
)

// ipBucket pairs a token bucket with the last time its IP was seen, so
// idle entries can be swept out of the map.
type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token-bucket rate limit on the expensive
// endpoints. Entries for idle IPs are swept periodically so the map stays
// bounded.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts its eviction sweep.
// The sweep goroutine exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*ipBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.evict()
			}
		}
	}()

	return rl, func() { close(done) }
}

// allow consumes one token from the IP's bucket, creating the bucket on
// first sight. It reports whether the request may proceed.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.limiter.Allow()
}

// evict removes IP entries idle longer than limiterTTL.
func (rl *rateLimiter) evict() {
	cutoff := time.Now().Add(-limiterTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// middleware wraps next with the rate limit. Requests over the limit get
// 429 Too Many Requests with a Retry-After header.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is not consulted; the default deployment has no proxy
// in front of the server.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
