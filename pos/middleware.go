package pos

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-Id"

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the settlement stream upgrade to a websocket through the
// logging middleware.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}

	w.status = http.StatusSwitchingProtocols

	return hijacker.Hijack()
}

func (p *Pos) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.New().String()

		w.Header().Set(requestIDHeader, id)
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// polling would drown everything else
		if strings.HasPrefix(r.URL.Path, "/api/check_payment/") && wrapped.status == http.StatusOK {
			p.log.Debugf("%v %v %v %d %v", id, r.Method, r.URL.Path, wrapped.status, time.Since(start))
			return
		}

		p.log.Infof("%v %v %v %d %v", id, r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}

// limiterIdleTimeout is how long a client's limiter is kept after its last
// request. A full bucket is no different from a fresh one after that.
const limiterIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands out one limiter per client ip and forgets clients that
// went quiet.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	rate      rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
}

func newIPRateLimiter(r float64, burst int) *ipRateLimiter {
	if burst < 1 {
		burst = 1
	}

	return &ipRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(r),
		burst:    burst,
		idle:     limiterIdleTimeout,
		now:      time.Now,
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	if now.Sub(rl.lastSweep) >= rl.idle {
		rl.sweep(now)
	}

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

// sweep drops every visitor idle for longer than the idle timeout. Must be
// called with the lock held.
func (rl *ipRateLimiter) sweep(now time.Time) {
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= rl.idle {
			delete(rl.visitors, ip)
		}
	}

	rl.lastSweep = now
}

func (rl *ipRateLimiter) len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.visitors)
}

// rateLimitMiddleware bounds how fast a single client can make the node
// issue invoices.
func rateLimitMiddleware(limiter *ipRateLimiter, trustProxy bool, log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r, trustProxy)

			if !limiter.allow(ip) {
				log.Warnf("Rate limit exceeded for %v on %v", ip, r.URL.Path)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractIP gets the client ip. The first X-Forwarded-For entry is only
// believed when the store runs behind a reverse proxy that sets it.
func extractIP(r *http.Request, trustProxy bool) string {
	if xff := r.Header.Get("X-Forwarded-For"); trustProxy && xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
