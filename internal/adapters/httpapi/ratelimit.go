package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client address. Idle clients are forgotten after
// the idle TTL so the registry does not grow without bound.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *gocache.Cache
}

// NewRateLimiter allows perMinute requests per client with the given burst. A zero or
// negative perMinute disables limiting.
func NewRateLimiter(perMinute float64, burst int, idleTTL time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	lim := rate.Inf
	if perMinute > 0 {
		lim = rate.Limit(perMinute / 60)
	}
	return &RateLimiter{
		limit:    lim,
		burst:    burst,
		limiters: gocache.New(idleTTL, 2*idleTTL),
	}
}

func (l *RateLimiter) limiterFor(client string) *rate.Limiter {
	if v, ok := l.limiters.Get(client); ok {
		// Touch to extend the idle TTL.
		l.limiters.SetDefault(client, v)
		return v.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(client, fresh, gocache.DefaultExpiration); err != nil {
		// Another request created it first.
		if v, ok := l.limiters.Get(client); ok {
			return v.(*rate.Limiter)
		}
	}
	return fresh
}

// Allow reports whether client may proceed now, and otherwise how long to wait.
func (l *RateLimiter) Allow(client string) (bool, time.Duration) {
	if l == nil || l.limit == rate.Inf {
		return true, 0
	}
	res := l.limiterFor(client).Reserve()
	if !res.OK() {
		return false, time.Minute
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return false, d
	}
	return true, 0
}

// Middleware rejects over-limit requests with 429 and a Retry-After header.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.Allow(clientAddr(r))
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Terlalu banyak percobaan. Coba lagi sebentar.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr is the caller's IP (RealIP has already applied forwarding headers).
func clientAddr(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
