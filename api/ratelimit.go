package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle user's limiter is kept.
const visitorTTL = 10 * time.Minute

// RateLimiter throttles mutations per authenticated user, falling back to
// the remote address for anonymous callers.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perMin    int
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMin requests per minute with a burst of perMin.
// perMin <= 0 disables limiting.
func NewRateLimiter(perMin int) *RateLimiter {
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		perMin:    perMin,
		lastSweep: time.Now(),
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > visitorTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(rl.perMin)/60), rl.perMin)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Limit is chi middleware.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.perMin <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := r.RemoteAddr
		if user, ok := UserIDFrom(r.Context()); ok {
			key = "user:" + string(user)
		}
		if !rl.getLimiter(key).Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests, try again in a minute", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
