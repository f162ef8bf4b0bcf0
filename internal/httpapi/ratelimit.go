package httpapi

import (
	"sync"

	"golang.org/x/time/rate"
)

// tenantLimiter enforces a per-tenant request rate. Each tenant gets its
// own token bucket, created on first request.
type tenantLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newTenantLimiter(requestsPerSecond float64, burst int) *tenantLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &tenantLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow reports whether the tenant may proceed with one request.
func (t *tenantLimiter) Allow(tenantID string) bool {
	t.mu.Lock()
	l, ok := t.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.limiters[tenantID] = l
	}
	t.mu.Unlock()

	return l.Allow()
}
