package util

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter spaces outbound requests per platform. Each platform gets its
// own token bucket, so a burst against one site never slows the others; a
// platform's result pages and detail pages draw from the same bucket even
// when they sit on different subdomains of it (www.leboncoin.fr vs
// leboncoin.fr).
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perHost  rate.Limit
	burst    int
}

func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		perHost:  rate.Limit(reqPerSec),
		burst:    burst,
	}
}

// hostKey folds a URL down to a platform identity: hostname without port,
// lowercased, leading www. stripped. Unparseable URLs share one bucket so a
// bug in URL building cannot bypass the limiter.
func hostKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "_"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func (hl *HostLimiter) limiterFor(key string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.limiters[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.perHost, hl.burst)
	hl.limiters[key] = lim
	return lim
}

// WaitURL blocks until the platform behind raw has budget for one more
// request, or ctx ends.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	return hl.limiterFor(hostKey(raw)).Wait(ctx)
}

// Hostname returns the bare hostname of a URL, for scoping a collector to
// the platform it was built for.
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
