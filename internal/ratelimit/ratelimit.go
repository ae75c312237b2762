// Package ratelimit implements the per-source-IP announce throttle
// (EXP-3 domain stack wiring), grounded on the teacher's
// ThrottledWriter (internal/agent/throttle.go), which wraps
// golang.org/x/time/rate around an io.Writer. This package reuses the
// same library for a different shape: rather than pacing bytes on one
// writer, it gates whether a given source IP's Announce may proceed
// at all, denying rather than blocking when the bucket is empty — a
// socket worker cannot afford to stall a connection's read loop
// waiting on another peer's quota.
package ratelimit

import (
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per source IP, evicting idle
// entries is left to the caller (see Forget) since only the socket
// worker knows which addresses still have a live connection.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// New builds a Limiter allowing ratePerSecond announces per source IP,
// with the given burst. A nil *Limiter (via New with ratePerSecond<=0)
// is not produced; callers gate construction on config.RateLimitInfo.Enabled.
func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(ratePerSecond),
		burst:   burst,
	}
}

// Allow reports whether an announce from addr may proceed now. addr
// is typically a net.Addr.String() value; only the IP portion is
// used, so multiple connections from the same peer share one bucket.
func (l *Limiter) Allow(addr string) bool {
	key := hostOf(addr)

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	return b.Allow()
}

// Forget drops the bucket for addr's IP so idle source IPs do not
// accumulate unbounded memory. The socket workers call it whenever a
// connection closes; open connections from the same IP are not
// counted, so their next Allow starts from a fresh bucket.
func (l *Limiter) Forget(addr string) {
	key := hostOf(addr)
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len reports the number of tracked source IPs, for tests and metrics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
