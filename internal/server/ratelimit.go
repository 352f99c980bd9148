package server

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-user sliding-window request budget. The window
// slides continuously: a request is admitted when fewer than limit requests
// were admitted within the last window duration.
//
// The limiter is safe for concurrent use. The clock is injectable for tests.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[int64][]time.Time
}

// NewRateLimiter creates a limiter admitting limit requests per user per
// window. A non-positive limit or window disables the limiter: Allow always
// returns true.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[int64][]time.Time),
	}
}

// Allow reports whether the user may issue another request now, and records
// the request if so. Denied requests are not recorded and do not extend the
// window.
func (l *RateLimiter) Allow(userID int64) bool {
	if l.limit <= 0 || l.window <= 0 {
		return true
	}

	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.buckets[userID]
	expired := 0
	for expired < len(bucket) && bucket[expired].Before(cutoff) {
		expired++
	}
	if expired > 0 {
		// Compact in place so the backing array does not pin every expired
		// timestamp for long-lived users.
		n := copy(bucket, bucket[expired:])
		bucket = bucket[:n]
	}
	if len(bucket) >= l.limit {
		l.buckets[userID] = bucket
		return false
	}
	l.buckets[userID] = append(bucket, now)
	return true
}
