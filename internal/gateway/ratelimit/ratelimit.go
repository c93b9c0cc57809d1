// Package ratelimit implements the Gateway's per-IP token bucket, ported
// from original_source/crates/repl-api/src/rate_limit.rs's TokenBucket
// (spec §3 "RateBucket", §4.4 "Rate limiting").
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a per-IP token bucket rate limiter with a background sweeper
// that evicts idle buckets.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   float64
	refillRate float64 // tokens per second
	idleTTL    time.Duration
}

// New builds a Limiter. requestsPerMinute and burst mirror spec §4.4's
// defaults (60/min, burst 10).
func New(requestsPerMinute, burst float64, idleTTL time.Duration) *Limiter {
	l := &Limiter{
		buckets:    make(map[string]*bucket),
		capacity:   burst,
		refillRate: requestsPerMinute / 60.0,
		idleTTL:    idleTTL,
	}
	go l.sweepLoop()
	return l
}

// Allow consumes one token for ip. On denial it returns the duration the
// caller should wait before retrying (spec §4.4 "Retry-After").
func (l *Limiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: time.Now()}
		l.buckets[ip] = b
	}
	l.refill(b)

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - b.tokens
	wait := time.Duration(needed / l.refillRate * float64(time.Second))
	return false, wait
}

func (l *Limiter) refill(b *bucket) {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(b.tokens+elapsed*l.refillRate, l.capacity)
	b.lastRefill = now
}

// sweepLoop evicts buckets idle for longer than idleTTL every 5 minutes
// (spec §3 "Lifecycle": "evicted by a sweep every 5 minutes").
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for ip, b := range l.buckets {
			if now.Sub(b.lastRefill) > l.idleTTL {
				delete(l.buckets, ip)
			}
		}
		l.mu.Unlock()
	}
}
