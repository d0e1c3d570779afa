package handler

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

// clientBuckets holds one token bucket per client address.
type clientBuckets struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func (b *clientBuckets) get(addr string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.buckets[addr]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.rps, b.burst)}
		b.buckets[addr] = bk
	}
	bk.lastSeen = now
	return bk.lim
}

func (b *clientBuckets) sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for addr, bk := range b.buckets {
		if now.Sub(bk.lastSeen) > limiterIdleAfter {
			delete(b.buckets, addr)
		}
	}
}

// RateLimiter limits every API request of one client address to rps per
// second with bursts of up to burst. Reads and ledger calls share one
// bucket. A rejected request gets 429 with reason "rate_limited" and a
// Retry-After of whole seconds until the next token. Buckets idle for ten
// minutes are swept until stop is closed.
func RateLimiter(rps, burst int, stop <-chan struct{}) gin.HandlerFunc {
	b := &clientBuckets{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}

	go func() {
		ticker := time.NewTicker(limiterSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				b.sweep(now)
			case <-stop:
				return
			}
		}
	}()

	return func(c *gin.Context) {
		now := time.Now()
		res := b.get(c.ClientIP(), now).ReserveN(now, 1)
		if !res.OK() {
			abortRateLimited(c, time.Second)
			return
		}
		if wait := res.DelayFrom(now); wait > 0 {
			res.CancelAt(now)
			abortRateLimited(c, wait)
			return
		}
		c.Next()
	}
}

func abortRateLimited(c *gin.Context, wait time.Duration) {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":  "rate limit exceeded",
		"reason": "rate_limited",
	})
}
