package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiterClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key and forgets clients that
// have been idle for longer than the TTL.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateLimiterClient
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter constructs a rate limiter with the provided settings.
func NewRateLimiter(burst int, refillPerSecond float64, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*rateLimiterClient),
		limit:   rate.Limit(refillPerSecond),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	if ttl > 0 {
		ticker := time.NewTicker(ttl)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					rl.pruneStale()
				case <-rl.stop:
					return
				}
			}
		}()
	}

	return rl
}

// Allow consumes a token for the provided key if possible.
func (rl *RateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[key]
	if !ok {
		client = &rateLimiterClient{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = client
	}

	client.lastSeen = now
	return client.limiter.AllowN(now, 1)
}

// Close stops the background pruning loop.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stop)
	})
}

func (rl *RateLimiter) pruneStale() {
	if rl.ttl <= 0 {
		return
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, client := range rl.clients {
		if now.Sub(client.lastSeen) > rl.ttl {
			delete(rl.clients, key)
		}
	}
}
