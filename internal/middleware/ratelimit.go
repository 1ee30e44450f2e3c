// ratelimit.go provides Gin middleware that enforces per-client rate limits, returning 429
// responses when the configured requests-per-minute threshold is exceeded. Limits are kept
// in process (token bucket) or in Redis (GCRA via redis_rate) so replicas share counters.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aragroup/ara-platform/internal/safego"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often to clean up expired entries (memory backend only)
	CleanupInterval time.Duration
	// Name separates the Redis key space of limiters sharing one server.
	Name string
}

// DefaultRateLimitConfig returns the limits for general API traffic
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 200,
		BurstSize:         50, // pages fan out into several API calls on load
		CleanupInterval:   5 * time.Minute,
		Name:              "api",
	}
}

// AuthRateLimitConfig returns stricter limits for sign-in and callback endpoints
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
		Name:              "auth",
	}
}

// UploadRateLimitConfig returns limits for logo uploads
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
		Name:              "upload",
	}
}

// LimitResult is the outcome of one rate limit check.
type LimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter consumes one request from key's allowance.
type Limiter interface {
	Take(ctx context.Context, key string) (LimitResult, error)
}

// bucket is one client's token bucket.
type bucket struct {
	tokens float64
	seen   time.Time
}

// idleTTL is how long an untouched bucket is kept before cleanup drops it.
const idleTTL = 10 * time.Minute

// RateLimiter is the in-process token bucket Limiter. Each key starts with
// BurstSize tokens and regains RequestsPerMinute/60 per second.
type RateLimiter struct {
	config  RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a RateLimiter and starts its cleanup loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	safego.Go("rate-limiter-cleanup-"+config.Name, rl.cleanupLoop)
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idleTTL)
	for key, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) perSecond() float64 {
	return float64(rl.config.RequestsPerMinute) / 60.0
}

// Take implements Limiter.
func (rl *RateLimiter) Take(_ context.Context, key string) (LimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	burst := float64(rl.config.BurstSize)
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, seen: now}
		rl.buckets[key] = b
	}
	b.tokens = min(burst, b.tokens+now.Sub(b.seen).Seconds()*rl.perSecond())
	b.seen = now

	res := LimitResult{Limit: rl.config.RequestsPerMinute}
	if b.tokens >= 1 {
		b.tokens--
		res.Allowed = true
	} else if rl.perSecond() > 0 {
		res.RetryAfter = time.Duration((1 - b.tokens) / rl.perSecond() * float64(time.Second))
	}
	res.Remaining = int(b.tokens)
	return res, nil
}

// RedisLimiter shares rate limits across replicas through Redis.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter creates a RedisLimiter on client.
func NewRedisLimiter(client redis.UniversalClient, config RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
		prefix: config.Name + ":",
	}
}

// Take implements Limiter.
func (l *RedisLimiter) Take(ctx context.Context, key string) (LimitResult, error) {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		return LimitResult{}, err
	}
	return LimitResult{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// NewLimiter returns the limiter for backend: "redis" when client is non-nil,
// otherwise the in-process token bucket.
func NewLimiter(backend string, client redis.UniversalClient, config RateLimitConfig) Limiter {
	if backend == "redis" && client != nil {
		return NewRedisLimiter(client, config)
	}
	return NewRateLimiter(config)
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests. Limiter
// failures let the request through.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		res, err := limiter.Take(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))

		if !res.Allowed {
			retryAfter := max(int(math.Ceil(res.RetryAfter.Seconds())), 1)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting
// Priority: user_id > IP address
func getRateLimitKey(c *gin.Context) string {
	if id := c.GetString(ContextKeyUserID); id != "" {
		return "user:" + id
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
