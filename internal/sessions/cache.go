package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

// CacheKeyPrefix prefixes every session cache key.
const CacheKeyPrefix = "session:"

// ErrCacheMiss is returned by Cache.Get when no entry exists.
var ErrCacheMiss = errors.New("session cache miss")

// Cache stores validated principals keyed by token hash.
type Cache interface {
	Get(ctx context.Context, tokenHash string) (*models.Principal, error)
	Set(ctx context.Context, tokenHash string, p *models.Principal, ttl time.Duration) error
	Delete(ctx context.Context, tokenHashes ...string) error
}

// NoopCache never stores anything. It is used when Redis is disabled.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*models.Principal, error) { return nil, ErrCacheMiss }

func (NoopCache) Set(context.Context, string, *models.Principal, time.Duration) error { return nil }

func (NoopCache) Delete(context.Context, ...string) error { return nil }

// cacheEntry is the stored form of a principal. models.User hides some
// fields from JSON, so they are carried explicitly.
type cacheEntry struct {
	User           models.User `json:"user"`
	ExternalID     *string     `json:"external_id,omitempty"`
	SessionID      string      `json:"session_id"`
	OrganizationID string      `json:"organization_id,omitempty"`
	Role           string      `json:"role,omitempty"`
	ExpiresAt      time.Time   `json:"expires_at"`
}

// RedisCache keeps principals in Redis under CacheKeyPrefix + token hash.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache creates a RedisCache on client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func cacheKey(tokenHash string) string {
	return CacheKeyPrefix + tokenHash
}

// Get returns the cached principal or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, tokenHash string) (*models.Principal, error) {
	data, err := c.client.Get(ctx, cacheKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.SessionCacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil, ErrCacheMiss
	}
	if err != nil {
		telemetry.SessionCacheRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read session cache: %w", err)
	}

	var e cacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		telemetry.SessionCacheRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to decode session cache entry: %w", err)
	}
	telemetry.SessionCacheRequestsTotal.WithLabelValues("hit").Inc()

	p := &models.Principal{
		User:           e.User,
		SessionID:      e.SessionID,
		OrganizationID: e.OrganizationID,
		Role:           models.Role(e.Role),
		ExpiresAt:      e.ExpiresAt,
	}
	p.User.ExternalID = e.ExternalID
	return p, nil
}

// Set stores p for ttl. Non-positive ttls are skipped.
func (c *RedisCache) Set(ctx context.Context, tokenHash string, p *models.Principal, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(cacheEntry{
		User:           p.User,
		ExternalID:     p.User.ExternalID,
		SessionID:      p.SessionID,
		OrganizationID: p.OrganizationID,
		Role:           string(p.Role),
		ExpiresAt:      p.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session cache entry: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session cache: %w", err)
	}
	return nil
}

// Delete evicts the given token hashes.
func (c *RedisCache) Delete(ctx context.Context, tokenHashes ...string) error {
	if len(tokenHashes) == 0 {
		return nil
	}
	keys := make([]string, len(tokenHashes))
	for i, h := range tokenHashes {
		keys[i] = cacheKey(h)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to evict session cache: %w", err)
	}
	return nil
}
