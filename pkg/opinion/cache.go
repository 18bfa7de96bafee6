package opinion

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auramd-consensus-server/internal/domain"
)

// Cache wraps a Redis client with caching for per-source opinions. Identical
// cases hitting the same source within the TTL skip the upstream call.
type Cache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCache creates a new opinion cache client.
func NewCache(config domain.CacheConfig) (*Cache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// CachedOpinion carries a cached opinion with its freshness metadata.
type CachedOpinion struct {
	Data      *domain.RawOpinion `json:"data"`
	CachedAt  time.Time          `json:"cached_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Get retrieves a cached opinion for the source and case, if present.
func (c *Cache) Get(ctx context.Context, sourceID string, cc *domain.CaseContext) (*domain.RawOpinion, bool, error) {
	key := c.generateKey(sourceID, cc)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get opinion cache: %w", err)
	}

	var cached CachedOpinion
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// Set caches one source opinion for the case.
func (c *Cache) Set(ctx context.Context, sourceID string, cc *domain.CaseContext, op *domain.RawOpinion, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	key := c.generateKey(sourceID, cc)

	cached := CachedOpinion{
		Data:      op,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached opinion: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// InvalidateCase removes cached opinions for a case across the given sources.
func (c *Cache) InvalidateCase(ctx context.Context, sourceIDs []string, cc *domain.CaseContext) error {
	keys := make([]string, 0, len(sourceIDs))
	for _, sourceID := range sourceIDs {
		keys = append(keys, c.generateKey(sourceID, cc))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Ping checks if the Redis connection is alive.
func (c *Cache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.redis.Close()
}

// generateKey creates a standardized cache key for a source/case pair. The
// case fingerprint hashes the full normalized context, so any change to the
// case produces a distinct key.
func (c *Cache) generateKey(sourceID string, cc *domain.CaseContext) string {
	payload, _ := json.Marshal(cc)
	hash := sha256.Sum256(payload)
	return fmt.Sprintf("opinion:%s:%x", sourceID, hash[:8])
}
