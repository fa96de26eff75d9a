package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

const (
	defaultCacheNamespace = "dsa"
	unlinkBatchSize       = 200
)

// CacheRepository stores resolved slot lists in Redis as JSON under a shared namespace.
// A nil client turns every call into a miss or a no-op.
type CacheRepository struct {
	client    *redis.Client
	namespace string
	logger    *zap.Logger
}

// NewCacheRepository constructs a cache repository using the default key namespace.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	return NewNamespacedCacheRepository(client, defaultCacheNamespace, logger)
}

// NewNamespacedCacheRepository lets several deployments share one Redis database.
func NewNamespacedCacheRepository(client *redis.Client, namespace string, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{
		client:    client,
		namespace: strings.Trim(strings.TrimSpace(namespace), ":"),
		logger:    logger,
	}
}

func (r *CacheRepository) key(raw string) string {
	if r.namespace == "" {
		return raw
	}
	return r.namespace + ":" + raw
}

// Get loads the slot list stored under key into dest.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	full := r.key(key)
	raw, err := r.client.Get(ctx, full).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("cache get %s: %w", full, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		// A payload from an older release is treated as absent and dropped.
		_ = r.client.Unlink(ctx, full).Err()
		r.logger.Warn("discarding undecodable cache entry", zap.String("key", full), zap.Error(err))
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value under key for ttl. A non-positive ttl is rejected so entries never outlive invalidation.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	if ttl <= 0 {
		return fmt.Errorf("cache set %s: ttl must be positive", key)
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	full := r.key(key)
	if err := r.client.Set(ctx, full, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", full, err)
	}
	return nil
}

// DeleteByPattern unlinks every key matching pattern, flushing in batches while scanning.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}

	full := r.key(pattern)
	batch := make([]string, 0, unlinkBatchSize)
	removed := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("cache unlink %d keys for %s: %w", len(batch), full, err)
		}
		removed += len(batch)
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, full, 100).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == unlinkBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan %s: %w", full, err)
	}
	if err := flush(); err != nil {
		return err
	}

	if removed > 0 {
		r.logger.Debug("slot cache invalidated", zap.String("pattern", full), zap.Int("count", removed))
	}
	return nil
}

// Incr atomically increments the integer stored under key, starting from zero.
// The counter has no TTL; it only orders writes against cached reads.
func (r *CacheRepository) Incr(ctx context.Context, key string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	full := r.key(key)
	n, err := r.client.Incr(ctx, full).Result()
	if err != nil {
		return 0, fmt.Errorf("cache incr %s: %w", full, err)
	}
	return n, nil
}

// PingContext reports whether Redis answers; it satisfies the readiness probe's pinger.
func (r *CacheRepository) PingContext(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
