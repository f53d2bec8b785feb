package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/logging"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache abstracts the key/value operations used to cache records.
type Cache interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return value, err
}

// Delete removes a key from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// MemoryCache keeps entries in process, used when no Redis is configured.
type MemoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache creates an in-process cache with the given default TTL.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(defaultTTL, 2*defaultTTL)}
}

func (c *MemoryCache) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	c.store.Set(key, value, expiration)
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.store.Get(key)
	if !ok {
		return "", ErrCacheMiss
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrCacheMiss
	}
	return s, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

// CachedStore fronts a RecordStore with a read-through cache keyed by record id.
// Cache failures are logged and never fail the underlying operation.
type CachedStore struct {
	RecordStore
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCachedStore wraps store with cache.
func NewCachedStore(store RecordStore, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{
		RecordStore:    store,
		cache:          cache,
		ttl:            ttl,
		logger:         logger.Named("record_cache"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// cacheKey folds case so hex ids in either case share one entry.
func cacheKey(id string) string {
	return "estimation:" + strings.ToLower(id)
}

// Insert persists the record and warms the cache.
func (s *CachedStore) Insert(ctx context.Context, record *estimate.Record) error {
	if err := s.RecordStore.Insert(ctx, record); err != nil {
		return err
	}
	s.put(ctx, record)
	return nil
}

// FindByID serves from cache, falling back to the store.
func (s *CachedStore) FindByID(ctx context.Context, id string) (*estimate.Record, error) {
	var cached string
	err := s.withCacheRetry(ctx, id, "cache.get.record", func() error {
		v, err := s.cache.Get(ctx, cacheKey(id))
		cached = v
		return err
	})
	if err == nil {
		var record estimate.Record
		if err := json.Unmarshal([]byte(cached), &record); err == nil {
			return &record, nil
		}
		logging.WithOperation(s.logger, "cache.get.record", id).Warn("failed to decode cached record", zap.Error(err))
	} else if !errors.Is(err, ErrCacheMiss) {
		logging.WithOperation(s.logger, "cache.get.record", id).Warn("failed to read cache", zap.Error(err))
	}

	record, err := s.RecordStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(ctx, record)
	return record, nil
}

// Delete removes the record and evicts it.
func (s *CachedStore) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.RecordStore.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.withCacheRetry(ctx, id, "cache.delete.record", func() error {
		return s.cache.Delete(ctx, cacheKey(id))
	}); err != nil {
		logging.WithOperation(s.logger, "cache.delete.record", id).Error("failed to evict record", zap.Error(err))
	}
	return deleted, nil
}

func (s *CachedStore) put(ctx context.Context, record *estimate.Record) {
	serialized, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("failed to serialize record", zap.Error(err), zap.String("record_id", record.ID))
		return
	}
	if err := s.withCacheRetry(ctx, record.ID, "cache.set.record", func() error {
		return s.cache.Set(ctx, cacheKey(record.ID), string(serialized), s.ttl)
	}); err != nil {
		logging.WithOperation(s.logger, "cache.set.record", record.ID).Warn("failed to cache record", zap.Error(err))
	}
}

func (s *CachedStore) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil || errors.Is(err, ErrCacheMiss) {
			return err
		}
		if !logging.IsTransient(err) {
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}
