package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// RunLockTTL bounds how long a crashed run can hold its lock
const RunLockTTL = 30 * time.Minute

// CacheService wraps redis for tool-answer caching and run locks
type CacheService struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewCacheService parses a redis URL and returns a connected cache.
func NewCacheService(redisURL string, logger *logrus.Logger) (*CacheService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CacheService{client: client, logger: logger}, nil
}

func (s *CacheService) buildCacheKey(elements ...string) string {
	return fmt.Sprintf("pick-research:%s", strings.Join(elements, ":"))
}

// Set stores a JSON-encoded value with a TTL
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to set cache value")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": ttl.String(),
	}).Debug("Cached value successfully")
	return nil
}

// Get decodes a cached value into dest
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		s.logger.WithError(err).WithField("key", key).Error("Failed to get cache value")
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to unmarshal cache value")
		return err
	}

	s.logger.WithField("key", key).Debug("Cache hit")
	return nil
}

func (s *CacheService) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// SetWithNX sets a value only if the key doesn't exist (for distributed locking)
func (s *CacheService) SetWithNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache value: %w", err)
	}

	ok, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to set cache value with NX")
		return false, err
	}
	return ok, nil
}

// AcquireRunLock claims generator+date for runID. It returns false when
// another scheduler already holds the lock.
func (s *CacheService) AcquireRunLock(ctx context.Context, generator, date, runID string) (bool, error) {
	return s.SetWithNX(ctx, s.buildCacheKey("lock", generator, date), runID, RunLockTTL)
}

// ReleaseRunLock drops the lock only if runID still owns it.
func (s *CacheService) ReleaseRunLock(ctx context.Context, generator, date, runID string) error {
	key := s.buildCacheKey("lock", generator, date)
	var owner string
	if err := s.Get(ctx, key, &owner); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	}
	if owner != runID {
		return nil
	}
	return s.Delete(ctx, key)
}

func (s *CacheService) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CacheService) Close() error {
	return s.client.Close()
}
