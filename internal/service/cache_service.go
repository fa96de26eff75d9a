package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// SlotCacheKey is the cache key for one resolved instructor day computed under
// the given cache generation of the instructor.
func SlotCacheKey(instructorID, date string, duration int, generation int64) string {
	return fmt.Sprintf("slots:%s:g%d:%s:%d", instructorID, generation, date, duration)
}

// slotGenerationKey sits outside the slots: namespace so pattern deletes keep it.
func slotGenerationKey(instructorID string) string {
	return "slotgen:" + instructorID
}

func slotCachePattern(instructorID string) string {
	return fmt.Sprintf("slots:%s:*", instructorID)
}

// CacheService wraps the slot cache with metrics. Cache failures never fail the caller.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) {
	if !s.Enabled() {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Generation returns the instructor's current slot cache generation. ok is false
// when it cannot be read, in which case the caller must bypass the cache.
func (s *CacheService) Generation(ctx context.Context, instructorID string) (gen int64, ok bool) {
	if !s.Enabled() {
		return 0, false
	}
	err := s.repo.Get(ctx, slotGenerationKey(instructorID), &gen)
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, appErrors.ErrCacheMiss):
		return 0, true
	default:
		s.logger.Warn("cache generation read failed", zap.String("instructor_id", instructorID), zap.Error(err))
		return 0, false
	}
}

// InvalidateInstructor bumps the instructor's generation so results computed from
// reads that started earlier are never served, then drops the existing entries.
func (s *CacheService) InvalidateInstructor(ctx context.Context, instructorID string) {
	if !s.Enabled() {
		return
	}
	if _, err := s.repo.Incr(ctx, slotGenerationKey(instructorID)); err != nil {
		s.logger.Warn("cache generation bump failed", zap.String("instructor_id", instructorID), zap.Error(err))
	}
	pattern := slotCachePattern(instructorID)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
