package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
)

const recentPostsLimit = 10

// StatsCache stores the public stats snapshot.
type StatsCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context) (stats *models.PublicStats, ok bool, err error)
	Set(ctx context.Context, stats *models.PublicStats, ttl time.Duration) error
}

// StatsService serves the unauthenticated network summary.
type StatsService interface {
	Public(ctx context.Context) (*models.PublicStats, error)
}

type statsService struct {
	agents repositories.AgentRepository
	posts  repositories.PostRepository
	cache  StatsCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatsService creates a StatsService. A zero ttl disables caching.
func NewStatsService(
	agents repositories.AgentRepository,
	posts repositories.PostRepository,
	cache StatsCache,
	ttl time.Duration,
	logger *zap.Logger,
) StatsService {
	return &statsService{
		agents: agents,
		posts:  posts,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Named("stats"),
	}
}

var _ StatsService = (*statsService)(nil)

func (s *statsService) Public(ctx context.Context) (*models.PublicStats, error) {
	caching := s.cache != nil && s.ttl > 0
	if caching {
		cached, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("Stats cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	agents, err := s.agents.Count(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.posts.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.posts.ListRecentAccepted(ctx, recentPostsLimit)
	if err != nil {
		return nil, err
	}

	stats := &models.PublicStats{
		Agents:      agents,
		Posts:       counts[models.PostStatusAccepted],
		RecentPosts: recent,
	}

	if caching {
		if err := s.cache.Set(ctx, stats, s.ttl); err != nil {
			s.logger.Warn("Stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// ============================================================================
// Cache implementations
// ============================================================================

const statsCacheKey = "forvm:stats:public"

// RedisStatsCache keeps the snapshot in Redis so every replica serves the same numbers.
type RedisStatsCache struct {
	client *redis.Client
}

// NewRedisStatsCache creates a Redis-backed StatsCache.
func NewRedisStatsCache(client *redis.Client) *RedisStatsCache {
	return &RedisStatsCache{client: client}
}

var _ StatsCache = (*RedisStatsCache)(nil)

func (c *RedisStatsCache) Get(ctx context.Context) (*models.PublicStats, bool, error) {
	raw, err := c.client.Get(ctx, statsCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats models.PublicStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, stats *models.PublicStats, ttl time.Duration) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsCacheKey, raw, ttl).Err()
}

// MemoryStatsCache is the single-process fallback when Redis is not configured.
type MemoryStatsCache struct {
	mu      sync.Mutex
	stats   *models.PublicStats
	expires time.Time
	now     func() time.Time
}

// NewMemoryStatsCache creates an in-process StatsCache.
func NewMemoryStatsCache() *MemoryStatsCache {
	return &MemoryStatsCache{now: time.Now}
}

var _ StatsCache = (*MemoryStatsCache)(nil)

func (c *MemoryStatsCache) Get(ctx context.Context) (*models.PublicStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil || !c.now().Before(c.expires) {
		return nil, false, nil
	}
	return c.stats, true, nil
}

func (c *MemoryStatsCache) Set(ctx context.Context, stats *models.PublicStats, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = stats
	c.expires = c.now().Add(ttl)
	return nil
}
