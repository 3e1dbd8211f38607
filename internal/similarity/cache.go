package similarity

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores computed pair scores keyed by scorer name and page pair.
type Cache interface {
	Get(ctx context.Context, key string) (float64, bool, error)
	Set(ctx context.Context, key string, score float64) error
}

// MemoryCache is an in-process Cache, safe for concurrent use.
type MemoryCache struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{scores: make(map[string]float64)}
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, key string) (float64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scores[key]
	return s, ok, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, key string, score float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[key] = score
	return nil
}

// RedisCache stores pair scores in Redis so repeated runs over the same
// project skip recomputation across processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. A zero ttl means entries do
// not expire.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (float64, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("similarity cache get: %w", err)
	}
	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("similarity cache get: parse %q: %w", val, err)
	}
	return score, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, score float64) error {
	err := c.client.Set(ctx, key, strconv.FormatFloat(score, 'g', -1, 64), c.ttl).Err()
	if err != nil {
		return fmt.Errorf("similarity cache set: %w", err)
	}
	return nil
}

// CachedScorer wraps a Scorer with a Cache. Only cache misses reach the
// underlying scorer; a cache read failure falls through to recomputation
// rather than failing the run.
type CachedScorer struct {
	inner Scorer
	cache Cache
}

// NewCachedScorer wraps scorer with cache.
func NewCachedScorer(scorer Scorer, cache Cache) *CachedScorer {
	return &CachedScorer{inner: scorer, cache: cache}
}

// Name implements Scorer.
func (s *CachedScorer) Name() string { return s.inner.Name() }

// Similarity implements Scorer.
func (s *CachedScorer) Similarity(ctx context.Context, pages []Page, pairs []PagePair) (map[PagePair]float64, error) {
	out := make(map[PagePair]float64, len(pairs))
	var misses []PagePair

	for _, pair := range pairs {
		score, ok, err := s.cache.Get(ctx, s.key(pair))
		if err != nil || !ok {
			misses = append(misses, pair)
			continue
		}
		out[pair] = score
	}

	if len(misses) == 0 {
		return out, nil
	}

	computed, err := s.inner.Similarity(ctx, pages, misses)
	if err != nil {
		return nil, err
	}
	for pair, score := range computed {
		out[pair] = score
		if err := s.cache.Set(ctx, s.key(pair), score); err != nil {
			// A write failure only costs a future recomputation.
			continue
		}
	}
	return out, nil
}

func (s *CachedScorer) key(pair PagePair) string {
	return fmt.Sprintf("linksim:sim:%s:%d:%d", s.inner.Name(), pair.A, pair.B)
}
