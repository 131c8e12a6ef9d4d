// Package cache provides a Redis-backed response cache for the volatility
// summary surface. Keys embed the project id so a snapshot-captured event
// can invalidate one project's entries by pattern; concurrent misses for
// the same key collapse into a single computation via singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/rankpulse/rankpulse/pkg/config"
	"github.com/rankpulse/rankpulse/pkg/logger"
	pkgredis "github.com/rankpulse/rankpulse/pkg/redis"
)

const keyPrefix = "volatility:"

// SummaryCache caches serialized summary responses.
type SummaryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a SummaryCache over the shared redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *SummaryCache {
	return &SummaryCache{
		client: client,
		cfg:    cfg,
		logger: logger.WithComponent("summary-cache"),
	}
}

// BuildKey derives the cache key for one computed response: the project id
// stays in clear for pattern invalidation, the parameter tail is hashed.
func BuildKey(projectID, surface string, parts ...string) string {
	raw := surface + "|" + strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, projectID, hash[:16])
}

// Get returns the cached response bytes for key, if present.
func (c *SummaryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return []byte(data), true
}

// Set stores a serialized response under key with the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, key string, data []byte) {
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached bytes for key or runs computeFn exactly
// once across concurrent callers, caching its result. The boolean reports a
// cache hit.
func (c *SummaryCache) GetOrCompute(ctx context.Context, key string, computeFn func() ([]byte, error)) ([]byte, bool, error) {
	if data, ok := c.Get(ctx, key); ok {
		return data, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if data, ok := c.Get(ctx, key); ok {
			return data, nil
		}
		data, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, data)
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]byte), false, nil
}

// InvalidateProject removes every cached response for one project.
func (c *SummaryCache) InvalidateProject(ctx context.Context, projectID string) error {
	pattern := keyPrefix + projectID + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating project cache: %w", err)
	}
	c.logger.Info("project cache invalidated", "project_id", projectID, "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counters.
func (c *SummaryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
