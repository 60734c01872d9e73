package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/score-ledger/internal/config"
	"github.com/score-ledger/internal/domain"
)

// Cache holds recently computed claimed-leaderboard pages so the public
// endpoint does not hit Postgres on every poll. Entries carry a short TTL
// and every successful claim drops the whole keyspace, so stale reads are
// bounded by the TTL. The cache is best-effort: any Redis failure degrades
// to a direct database read.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache creates a new leaderboard cache backed by Redis
func NewCache(cfg *config.RedisConfig, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

func leaderboardKey(limit int) string {
	return fmt.Sprintf("leaderboard:claimed:%d", limit)
}

// GetLeaderboard returns a cached leaderboard page, reporting a miss on any
// absence or failure
func (c *Cache) GetLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool) {
	data, err := c.client.Get(ctx, leaderboardKey(limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("leaderboard cache read failed", "error", err)
		}
		return nil, false
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("leaderboard cache entry corrupt, dropping", "error", err)
		c.client.Del(ctx, leaderboardKey(limit))
		return nil, false
	}
	return entries, true
}

// SetLeaderboard stores a leaderboard page under its limit
func (c *Cache) SetLeaderboard(ctx context.Context, limit int, entries []domain.LeaderboardEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.Warn("marshaling leaderboard for cache", "error", err)
		return
	}
	if err := c.client.Set(ctx, leaderboardKey(limit), data, c.ttl).Err(); err != nil {
		c.logger.Warn("leaderboard cache write failed", "error", err)
	}
}

// InvalidateLeaderboard drops every cached leaderboard page. Called after
// each successful claim so new entries appear immediately.
func (c *Cache) InvalidateLeaderboard(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, "leaderboard:claimed:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("leaderboard cache scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("leaderboard cache invalidation failed", "error", err)
	}
}
