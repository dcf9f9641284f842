package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/chatstack/chat-service/internal/config"
	registrycache "github.com/chatstack/chat-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ProvisionCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CHAT_SERVICE_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL)
}

// LoadFromURL creates a ProvisionCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrycache.ProvisionCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return &redisProvisionCache{client: client}, nil
}

type redisProvisionCache struct {
	client *goredis.Client
}

func seenKey(userID string) string {
	return "chat-user-seen:" + userID
}

func (c *redisProvisionCache) Available() bool {
	return true
}

func (c *redisProvisionCache) Seen(ctx context.Context, userID string) (bool, error) {
	n, err := c.client.Exists(ctx, seenKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *redisProvisionCache) MarkSeen(ctx context.Context, userID string, ttl time.Duration) error {
	return c.client.Set(ctx, seenKey(userID), "1", ttl).Err()
}

var _ registrycache.ProvisionCache = (*redisProvisionCache)(nil)
