// Package cache keeps computed report payloads in redis under per-user
// versioned keys. Bumping a user's version orphans every key built before it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billbook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "billbook:report"
	defaultTTL = 2 * time.Minute
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a cache over client. A nil client makes every call a pass-through.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

type Params struct {
	fx.In

	Config config.Config
	Client *redis.Client `optional:"true"`
}

func Provide(p Params) *Cache {
	return New(p.Client, p.Config.Report.CacheTTL)
}

// NewClient connects to redis when enabled and returns nil otherwise.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		log.Info("report cache disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("report/cache: ping: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// Version returns the user's current cache version, initialising it when missing.
func (c *Cache) Version(ctx context.Context, userID snowflake.ID) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(userID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes a payload key under the user's current version.
func (c *Cache) Key(ctx context.Context, userID snowflake.ID, parts ...string) (string, error) {
	base := strings.Join(append([]string{keyPrefix, userID.String()}, parts...), ":")
	if c == nil || c.client == nil {
		return base, nil
	}
	ver, err := c.Version(ctx, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", base, ver), nil
}

// FetchJSON decodes the cached value at key into dest, or runs loader and
// stores its result. hit reports whether the value came from redis.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (hit bool, err error) {
	if loader == nil {
		return false, errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return true, json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return false, err
		}
	}

	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return false, err
		}
	}
	return false, json.Unmarshal(raw, dest)
}

// Invalidate bumps the user's version.
func (c *Cache) Invalidate(ctx context.Context, userID snowflake.ID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(userID)).Err()
}

func versionKey(userID snowflake.ID) string {
	return keyPrefix + ":version:" + userID.String()
}
