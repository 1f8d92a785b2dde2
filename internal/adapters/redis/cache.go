package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

type Cache struct {
	client *redis.Client
	sf     singleflight.Group
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// GetOrSetJSON decodes the cached value at key into dst. On a miss, concurrent callers
// share one load, whose result is cached for ttl.
func (c *Cache) GetOrSetJSON(
	ctx context.Context,
	key string,
	ttl time.Duration,
	dst any,
	load func(ctx context.Context) (any, error),
) error {
	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return json.Unmarshal([]byte(raw), dst)
	}
	if !errors.Is(err, redis.Nil) {
		return errors.Wrapf(err, "cache get %s", key)
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(loaded)
		if err != nil {
			return nil, errors.Wrap(err, "encode cache value")
		}
		// A failed write only costs the next caller a reload.
		_ = c.client.Set(ctx, key, string(b), ttl).Err()
		return b, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(v.([]byte), dst)
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
