package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CacheStore is a small JSON cache-aside helper.
type CacheStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewCacheStore(client goredis.UniversalClient, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CacheStore{client: client, ttl: ttl}
}

// Get decodes the cached value into dst. Returns false on a miss.
func (c *CacheStore) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CacheStore) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
