package alerts

import (
	"context"
	"time"

	"github.com/craftlink/sentinel/pkg/redis"
)

// RedisDedupStore backs the dedup window with Redis SETNX.
type RedisDedupStore struct {
	client *redis.Client
}

func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{client: client}
}

var _ DedupStore = (*RedisDedupStore)(nil)

func (s *RedisDedupStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, "1", ttl).Result()
}
