package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pending:"

// RedisStore is the durable Store: entries survive restarts and expire
// server-side via key TTLs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, telegramID int64, content string, ttl time.Duration) error {
	return s.client.Set(ctx, key(telegramID), content, ttl).Err()
}

func (s *RedisStore) Pop(ctx context.Context, telegramID int64) (string, error) {
	content, err := s.client.GetDel(ctx, key(telegramID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func key(telegramID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, telegramID)
}
