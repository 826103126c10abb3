package session

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// RedisStore keeps each browser session in one hash so it survives process
// restarts. Every write slides the hash TTL forward.
type RedisStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRedisStore(client *redisv9.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Scope(sessionID string) Holder {
	return &redisHolder{store: s, key: fmt.Sprintf("sentient:session:%s", sessionID)}
}

type redisHolder struct {
	store *RedisStore
	key   string
}

func (h *redisHolder) Put(ctx context.Context, key, value string) error {
	pipe := h.store.client.TxPipeline()
	pipe.HSet(ctx, h.key, key, value)
	pipe.Expire(ctx, h.key, h.store.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put session value failed: %w", err)
	}
	return nil
}

func (h *redisHolder) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := h.store.client.HGet(ctx, h.key, key).Result()
	if err == redisv9.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get session value failed: %w", err)
	}
	return value, true, nil
}

func (h *redisHolder) Remove(ctx context.Context, key string) error {
	if err := h.store.client.HDel(ctx, h.key, key).Err(); err != nil {
		return fmt.Errorf("redis remove session value failed: %w", err)
	}
	return nil
}
