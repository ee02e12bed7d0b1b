package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisDedupeStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDedupeStore(client *redis.Client, prefix string, ttl time.Duration) DedupeStore {
	return &redisDedupeStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *redisDedupeStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	first, err := s.client.SetNX(ctx, s.prefix+id, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return first, nil
}

func (s *redisDedupeStore) Forget(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("dedupe del: %w", err)
	}
	return nil
}
