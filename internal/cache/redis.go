package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares cached entries between API replicas. Keys are namespaced
// so DeletePrefix never touches foreign keys.
type RedisStore struct {
	rdb       redis.UniversalClient
	namespace string
}

func NewRedisStore(rdb redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "forumhub"
	}
	return &RedisStore{rdb: rdb, namespace: namespace + ":"}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.namespace+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.namespace+key, val, ttl).Err()
}

// DeletePrefix walks matching keys with SCAN, never KEYS.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64

	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.namespace+prefix+"*", 200).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err := s.rdb.Unlink(ctx, keys...).Err(); err != nil {
				return err
			}
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}
