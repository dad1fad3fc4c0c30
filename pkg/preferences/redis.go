package preferences

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is where RedisStore keeps the document.
const DefaultRedisKey = "gaswatch:preferences"

// RedisStore keeps the document as one JSON value, so several clients of
// the same site share names, thresholds and the master switch.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store on an existing client. An empty key uses
// DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Key returns the Redis key.
func (s *RedisStore) Key() string {
	return s.key
}

// Save writes the document.
func (s *RedisStore) Save(ctx context.Context, doc *Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Load reads the document. Returns nil, nil if the key doesn't exist.
func (s *RedisStore) Load(ctx context.Context) (*Document, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return decode(data)
}

// Clear deletes the key.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
