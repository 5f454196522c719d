// Package redis stores dialer snapshots in a shared Redis instance.
package redis

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/acme/autodialer/internal/repository"
)

// KVStore implements repository.KVStore with one string key per document.
type KVStore struct {
	client *redis.Client
	prefix string
}

var _ repository.KVStore = (*KVStore)(nil)

// NewKVStore builds a store. Keys are namespaced with prefix.
func NewKVStore(client *redis.Client, prefix string) *KVStore {
	return &KVStore{client: client, prefix: prefix}
}

// LoadJSON implements repository.KVStore.
func (s *KVStore) LoadJSON(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis store: load %s: %w", key, err)
	}
	return value, true, nil
}

// SaveJSON implements repository.KVStore.
func (s *KVStore) SaveJSON(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis store: save %s: %w", key, err)
	}
	return nil
}

// RemoveKeys implements repository.KVStore.
func (s *KVStore) RemoveKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(k))
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis store: remove keys: %w", err)
	}
	return nil
}

func (s *KVStore) key(name string) string {
	return s.prefix + name
}
