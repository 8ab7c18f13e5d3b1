// Package redisqueue implements the relay queue store on Redis lists.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lorrc/clinical-event-relay/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	// KeyPrefix is prepended to every room key. Empty keeps room keys as-is
	// so other services can push to the same lists.
	KeyPrefix string
}

// QueueStore stores each room queue as a Redis list: producers RPUSH at the
// tail, pollers LPOP from the head.
type QueueStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ ports.QueueStore = (*QueueStore)(nil)

// NewQueueStore connects to Redis and verifies the connection.
func NewQueueStore(ctx context.Context, cfg Config) (*QueueStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewQueueStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewQueueStoreFromClient wraps an existing client.
func NewQueueStoreFromClient(client *redis.Client, keyPrefix string) *QueueStore {
	return &QueueStore{client: client, keyPrefix: keyPrefix}
}

func (s *QueueStore) key(key string) string {
	return s.keyPrefix + key
}

// Push appends payload to the tail of the list.
func (s *QueueStore) Push(ctx context.Context, key string, payload []byte) error {
	if err := s.client.RPush(ctx, s.key(key), payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Pop removes the head of the list. A missing list is reported as empty.
func (s *QueueStore) Pop(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.LPop(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lpop %s: %w", key, err)
	}
	return payload, true, nil
}

// Trim keeps the keep most recent entries.
func (s *QueueStore) Trim(ctx context.Context, key string, keep int) error {
	if keep <= 0 {
		return s.client.Del(ctx, s.key(key)).Err()
	}
	if err := s.client.LTrim(ctx, s.key(key), int64(-keep), -1).Err(); err != nil {
		return fmt.Errorf("ltrim %s: %w", key, err)
	}
	return nil
}

// Len returns the number of entries queued under key.
func (s *QueueStore) Len(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, s.key(key)).Result()
}

func (s *QueueStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *QueueStore) Close() error {
	return s.client.Close()
}
