package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"creek/src/contracts"
)

// RedisStore keeps each shard log in a Redis list; the list index is the offset.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// DefaultRedisKeyPrefix namespaces keys when no prefix is given.
const DefaultRedisKeyPrefix = "creek:"

// NewRedisStore connects to Redis and verifies the connection.
// keyPrefix namespaces keys, DefaultRedisKeyPrefix when empty.
func NewRedisStore(ctx context.Context, addr, password string, db int, keyPrefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}, nil
}

func (r *RedisStore) listKey(topic string, shard int) string {
	return fmt.Sprintf("%slog:%s:%d", r.keyPrefix, topic, shard)
}

// Append pushes all records in one RPUSH, which Redis applies atomically.
func (r *RedisStore) Append(ctx context.Context, topic string, shard int, records []contracts.Record) (int64, error) {
	if len(records) == 0 {
		return r.Len(ctx, topic, shard)
	}

	values := make([]interface{}, 0, len(records))
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal record: %w", err)
		}
		values = append(values, b)
	}

	n, err := r.client.RPush(ctx, r.listKey(topic, shard), values...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to append records: %w", err)
	}
	return n - int64(len(records)), nil
}

// Read returns up to limit records starting at from.
func (r *RedisStore) Read(ctx context.Context, topic string, shard int, from int64, limit int) ([]contracts.Record, error) {
	if from < 0 || limit <= 0 {
		return nil, nil
	}

	raw, err := r.client.LRange(ctx, r.listKey(topic, shard), from, from+int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	out := make([]contracts.Record, 0, len(raw))
	for _, item := range raw {
		var rec contracts.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the list length.
func (r *RedisStore) Len(ctx context.Context, topic string, shard int) (int64, error) {
	n, err := r.client.LLen(ctx, r.listKey(topic, shard)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get shard length: %w", err)
	}
	return n, nil
}

// Truncate deletes the list.
func (r *RedisStore) Truncate(ctx context.Context, topic string, shard int) error {
	if err := r.client.Del(ctx, r.listKey(topic, shard)).Err(); err != nil {
		return fmt.Errorf("failed to truncate shard: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
