package broker

import (
	"context"
	"fmt"

	"creek/src/contracts"
	"creek/src/store"
)

// ShardLog is the append-only log of one (topic, shard), backed by a LogStore.
type ShardLog struct {
	store store.LogStore
	topic string
	shard int
}

// Append writes records and returns the offset of the first one.
func (l *ShardLog) Append(ctx context.Context, records []contracts.Record) (int64, error) {
	first, err := l.store.Append(ctx, l.topic, l.shard, records)
	if err != nil {
		return 0, fmt.Errorf("failed to append to %s/%d: %w", l.topic, l.shard, err)
	}
	return first, nil
}

// Read returns up to limit records starting at from.
func (l *ShardLog) Read(ctx context.Context, from int64, limit int) ([]contracts.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	records, err := l.store.Read(ctx, l.topic, l.shard, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%d: %w", l.topic, l.shard, err)
	}
	return records, nil
}

// Available counts the records at or after from.
func (l *ShardLog) Available(ctx context.Context, from int64) (int64, error) {
	n, err := l.store.Len(ctx, l.topic, l.shard)
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s/%d: %w", l.topic, l.shard, err)
	}
	if from < 0 {
		from = 0
	}
	if n <= from {
		return 0, nil
	}
	return n - from, nil
}

func (l *ShardLog) truncate(ctx context.Context) error {
	if err := l.store.Truncate(ctx, l.topic, l.shard); err != nil {
		return fmt.Errorf("failed to truncate %s/%d: %w", l.topic, l.shard, err)
	}
	return nil
}
