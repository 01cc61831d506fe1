package store

import (
	"context"
	"fmt"
	"sync"

	"creek/src/contracts"
)

// InMemoryStore is a thread-safe in-memory implementation of LogStore.
// It is the reference backend and the default for tests and single-process use.
type InMemoryStore struct {
	mu     sync.RWMutex
	logs   map[string][]contracts.Record // topic:shard -> records
	closed bool
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		logs: make(map[string][]contracts.Record),
	}
}

func shardKey(topic string, shard int) string {
	return fmt.Sprintf("%s:%d", topic, shard)
}

// Append appends records to the shard log.
func (s *InMemoryStore) Append(ctx context.Context, topic string, shard int, records []contracts.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	k := shardKey(topic, shard)
	first := int64(len(s.logs[k]))
	s.logs[k] = append(s.logs[k], records...)
	return first, nil
}

// Read returns a copy of up to limit records starting at from.
func (s *InMemoryStore) Read(ctx context.Context, topic string, shard int, from int64, limit int) ([]contracts.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	log := s.logs[shardKey(topic, shard)]
	if from < 0 || from >= int64(len(log)) || limit <= 0 {
		return nil, nil
	}
	end := int64(len(log))
	if from+int64(limit) < end {
		end = from + int64(limit)
	}

	out := make([]contracts.Record, end-from)
	copy(out, log[from:end])
	return out, nil
}

// Len returns the shard log length.
func (s *InMemoryStore) Len(ctx context.Context, topic string, shard int) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	return int64(len(s.logs[shardKey(topic, shard)])), nil
}

// Truncate drops the shard log.
func (s *InMemoryStore) Truncate(ctx context.Context, topic string, shard int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.logs, shardKey(topic, shard))
	return nil
}

// Close marks the store closed and drops all logs.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.logs = nil
	return nil
}
