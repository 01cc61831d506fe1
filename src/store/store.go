// Package store defines the interface for shard log persistence.
package store

import (
	"context"
	"errors"

	"creek/src/contracts"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("store is closed")

// LogStore persists append-only shard logs keyed by (topic, shard).
// Offsets start at 0 and grow by one per record. Implementations serialize
// appends per shard so a batch always occupies contiguous offsets.
type LogStore interface {
	// Append writes records to the end of the shard log and returns the offset of the first one.
	Append(ctx context.Context, topic string, shard int, records []contracts.Record) (int64, error)

	// Read returns up to limit records starting at offset from (inclusive).
	// Offsets at or past the end yield an empty result.
	Read(ctx context.Context, topic string, shard int, from int64, limit int) ([]contracts.Record, error)

	// Len returns the number of records ever appended to the shard (the next offset).
	Len(ctx context.Context, topic string, shard int) (int64, error)

	// Truncate drops every record of the shard and restarts its offsets at 0.
	Truncate(ctx context.Context, topic string, shard int) error

	// Close releases the store connection.
	Close() error
}
