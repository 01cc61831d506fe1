package store

import (
	"context"
	"errors"
	"testing"

	"creek/src/contracts"
)

func records(values ...string) []contracts.Record {
	out := make([]contracts.Record, len(values))
	for i, v := range values {
		out[i] = contracts.Record{Value: []byte(v)}
	}
	return out
}

func TestInMemoryStore(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	// Offsets are contiguous per shard
	first, err := st.Append(ctx, "A", 0, records("a", "b"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if first != 0 {
		t.Errorf("Append() first offset = %d, want 0", first)
	}
	first, err = st.Append(ctx, "A", 0, records("c"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if first != 2 {
		t.Errorf("Append() first offset = %d, want 2", first)
	}

	// Other shards are independent
	first, _ = st.Append(ctx, "A", 1, records("x"))
	if first != 0 {
		t.Errorf("Append() on shard 1 first offset = %d, want 0", first)
	}

	// Test Read with limit
	got, err := st.Read(ctx, "A", 0, 1, 10)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 2 || string(got[0].Value) != "b" || string(got[1].Value) != "c" {
		t.Errorf("Read(1, 10) = %v, want [b c]", got)
	}
	got, _ = st.Read(ctx, "A", 0, 0, 1)
	if len(got) != 1 || string(got[0].Value) != "a" {
		t.Errorf("Read(0, 1) = %v, want [a]", got)
	}

	// Out of range offsets clamp to empty
	for _, from := range []int64{-1, 3, 100} {
		got, err := st.Read(ctx, "A", 0, from, 10)
		if err != nil {
			t.Fatalf("Read(%d) error = %v", from, err)
		}
		if len(got) != 0 {
			t.Errorf("Read(%d) returned %d records, want 0", from, len(got))
		}
	}

	// Test Len
	n, _ := st.Len(ctx, "A", 0)
	if n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}

	// Test Truncate restarts offsets
	if err := st.Truncate(ctx, "A", 0); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	n, _ = st.Len(ctx, "A", 0)
	if n != 0 {
		t.Errorf("Len() after truncate = %d, want 0", n)
	}
	first, _ = st.Append(ctx, "A", 0, records("d"))
	if first != 0 {
		t.Errorf("Append() after truncate first offset = %d, want 0", first)
	}

	// Test Close
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := st.Append(ctx, "A", 0, records("e")); !errors.Is(err, ErrClosed) {
		t.Errorf("Append() after close error = %v, want ErrClosed", err)
	}
}

func TestInMemoryStore_ReadReturnsCopy(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()
	st.Append(ctx, "A", 0, records("a"))

	got, _ := st.Read(ctx, "A", 0, 0, 1)
	got[0] = contracts.Record{Value: []byte("mutated")}

	again, _ := st.Read(ctx, "A", 0, 0, 1)
	if string(again[0].Value) != "a" {
		t.Errorf("Read() exposed internal slice, got %q", again[0].Value)
	}
}
