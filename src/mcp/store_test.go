package mcp

import (
	"fmt"
	"testing"

	"creek/src/contracts"
)

func TestPeekStore(t *testing.T) {
	store := NewPeekStore()
	store.Store("req-1", "orders", []contracts.ShardRecords{
		{Shard: 0, Offset: 4, Records: []contracts.Record{{Value: []byte("a")}, {Value: []byte("b")}}},
		{Shard: 2, Offset: 0, Records: []contracts.Record{{Value: []byte("c")}}},
	})

	tests := []struct {
		name   string
		req    string
		shard  int
		offset int64
		want   string
		found  bool
	}{
		{"first of batch", "req-1", 0, 4, "a", true},
		{"second of batch", "req-1", 0, 5, "b", true},
		{"other shard", "req-1", 2, 0, "c", true},
		{"before batch", "req-1", 0, 3, "", false},
		{"past batch", "req-1", 0, 6, "", false},
		{"unknown shard", "req-1", 1, 0, "", false},
		{"unknown request", "req-9", 0, 4, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, r, found := store.Get(tt.req, tt.shard, tt.offset)
			if found != tt.found {
				t.Fatalf("Get() found = %v, want %v", found, tt.found)
			}
			if found && (topic != "orders" || string(r.Value) != tt.want) {
				t.Errorf("Get() = %s %q, want orders %q", topic, r.Value, tt.want)
			}
		})
	}
}

func TestPeekStoreEvictsOldest(t *testing.T) {
	store := NewPeekStore()
	batch := []contracts.ShardRecords{{Shard: 0, Records: []contracts.Record{{Value: []byte("x")}}}}
	for i := 0; i <= maxPeeks; i++ {
		store.Store(fmt.Sprintf("req-%d", i), "t", batch)
	}

	if _, _, found := store.Get("req-0", 0, 0); found {
		t.Error("oldest peek should have been evicted")
	}
	if _, _, found := store.Get(fmt.Sprintf("req-%d", maxPeeks), 0, 0); !found {
		t.Error("newest peek should be kept")
	}
}

func TestPreviewValue(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		max  int
		want string
	}{
		{"text", []byte("hello"), 10, "hello"},
		{"whitespace", []byte("{\n  \"id\":\t1\n}"), 0, `{ "id": 1 }`},
		{"cut", []byte("abcdefghij"), 4, "abcd..."},
		{"binary", []byte{0xff, 0x00}, 0, "base64:/wA="},
		{"escapes", []byte("\x1b[31mred\x1b[0m\x00"), 0, "red."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := previewValue(tt.in, tt.max); got != tt.want {
				t.Errorf("previewValue() = %q, want %q", got, tt.want)
			}
		})
	}
}
