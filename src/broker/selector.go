package broker

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"creek/src/contracts"
)

// Selector picks the shard a record is appended to.
type Selector interface {
	Select(topic string, record contracts.Record, shards int) int
}

// HashSelector routes records by FNV-1a hash of their shard key.
// Records without a shard key are spread round-robin per topic.
type HashSelector struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Uint64
}

// NewHashSelector creates a HashSelector.
func NewHashSelector() *HashSelector {
	return &HashSelector{counters: make(map[string]*atomic.Uint64)}
}

// Select implements Selector.
func (h *HashSelector) Select(topic string, record contracts.Record, shards int) int {
	if shards <= 1 {
		return 0
	}
	if len(record.ShardKey) > 0 {
		return HashShard(record.ShardKey, shards)
	}
	return int((h.counter(topic).Add(1) - 1) % uint64(shards))
}

func (h *HashSelector) counter(topic string) *atomic.Uint64 {
	h.mu.RLock()
	c, ok := h.counters[topic]
	h.mu.RUnlock()
	if ok {
		return c
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok = h.counters[topic]; ok {
		return c
	}
	c = new(atomic.Uint64)
	h.counters[topic] = c
	return c
}

// HashShard maps a shard key onto [0, shards).
func HashShard(key []byte, shards int) int {
	f := fnv.New32a()
	f.Write(key)
	return int(f.Sum32() % uint32(shards))
}
