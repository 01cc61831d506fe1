package mcp

import (
	"sync"

	"creek/src/contracts"
)

// maxPeeks bounds how many peek results are kept for get_record.
const maxPeeks = 32

type peekResult struct {
	topic   string
	batches []contracts.ShardRecords
}

// PeekStore keeps recent peek results so single records can be fetched in
// full. The oldest result is evicted first.
type PeekStore struct {
	mu    sync.RWMutex
	peeks map[string]peekResult
	order []string
}

// NewPeekStore creates an empty store.
func NewPeekStore() *PeekStore {
	return &PeekStore{peeks: make(map[string]peekResult)}
}

// Store saves the batches of one peek.
func (s *PeekStore) Store(requestID, topic string, batches []contracts.ShardRecords) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.peeks[requestID]; !ok {
		s.order = append(s.order, requestID)
	}
	s.peeks[requestID] = peekResult{topic: topic, batches: batches}

	for len(s.order) > maxPeeks {
		delete(s.peeks, s.order[0])
		s.order = s.order[1:]
	}
}

// Get returns the record at shard/offset of a stored peek.
func (s *PeekStore) Get(requestID string, shard int, offset int64) (string, contracts.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.peeks[requestID]
	if !ok {
		return "", contracts.Record{}, false
	}
	for _, b := range p.batches {
		if b.Shard != shard || offset < b.Offset || offset >= b.Next() {
			continue
		}
		return p.topic, b.Records[offset-b.Offset], true
	}
	return "", contracts.Record{}, false
}
