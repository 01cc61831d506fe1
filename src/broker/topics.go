package broker

import (
	"fmt"
	"sort"
	"sync"

	"creek/src/store"
)

// topic is the broker-side state of one declared topic. Records live in the
// LogStore; everything else is guarded by mu.
type topic struct {
	name   string
	shards int
	logs   []*ShardLog

	mu      sync.Mutex
	members map[uint64]*member
	groups  map[string]*cursorGroup
	// private holds the cursors of subscriptions without a group, keyed by
	// member cursor name.
	private map[string]*cursorGroup
}

func newTopic(st store.LogStore, name string, shards int) *topic {
	logs := make([]*ShardLog, shards)
	for s := range logs {
		logs[s] = &ShardLog{store: st, topic: name, shard: s}
	}
	return &topic{
		name:    name,
		shards:  shards,
		logs:    logs,
		members: make(map[uint64]*member),
		groups:  make(map[string]*cursorGroup),
		private: make(map[string]*cursorGroup),
	}
}

func (t *topic) checkShard(shard int) error {
	if shard < 0 || shard >= t.shards {
		return shardOutOfRange(t.name, shard, t.shards)
	}
	return nil
}

// cursorsFor returns the cursor group a member consumes through.
func (t *topic) cursorsFor(m *member) *cursorGroup {
	if m.group == "" {
		g, ok := t.private[m.cursor]
		if !ok {
			g = newCursorGroup(t.shards)
			t.private[m.cursor] = g
		}
		return g
	}
	g, ok := t.groups[m.group]
	if !ok {
		g = newCursorGroup(t.shards)
		t.groups[m.group] = g
	}
	return g
}

// reset rewinds every cursor and drops every lease. The caller truncates the logs.
func (t *topic) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range t.groups {
		g.reset()
	}
	for _, g := range t.private {
		g.reset()
	}
}

// topicSpace is the set of declared topics.
type topicSpace struct {
	store  store.LogStore
	mu     sync.RWMutex
	topics map[string]*topic
}

func newTopicSpace(st store.LogStore) *topicSpace {
	return &topicSpace{store: st, topics: make(map[string]*topic)}
}

// create declares a topic. Redeclaring with the same shard count returns the
// existing topic.
func (ts *topicSpace) create(name string, shards int) (*topic, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: topic name is empty", ErrInvalidArgument)
	}
	if shards <= 0 {
		return nil, fmt.Errorf("%w: topic %s needs at least one shard, got %d", ErrInvalidArgument, name, shards)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.topics[name]; ok {
		if t.shards != shards {
			return nil, &TopicError{Topic: name, Err: fmt.Errorf("%w with %d shards", ErrTopicExists, t.shards)}
		}
		return t, nil
	}
	t := newTopic(ts.store, name, shards)
	ts.topics[name] = t
	return t, nil
}

func (ts *topicSpace) get(name string) (*topic, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if t, ok := ts.topics[name]; ok {
		return t, nil
	}
	return nil, &TopicError{Topic: name, Known: ts.namesLocked(), Err: ErrNoSuchTopic}
}

func (ts *topicSpace) all() []*topic {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]*topic, 0, len(ts.topics))
	for _, t := range ts.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (ts *topicSpace) namesLocked() []string {
	names := make([]string, 0, len(ts.topics))
	for n := range ts.topics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
