package broker

import (
	"context"
	"fmt"
	"time"

	"creek/src/contracts"
)

// LeasedBatch is a run of records from one shard, leased to the reader.
type LeasedBatch = contracts.ShardRecords

// Available describes the uncommitted records of one shard.
type Available struct {
	Shard  int
	Offset int64
	Count  int64
}

// Subscription is one reader of a topic. Within a group, each shard is read
// by at most one subscription at a time; the lease taken on a read keeps it
// there until the batch is committed or the lease expires.
type Subscription struct {
	id      uint64
	group   string
	cursor  string
	durable bool
	topic   *topic
	broker  *Broker
}

// ID returns the subscription's broker-unique id.
func (s *Subscription) ID() uint64 { return s.id }

// Topic returns the topic name.
func (s *Subscription) Topic() string { return s.topic.name }

// Group returns the group name, empty for an independent subscription.
func (s *Subscription) Group() string { return s.group }

// IsActual reports whether the subscription is registered and unexpired.
func (s *Subscription) IsActual() bool {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	return s.topic.liveMemberLocked(s.id, s.broker.now()) != nil
}

// Shards returns the shards currently assigned to the subscription, ascending.
// An expired or closed subscription owns nothing.
func (s *Subscription) Shards() []int {
	now := s.broker.now()
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	m := s.topic.liveMemberLocked(s.id, now)
	if m == nil {
		return nil
	}
	return s.topic.shardsForLocked(m, now)
}

type readPos struct {
	shard  int
	offset int64
}

// positions snapshots the committed cursor of every assigned shard.
// If only >= 0, the result is restricted to that shard.
func (s *Subscription) positions(only int) ([]readPos, error) {
	now := s.broker.now()
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.liveMemberLocked(s.id, now)
	if m == nil {
		return nil, fmt.Errorf("%w: %d on topic %s", ErrSubscriptionClosed, s.id, t.name)
	}
	s.renewLocked(m, now)

	g := t.cursorsFor(m)
	var out []readPos
	for _, shard := range t.shardsForLocked(m, now) {
		if only >= 0 && shard != only {
			continue
		}
		out = append(out, readPos{shard: shard, offset: g.cursors[shard]})
	}
	return out, nil
}

func (s *Subscription) renewLocked(m *member, now time.Time) {
	if s.broker.renewOnActivity {
		m.expiresAt = now.Add(s.broker.subscriptionTTL)
	}
}

// Read returns up to limit uncommitted records from every assigned shard and
// leases each returned shard to this subscription. Shards without new
// records are omitted.
func (s *Subscription) Read(ctx context.Context, limit int) ([]LeasedBatch, error) {
	positions, err := s.positions(-1)
	if err != nil {
		return nil, err
	}

	var out []LeasedBatch
	for _, p := range positions {
		batch, ok, err := s.readAt(ctx, p, limit)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, batch)
		}
	}
	return out, nil
}

// ReadShard is Read restricted to one shard. It returns false when the shard
// is not assigned to the subscription or has nothing past the cursor.
func (s *Subscription) ReadShard(ctx context.Context, shard int, limit int) (LeasedBatch, bool, error) {
	if err := s.topic.checkShard(shard); err != nil {
		return LeasedBatch{}, false, err
	}
	positions, err := s.positions(shard)
	if err != nil || len(positions) == 0 {
		return LeasedBatch{}, false, err
	}
	return s.readAt(ctx, positions[0], limit)
}

func (s *Subscription) readAt(ctx context.Context, p readPos, limit int) (LeasedBatch, bool, error) {
	records, err := s.topic.logs[p.shard].Read(ctx, p.offset, limit)
	if err != nil {
		return LeasedBatch{}, false, err
	}
	if len(records) == 0 {
		return LeasedBatch{}, false, nil
	}
	if !s.lease(p, int64(len(records))) {
		return LeasedBatch{}, false, nil
	}
	return LeasedBatch{Shard: p.shard, Offset: p.offset, Records: records}, true, nil
}

// lease grants the shard to this subscription for the records just read.
// The log was read without the topic lock held, so the read position is
// checked again; any change means the batch is dropped.
func (s *Subscription) lease(p readPos, n int64) bool {
	now := s.broker.now()
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.liveMemberLocked(s.id, now)
	if m == nil || !t.ownsShardLocked(m, p.shard, now) {
		return false
	}
	g := t.cursorsFor(m)
	if g.cursors[p.shard] != p.offset {
		return false
	}
	if h := g.holder(p.shard, now); h != 0 && h != s.id {
		return false
	}
	g.grant(p.shard, s.id, p.offset+n, now.Add(s.broker.leaseTTL))
	return true
}

// Available reports the uncommitted records of each assigned shard, in
// ascending shard order. Shards with nothing pending are omitted and no lease
// is taken.
func (s *Subscription) Available(ctx context.Context) ([]Available, error) {
	positions, err := s.positions(-1)
	if err != nil {
		return nil, err
	}

	var out []Available
	for _, p := range positions {
		n, err := s.topic.logs[p.shard].Available(ctx, p.offset)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			out = append(out, Available{Shard: p.shard, Offset: p.offset, Count: n})
		}
	}
	return out, nil
}

// Commit marks count records starting at offset as consumed.
func (s *Subscription) Commit(shard int, offset int64, count int) error {
	return s.CommitTo(shard, offset+int64(count))
}

// CommitTo moves the shard cursor to next and releases the lease. Committing
// at or behind the cursor leaves it in place but still releases the lease, so
// an uncommitted batch is redelivered right away.
func (s *Subscription) CommitTo(shard int, next int64) error {
	if err := s.topic.checkShard(shard); err != nil {
		return err
	}

	now := s.broker.now()
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.liveMemberLocked(s.id, now)
	if m == nil {
		return fmt.Errorf("%w: %d on topic %s", ErrSubscriptionClosed, s.id, t.name)
	}
	s.renewLocked(m, now)

	if !t.ownsShardLocked(m, shard, now) {
		return fmt.Errorf("%w: %s/%d to subscription %d", ErrShardNotAssigned, t.name, shard, s.id)
	}
	g := t.cursorsFor(m)
	if next > g.leasedTo[shard] {
		return fmt.Errorf("%w: %s/%d offset %d, leased up to %d", ErrCommitBeyondLease, t.name, shard, next, g.leasedTo[shard])
	}
	if next > g.cursors[shard] {
		g.cursors[shard] = next
	}
	g.release(shard, s.id)
	return nil
}

// Close unregisters the subscription and drops its leases, along with a
// named private cursor group. Closing twice is harmless.
func (s *Subscription) Close() {
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()
	s.leaveLocked()
	if s.durable {
		delete(t.private, s.cursor)
	}
}

// leave unregisters the subscription but keeps a named private cursor group
// for the next subscription under that name.
func (s *Subscription) leave() {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	s.leaveLocked()
}

func (s *Subscription) leaveLocked() {
	t := s.topic
	if m, ok := t.members[s.id]; ok {
		t.removeMemberLocked(m)
		s.broker.log.Debug("[Broker] Subscription %d left topic %s", s.id, t.name)
	}
}
