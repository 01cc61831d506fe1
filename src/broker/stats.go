package broker

import (
	"context"
	"sort"
	"time"

	"creek/src/contracts"
)

// Stats snapshots log lengths, cursors and leases of every topic.
func (b *Broker) Stats(ctx context.Context) (contracts.Stats, error) {
	var stats contracts.Stats
	for _, t := range b.topics.all() {
		lengths := make([]int64, t.shards)
		for s, l := range t.logs {
			n, err := l.Available(ctx, 0)
			if err != nil {
				return stats, err
			}
			lengths[s] = n
		}

		ts, live := t.stats(lengths, b.now())
		stats.Topics = append(stats.Topics, ts)
		stats.Subscriptions += live
	}
	return stats, nil
}

func (t *topic) stats(lengths []int64, now time.Time) (contracts.TopicStats, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := 0
	for _, m := range t.members {
		if m.actual(now) {
			live++
		}
	}

	type named struct {
		name string
		g    *cursorGroup
	}
	var cursors []named
	for name, g := range t.groups {
		cursors = append(cursors, named{name, g})
	}
	for name, g := range t.private {
		cursors = append(cursors, named{name, g})
	}
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].name < cursors[j].name })

	ts := contracts.TopicStats{Topic: t.name, Shards: make([]contracts.ShardStats, t.shards)}
	for s := range ts.Shards {
		ss := contracts.ShardStats{Shard: s, Length: lengths[s]}
		for _, c := range cursors {
			cs := contracts.CursorStats{
				Group:     c.name,
				Committed: c.g.cursors[s],
				Lag:       lengths[s] - c.g.cursors[s],
			}
			if cs.Lag < 0 {
				cs.Lag = 0
			}
			if h := c.g.holder(s, now); h != 0 {
				if m, ok := t.members[h]; ok && m.actual(now) {
					cs.Holder = h
					cs.LeaseExpiresInMs = c.g.leases[s].expiresAt.Sub(now).Milliseconds()
				}
			}
			ss.Cursors = append(ss.Cursors, cs)
		}
		ts.Shards[s] = ss
	}
	return ts, live
}
