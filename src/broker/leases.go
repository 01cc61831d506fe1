package broker

import "time"

type lease struct {
	holder    uint64
	expiresAt time.Time
}

// cursorGroup holds the per-shard consumption state shared by one consumer
// group, or owned by a single subscription that has no group.
type cursorGroup struct {
	cursors []int64
	// leasedTo is the end offset (exclusive) of the furthest range handed out.
	leasedTo []int64
	leases   []lease
}

func newCursorGroup(shards int) *cursorGroup {
	return &cursorGroup{
		cursors:  make([]int64, shards),
		leasedTo: make([]int64, shards),
		leases:   make([]lease, shards),
	}
}

// holder returns the subscription holding an unexpired lease on shard, or 0.
// A lease is expired once now reaches its expiry.
func (g *cursorGroup) holder(shard int, now time.Time) uint64 {
	l := g.leases[shard]
	if l.holder == 0 || !now.Before(l.expiresAt) {
		return 0
	}
	return l.holder
}

func (g *cursorGroup) grant(shard int, holder uint64, end int64, expiresAt time.Time) {
	g.leases[shard] = lease{holder: holder, expiresAt: expiresAt}
	if end > g.leasedTo[shard] {
		g.leasedTo[shard] = end
	}
}

func (g *cursorGroup) release(shard int, holder uint64) {
	if g.leases[shard].holder == holder {
		g.leases[shard] = lease{}
	}
}

func (g *cursorGroup) releaseAll(holder uint64) {
	for s := range g.leases {
		g.release(s, holder)
	}
}

func (g *cursorGroup) reset() {
	for s := range g.cursors {
		g.cursors[s] = 0
		g.leasedTo[s] = 0
		g.leases[s] = lease{}
	}
}
