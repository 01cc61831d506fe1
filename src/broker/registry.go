package broker

import (
	"sort"
	"time"
)

// member is a registered subscription of a topic.
type member struct {
	id        uint64
	group     string
	expiresAt time.Time
	// cursor names the private cursor group of a member without a group.
	cursor string
	// durable private cursors outlive the member and are dropped on Close.
	durable bool
}

func (m *member) actual(now time.Time) bool {
	return now.Before(m.expiresAt)
}

// liveMemberLocked returns the member with id if it is still actual.
// Expired members are dropped along with their leases.
func (t *topic) liveMemberLocked(id uint64, now time.Time) *member {
	m, ok := t.members[id]
	if !ok {
		return nil
	}
	if !m.actual(now) {
		t.removeMemberLocked(m)
		return nil
	}
	return m
}

func (t *topic) removeMemberLocked(m *member) {
	delete(t.members, m.id)
	if m.group == "" {
		if !m.durable {
			delete(t.private, m.cursor)
		} else if g, ok := t.private[m.cursor]; ok {
			g.releaseAll(m.id)
		}
		return
	}
	if g, ok := t.groups[m.group]; ok {
		g.releaseAll(m.id)
	}
}

// groupMembersLocked returns the actual members of group in creation order.
func (t *topic) groupMembersLocked(group string, now time.Time) []*member {
	var out []*member
	for _, m := range t.members {
		if m.group != group {
			continue
		}
		if !m.actual(now) {
			t.removeMemberLocked(m)
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// shardsForLocked computes the shards m may read right now. A subscription
// without a group gets every shard.
func (t *topic) shardsForLocked(m *member, now time.Time) []int {
	if m.group == "" {
		all := make([]int, t.shards)
		for s := range all {
			all[s] = s
		}
		return all
	}

	members := t.groupMembersLocked(m.group, now)
	index := make(map[uint64]int, len(members))
	for i, gm := range members {
		index[gm.id] = i
	}

	g := t.cursorsFor(m)
	holders := make([]int, t.shards)
	for s := range holders {
		holders[s] = -1
		if i, ok := index[g.holder(s, now)]; ok {
			holders[s] = i
		}
	}

	return assignShards(holders, len(members))[index[m.id]]
}

func (t *topic) ownsShardLocked(m *member, shard int, now time.Time) bool {
	for _, s := range t.shardsForLocked(m, now) {
		if s == shard {
			return true
		}
	}
	return false
}
