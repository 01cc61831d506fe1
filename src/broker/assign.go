package broker

import "sort"

// assignShards distributes shards among members of a group.
//
// holders[s] is the index of the member holding a live lease on shard s, or
// -1. Leased shards stay with their holder. Free shards are dealt in
// ascending order, round-robin over members in creation order, skipping any
// member that already has ceil(shards/members) shards.
func assignShards(holders []int, members int) [][]int {
	out := make([][]int, members)
	if members == 0 {
		return out
	}

	fairShare := (len(holders) + members - 1) / members
	var free []int
	for shard, h := range holders {
		if h >= 0 && h < members {
			out[h] = append(out[h], shard)
		} else {
			free = append(free, shard)
		}
	}

	next := 0
	for _, shard := range free {
		i := nextBelow(out, fairShare, next)
		if i < 0 {
			break
		}
		out[i] = append(out[i], shard)
		next = (i + 1) % members
	}

	for i := range out {
		sort.Ints(out[i])
	}
	return out
}

// nextBelow returns the first member at or after start (wrapping) that holds
// fewer than fairShare shards, or -1.
func nextBelow(assigned [][]int, fairShare, start int) int {
	for k := 0; k < len(assigned); k++ {
		i := (start + k) % len(assigned)
		if len(assigned[i]) < fairShare {
			return i
		}
	}
	return -1
}
