package store

import "testing"

func TestRedisListKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		topic  string
		shard  int
		want   string
	}{
		{"default prefix", DefaultRedisKeyPrefix, "A", 0, "creek:log:A:0"},
		{"custom prefix", "staging:", "orders", 3, "staging:log:orders:3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RedisStore{keyPrefix: tt.prefix}
			if got := r.listKey(tt.topic, tt.shard); got != tt.want {
				t.Errorf("listKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
