package broker

import (
	"reflect"
	"testing"
)

func TestAssignShards(t *testing.T) {
	tests := []struct {
		name    string
		holders []int
		members int
		want    [][]int
	}{
		{
			name:    "no members",
			holders: []int{-1, -1},
			members: 0,
			want:    [][]int{},
		},
		{
			name:    "even split",
			holders: []int{-1, -1, -1, -1},
			members: 2,
			want:    [][]int{{0, 2}, {1, 3}},
		},
		{
			name:    "uneven split",
			holders: []int{-1, -1, -1, -1, -1},
			members: 3,
			want:    [][]int{{0, 3}, {1, 4}, {2}},
		},
		{
			name:    "more members than shards",
			holders: []int{-1, -1},
			members: 3,
			want:    [][]int{{0}, {1}, nil},
		},
		{
			name:    "pinned shards stay",
			holders: []int{1, -1, -1},
			members: 2,
			want:    [][]int{{1}, {0, 2}},
		},
		{
			name:    "pins beyond fair share are kept",
			holders: []int{0, 0, 0},
			members: 3,
			want:    [][]int{{0, 1, 2}, nil, nil},
		},
		{
			name:    "free shards skip full members",
			holders: []int{0, 0, -1, -1},
			members: 2,
			want:    [][]int{{0, 1}, {2, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := assignShards(tt.holders, tt.members)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("assignShards(%v, %d) = %v, want %v", tt.holders, tt.members, got, tt.want)
			}
		})
	}
}
