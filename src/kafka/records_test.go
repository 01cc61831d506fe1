package kafka

import (
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"

	"creek/src/contracts"
)

func TestRecordHeadersCarryShardKey(t *testing.T) {
	in := contracts.Record{Value: []byte("v"), Key: []byte("k"), ShardKey: []byte("user-7")}
	rec := toKafkaRecord("events", 3, in)

	if rec.Topic != "events" || rec.Partition != 3 {
		t.Errorf("toKafkaRecord() = %s/%d, want events/3", rec.Topic, rec.Partition)
	}
	if len(rec.Headers) != 1 || rec.Headers[0].Key != shardKeyHeader {
		t.Fatalf("Headers = %v, want one %s header", rec.Headers, shardKeyHeader)
	}

	out := fromKafkaRecord(rec)
	if string(out.Value) != "v" || string(out.Key) != "k" || string(out.ShardKey) != "user-7" {
		t.Errorf("fromKafkaRecord() = %+v", out)
	}

	bare := toKafkaRecord("events", 0, contracts.Record{Value: []byte("v")})
	if len(bare.Headers) != 0 {
		t.Errorf("record without shard key got headers %v", bare.Headers)
	}
}

func TestGroupBatches(t *testing.T) {
	rec := func(partition int32, offset int64, value string) *kgo.Record {
		return &kgo.Record{Topic: "events", Partition: partition, Offset: offset, Value: []byte(value)}
	}
	fetches := kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: "events",
			Partitions: []kgo.FetchPartition{
				{Partition: 2, Records: []*kgo.Record{rec(2, 7, "c")}},
				{Partition: 1},
				{Partition: 0, Records: []*kgo.Record{rec(0, 4, "a"), rec(0, 5, "b")}},
			},
		}},
	}}

	got := groupBatches(fetches, 0)
	if len(got) != 2 {
		t.Fatalf("groupBatches() returned %d batches, want 2: %+v", len(got), got)
	}
	if got[0].Shard != 0 || got[0].Offset != 4 || len(got[0].Records) != 2 || got[0].Next() != 6 {
		t.Errorf("batch 0 = %+v, want shard 0 offsets 4..5", got[0])
	}
	if got[1].Shard != 2 || got[1].Offset != 7 || string(got[1].Records[0].Value) != "c" {
		t.Errorf("batch 1 = %+v, want shard 2 offset 7", got[1])
	}
}

func TestGroupBatchesCapsEachPartition(t *testing.T) {
	var p0, p1 []*kgo.Record
	for i := int64(0); i < 5; i++ {
		p0 = append(p0, &kgo.Record{Topic: "events", Partition: 0, Offset: 10 + i, Value: []byte("a")})
	}
	p1 = append(p1, &kgo.Record{Topic: "events", Partition: 1, Offset: 3, Value: []byte("b")})
	fetches := kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: "events",
			Partitions: []kgo.FetchPartition{
				{Partition: 0, Records: p0},
				{Partition: 1, Records: p1},
			},
		}},
	}}

	got := groupBatches(fetches, 2)
	if len(got) != 2 {
		t.Fatalf("groupBatches() returned %d batches, want 2: %+v", len(got), got)
	}
	if len(got[0].Records) != 2 || got[0].Offset != 10 || got[0].Next() != 12 {
		t.Errorf("batch 0 = %+v, want offsets 10..11", got[0])
	}
	if len(got[1].Records) != 1 || got[1].Offset != 3 {
		t.Errorf("batch 1 = %+v, want the single record at offset 3", got[1])
	}
}

func TestCommitMap(t *testing.T) {
	offsets := []contracts.ShardOffset{{Shard: 0, Offset: 12}, {Shard: 3, Offset: 5}}
	got := commitMap("events", offsets)

	parts, ok := got["events"]
	if !ok || len(parts) != 2 {
		t.Fatalf("commitMap() = %v, want two partitions of events", got)
	}
	if parts[0].Offset != 12 || parts[0].Epoch != -1 {
		t.Errorf("partition 0 = %+v, want offset 12 epoch -1", parts[0])
	}
	if parts[3].Offset != 5 {
		t.Errorf("partition 3 = %+v, want offset 5", parts[3])
	}
	if p := partitionsOf(offsets); len(p) != 2 || p[0] != 0 || p[1] != 3 {
		t.Errorf("partitionsOf() = %v, want [0 3]", p)
	}
}

func TestGroupName(t *testing.T) {
	tests := []struct {
		name   string
		client contracts.ClientID
		want   string
	}{
		{"grouped", contracts.ClientID{ID: "a", Group: "billing", Topic: "t"}, "billing"},
		{"independent", contracts.ClientID{ID: "a", Topic: "t"}, "creek-a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := groupName(tt.client); got != tt.want {
				t.Errorf("groupName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewGatewayRequiresBrokers(t *testing.T) {
	if _, err := NewGateway(Config{}, nil); err == nil {
		t.Error("NewGateway() without brokers should fail")
	}

	g, err := NewGateway(Config{Brokers: []string{"localhost:19092"}}, nil)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	defer g.Close()
	if g.cfg.MaxPollRecords != DefaultMaxPollRecords || g.cfg.FetchWait != DefaultFetchWait {
		t.Errorf("defaults not applied: %+v", g.cfg)
	}
}
