package kafka

import (
	"sort"

	"github.com/twmb/franz-go/pkg/kgo"

	"creek/src/contracts"
)

// shardKeyHeader carries a record's shard key, which Kafka has no field for.
const shardKeyHeader = "creek-shard-key"

func toKafkaRecord(topic string, partition int32, r contracts.Record) *kgo.Record {
	rec := &kgo.Record{
		Topic:     topic,
		Partition: partition,
		Key:       r.Key,
		Value:     r.Value,
	}
	if r.ShardKey != nil {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: shardKeyHeader, Value: r.ShardKey})
	}
	return rec
}

func fromKafkaRecord(rec *kgo.Record) contracts.Record {
	r := contracts.Record{Key: rec.Key, Value: rec.Value}
	for _, h := range rec.Headers {
		if h.Key == shardKeyHeader {
			r.ShardKey = h.Value
		}
	}
	return r
}

// groupBatches turns fetched records into one batch per partition, ascending,
// keeping at most limit records of each. Records cut off are fetched again
// once the batch is committed and the fetch position is reset.
func groupBatches(fetches kgo.Fetches, limit int) []contracts.ShardRecords {
	var out []contracts.ShardRecords
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if len(p.Records) == 0 {
			return
		}
		recs := p.Records
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		batch := contracts.ShardRecords{
			Shard:   int(p.Partition),
			Offset:  recs[0].Offset,
			Records: make([]contracts.Record, 0, len(recs)),
		}
		for _, rec := range recs {
			batch.Records = append(batch.Records, fromKafkaRecord(rec))
		}
		out = append(out, batch)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Shard < out[j].Shard })
	return out
}

// commitMap converts wire offsets into franz-go's commit shape.
func commitMap(topic string, offsets []contracts.ShardOffset) map[string]map[int32]kgo.EpochOffset {
	partitions := make(map[int32]kgo.EpochOffset, len(offsets))
	for _, o := range offsets {
		partitions[int32(o.Shard)] = kgo.EpochOffset{Epoch: -1, Offset: o.Offset}
	}
	return map[string]map[int32]kgo.EpochOffset{topic: partitions}
}

func partitionsOf(offsets []contracts.ShardOffset) []int32 {
	out := make([]int32, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, int32(o.Shard))
	}
	return out
}

// groupName is the consumer group a client joins. Clients without a group
// get one of their own so they see every partition.
func groupName(c contracts.ClientID) string {
	if c.Group != "" {
		return c.Group
	}
	return "creek-" + c.ID
}
