package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"

	"creek/src/broker"
	"creek/src/contracts"
)

// CreateTopic implements contracts.Admin.
func (g *Gateway) CreateTopic(ctx context.Context, req contracts.CreateTopicRequest) error {
	if req.Topic == "" || req.Shards <= 0 {
		return fmt.Errorf("%w: topic %q with %d shards", broker.ErrInvalidArgument, req.Topic, req.Shards)
	}

	create := kmsg.NewPtrCreateTopicsRequest()
	create.TimeoutMillis = 30000
	t := kmsg.NewCreateTopicsRequestTopic()
	t.Topic = req.Topic
	t.NumPartitions = int32(req.Shards)
	t.ReplicationFactor = -1
	create.Topics = append(create.Topics, t)

	resp, err := create.RequestWith(ctx, g.client)
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", req.Topic, err)
	}
	for _, rt := range resp.Topics {
		err := kerr.ErrorForCode(rt.ErrorCode)
		switch {
		case err == nil:
		case errors.Is(err, kerr.TopicAlreadyExists):
			n, lookupErr := g.partitionCount(ctx, req.Topic)
			if lookupErr != nil {
				return lookupErr
			}
			if n != req.Shards {
				return &broker.TopicError{Topic: req.Topic, Err: fmt.Errorf("%w with %d shards", broker.ErrTopicExists, n)}
			}
		default:
			return fmt.Errorf("failed to create topic %s: %w", req.Topic, err)
		}
	}

	g.mu.Lock()
	g.partitions[req.Topic] = req.Shards
	g.mu.Unlock()
	return nil
}

// Topics implements contracts.Admin. Internal topics are left out.
func (g *Gateway) Topics(ctx context.Context) ([]contracts.TopicInfo, error) {
	meta, err := g.metadata(ctx)
	if err != nil {
		return nil, err
	}

	var out []contracts.TopicInfo
	for _, t := range meta.Topics {
		if t.IsInternal || t.Topic == nil || strings.HasPrefix(*t.Topic, "__") {
			continue
		}
		if kerr.ErrorForCode(t.ErrorCode) != nil {
			continue
		}
		out = append(out, contracts.TopicInfo{Topic: *t.Topic, Shards: len(t.Partitions)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

// Stats implements contracts.Admin with partition lengths from the high
// watermarks. Group cursors live in Kafka and are not reported.
func (g *Gateway) Stats(ctx context.Context) (contracts.Stats, error) {
	var stats contracts.Stats
	topics, err := g.Topics(ctx)
	if err != nil {
		return stats, err
	}
	if len(topics) == 0 {
		return stats, nil
	}

	list := kmsg.NewPtrListOffsetsRequest()
	list.ReplicaID = -1
	for _, t := range topics {
		lt := kmsg.NewListOffsetsRequestTopic()
		lt.Topic = t.Topic
		for p := 0; p < t.Shards; p++ {
			lp := kmsg.NewListOffsetsRequestTopicPartition()
			lp.Partition = int32(p)
			lp.Timestamp = -1 // latest
			lt.Partitions = append(lt.Partitions, lp)
		}
		list.Topics = append(list.Topics, lt)
	}

	resp, err := list.RequestWith(ctx, g.client)
	if err != nil {
		return stats, fmt.Errorf("failed to list offsets: %w", err)
	}
	lengths := make(map[string]map[int32]int64)
	for _, t := range resp.Topics {
		lengths[t.Topic] = make(map[int32]int64)
		for _, p := range t.Partitions {
			if kerr.ErrorForCode(p.ErrorCode) == nil {
				lengths[t.Topic][p.Partition] = p.Offset
			}
		}
	}

	for _, t := range topics {
		ts := contracts.TopicStats{Topic: t.Topic}
		for p := 0; p < t.Shards; p++ {
			ts.Shards = append(ts.Shards, contracts.ShardStats{Shard: p, Length: lengths[t.Topic][int32(p)]})
		}
		stats.Topics = append(stats.Topics, ts)
	}

	g.mu.Lock()
	stats.Subscriptions = len(g.consumers)
	g.mu.Unlock()
	return stats, nil
}

// Clear is not supported; Kafka logs are only trimmed by retention.
func (g *Gateway) Clear(context.Context) error {
	return fmt.Errorf("clear on kafka backend: %w", errors.ErrUnsupported)
}

func (g *Gateway) metadata(ctx context.Context, topics ...string) (*kmsg.MetadataResponse, error) {
	req := kmsg.NewPtrMetadataRequest()
	for _, name := range topics {
		t := kmsg.NewMetadataRequestTopic()
		t.Topic = kmsg.StringPtr(name)
		req.Topics = append(req.Topics, t)
	}
	resp, err := req.RequestWith(ctx, g.client)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	return resp, nil
}

// partitionCount returns the partition count of topic, caching the answer.
func (g *Gateway) partitionCount(ctx context.Context, topic string) (int, error) {
	g.mu.Lock()
	n, ok := g.partitions[topic]
	g.mu.Unlock()
	if ok {
		return n, nil
	}

	meta, err := g.metadata(ctx, topic)
	if err != nil {
		return 0, err
	}
	for _, t := range meta.Topics {
		if t.Topic == nil || *t.Topic != topic {
			continue
		}
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil || len(t.Partitions) == 0 {
			break
		}
		g.mu.Lock()
		g.partitions[topic] = len(t.Partitions)
		g.mu.Unlock()
		return len(t.Partitions), nil
	}

	known, _ := g.Topics(ctx)
	names := make([]string, len(known))
	for i, t := range known {
		names[i] = t.Topic
	}
	return 0, &broker.TopicError{Topic: topic, Known: names, Err: broker.ErrNoSuchTopic}
}
