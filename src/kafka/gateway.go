// Package kafka provides a broker gateway backed by a Kafka-compatible
// cluster such as Redpanda. Shards map to partitions and commits to consumer
// group offsets.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"creek/src/broker"
	"creek/src/contracts"
	"creek/src/logger"
)

const (
	DefaultMaxPollRecords = 500
	DefaultFetchWait      = 200 * time.Millisecond
)

// Config configures a Gateway.
type Config struct {
	Brokers []string
	// MaxPollRecords caps the records fetched by one poll across partitions.
	// The poll's own limit then caps each partition.
	MaxPollRecords int
	// FetchWait bounds how long a poll waits for new records.
	FetchWait time.Duration
}

// Gateway implements contracts.Gateway and contracts.Admin on top of Kafka.
// Each polling client gets its own consumer-group member. Partitions handed
// out in a poll stay paused until the client commits them.
type Gateway struct {
	cfg      Config
	client   *kgo.Client
	selector broker.Selector
	log      logger.Logger

	mu         sync.Mutex
	partitions map[string]int
	consumers  map[contracts.ClientID]*consumer
	closed     bool
}

type consumer struct {
	mu     sync.Mutex
	client *kgo.Client
}

// NewGateway creates a Gateway. No connection is made until first use.
func NewGateway(cfg Config, log logger.Logger) (*Gateway, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if cfg.MaxPollRecords <= 0 {
		cfg.MaxPollRecords = DefaultMaxPollRecords
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = DefaultFetchWait
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &Gateway{
		cfg:        cfg,
		client:     client,
		selector:   broker.NewHashSelector(),
		log:        log,
		partitions: make(map[string]int),
		consumers:  make(map[contracts.ClientID]*consumer),
	}, nil
}

// Publish implements contracts.Gateway.
func (g *Gateway) Publish(ctx context.Context, req contracts.PublishRequest) error {
	n, err := g.partitionCount(ctx, req.Topic)
	if err != nil {
		return err
	}

	records := make([]*kgo.Record, 0, len(req.Records))
	for _, r := range req.Records {
		shard := g.selector.Select(req.Topic, r, n)
		records = append(records, toKafkaRecord(req.Topic, int32(shard), r))
	}

	if err := g.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", req.Topic, err)
	}
	return nil
}

// Poll implements contracts.Gateway.
func (g *Gateway) Poll(ctx context.Context, req contracts.PollRequest) (contracts.PollResponse, error) {
	var resp contracts.PollResponse
	if req.Client.ID == "" || req.Client.Topic == "" {
		return resp, fmt.Errorf("%w: client id and topic are required", broker.ErrInvalidArgument)
	}
	if _, err := g.partitionCount(ctx, req.Client.Topic); err != nil {
		return resp, err
	}

	c, err := g.consumer(req.Client)
	if err != nil {
		return resp, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	g.commit(ctx, c, req.Client, req.Offsets)

	limit := req.Limit
	if limit <= 0 {
		limit = broker.DefaultReadLimit
	}
	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.FetchWait)
	fetches := c.client.PollRecords(fetchCtx, g.cfg.MaxPollRecords)
	cancel()

	if fetches.IsClientClosed() {
		return resp, fmt.Errorf("%w: %s", broker.ErrSubscriptionClosed, req.Client)
	}
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}
		return resp, fmt.Errorf("failed to fetch %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
	}

	resp.Records = groupBatches(fetches, limit)
	if len(resp.Records) > 0 {
		paused := make([]int32, 0, len(resp.Records))
		for _, b := range resp.Records {
			paused = append(paused, int32(b.Shard))
		}
		c.client.PauseFetchPartitions(map[string][]int32{req.Client.Topic: paused})
	}
	return resp, nil
}

// Unsubscribe implements contracts.Gateway. The consumer leaves its group so
// the partitions are reassigned right away.
func (g *Gateway) Unsubscribe(ctx context.Context, req contracts.PollRequest) error {
	g.mu.Lock()
	c, ok := g.consumers[req.Client]
	delete(g.consumers, req.Client)
	g.mu.Unlock()
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	g.commit(ctx, c, req.Client, req.Offsets)
	c.client.Close()
	g.log.Info("[Kafka] %s left group %s", req.Client, groupName(req.Client))
	return nil
}

// commit stores offsets for the client's group, moves the fetch position to
// them (rolling back on failed batches) and resumes the partitions.
func (g *Gateway) commit(ctx context.Context, c *consumer, client contracts.ClientID, offsets []contracts.ShardOffset) {
	if len(offsets) == 0 {
		return
	}
	topic := client.Topic
	commits := commitMap(topic, offsets)

	c.client.CommitOffsetsSync(ctx, commits, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			g.log.Warn("[Kafka] %s commit failed: %v", client, err)
			return
		}
		for _, t := range resp.Topics {
			for _, p := range t.Partitions {
				if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
					g.log.Warn("[Kafka] %s commit of %s/%d rejected: %v", client, t.Topic, p.Partition, err)
				}
			}
		}
	})
	c.client.SetOffsets(commits)
	c.client.ResumeFetchPartitions(map[string][]int32{topic: partitionsOf(offsets)})
}

func (g *Gateway) consumer(client contracts.ClientID) (*consumer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("kafka gateway is closed")
	}
	if c, ok := g.consumers[client]; ok {
		return c, nil
	}

	kc, err := kgo.NewClient(
		kgo.SeedBrokers(g.cfg.Brokers...),
		kgo.ConsumerGroup(groupName(client)),
		kgo.ConsumeTopics(client.Topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	c := &consumer{client: kc}
	g.consumers[client] = c
	g.log.Info("[Kafka] %s joined group %s", client, groupName(client))
	return c, nil
}

// Close shuts down every consumer and the producer.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true

	for _, c := range g.consumers {
		c.client.Close()
	}
	g.consumers = make(map[contracts.ClientID]*consumer)
	g.client.Close()
}
