// Package broker implements a partitioned log broker with leased,
// group-balanced consumption on top of a pluggable LogStore.
package broker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"creek/src/contracts"
	"creek/src/logger"
	"creek/src/store"
)

const (
	DefaultSubscriptionTTL = 30 * time.Second
	DefaultLeaseTTL        = 10 * time.Second
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Option configures a Broker.
type Option func(*Broker)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(b *Broker) { b.now = c }
}

// WithSubscriptionTTL sets how long a subscription stays actual after it is
// created or renewed.
func WithSubscriptionTTL(d time.Duration) Option {
	return func(b *Broker) { b.subscriptionTTL = d }
}

// WithLeaseTTL sets how long a read batch stays leased to its reader.
func WithLeaseTTL(d time.Duration) Option {
	return func(b *Broker) { b.leaseTTL = d }
}

// WithRenewOnActivity extends a subscription's expiry on every read,
// availability check and commit, not only on re-subscription.
func WithRenewOnActivity(renew bool) Option {
	return func(b *Broker) { b.renewOnActivity = renew }
}

// WithSelector replaces the default HashSelector.
func WithSelector(s Selector) Option {
	return func(b *Broker) { b.selector = s }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Broker) { b.log = l }
}

// Broker owns topics, their shard logs and the subscriptions reading them.
type Broker struct {
	store    store.LogStore
	topics   *topicSpace
	selector Selector
	log      logger.Logger
	now      Clock

	subscriptionTTL time.Duration
	leaseTTL        time.Duration
	renewOnActivity bool

	nextID atomic.Uint64
}

// New creates a broker over st.
func New(st store.LogStore, opts ...Option) *Broker {
	b := &Broker{
		store:           st,
		topics:          newTopicSpace(st),
		selector:        NewHashSelector(),
		log:             logger.NewSilentLogger(),
		now:             time.Now,
		subscriptionTTL: DefaultSubscriptionTTL,
		leaseTTL:        DefaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LeaseTTL returns the configured lease duration.
func (b *Broker) LeaseTTL() time.Duration {
	return b.leaseTTL
}

// Create declares a topic with a fixed number of shards.
// Declaring an existing topic with the same shard count is a no-op.
func (b *Broker) Create(name string, shards int) error {
	if _, err := b.topics.create(name, shards); err != nil {
		return err
	}
	b.log.Debug("[Broker] Declared topic %s with %d shards", name, shards)
	return nil
}

// Shards returns the shard count of topic.
func (b *Broker) Shards(topic string) (int, error) {
	t, err := b.topics.get(topic)
	if err != nil {
		return 0, err
	}
	return t.shards, nil
}

// Topics lists declared topics ordered by name.
func (b *Broker) Topics() []contracts.TopicInfo {
	all := b.topics.all()
	out := make([]contracts.TopicInfo, len(all))
	for i, t := range all {
		out[i] = contracts.TopicInfo{Topic: t.name, Shards: t.shards}
	}
	return out
}

// Publish returns a handle for appending records to topic.
func (b *Broker) Publish(topic string) (*Publication, error) {
	t, err := b.topics.get(topic)
	if err != nil {
		return nil, err
	}
	return &Publication{broker: b, topic: t}, nil
}

// Subscribe registers a new subscription on topic. Subscriptions sharing a
// non-empty group split the shards between them and share cursors; a
// subscription with an empty group reads every shard with its own cursors.
func (b *Broker) Subscribe(topic, group string) (*Subscription, error) {
	return b.subscribe(topic, group, "")
}

// subscribe registers a subscription. A non-empty cursor gives a group-less
// subscription a named private cursor group that survives the subscription
// expiring, so a later subscription under the same name resumes from it.
func (b *Broker) subscribe(topic, group, cursor string) (*Subscription, error) {
	t, err := b.topics.get(topic)
	if err != nil {
		return nil, err
	}

	id := b.nextID.Add(1)
	m := &member{id: id, group: group, expiresAt: b.now().Add(b.subscriptionTTL)}
	if group == "" {
		m.cursor = fmt.Sprintf("sub-%d", id)
		if cursor != "" {
			m.cursor = cursor
			m.durable = true
		}
	}
	t.mu.Lock()
	t.members[id] = m
	t.mu.Unlock()

	b.log.Debug("[Broker] Subscription %d joined topic %s group %q", id, topic, group)
	return &Subscription{id: id, group: group, cursor: m.cursor, durable: m.durable, topic: t, broker: b}, nil
}

// Clear truncates every shard log and rewinds all cursors.
// Topics and subscriptions survive.
func (b *Broker) Clear(ctx context.Context) error {
	for _, t := range b.topics.all() {
		for _, l := range t.logs {
			if err := l.truncate(ctx); err != nil {
				return err
			}
		}
		t.reset()
	}
	b.log.Info("[Broker] Cleared all topics")
	return nil
}

// Close closes the underlying store.
func (b *Broker) Close() error {
	return b.store.Close()
}

// Publication appends records to one topic.
type Publication struct {
	broker *Broker
	topic  *topic
}

// Topic returns the topic name.
func (p *Publication) Topic() string {
	return p.topic.name
}

// Shards returns the topic's shard count.
func (p *Publication) Shards() int {
	return p.topic.shards
}

// Write appends records, routing each through the broker's Selector.
// Records bound for the same shard keep their relative order.
func (p *Publication) Write(ctx context.Context, records ...contracts.Record) error {
	batches := make([][]contracts.Record, p.topic.shards)
	for _, r := range records {
		s := p.broker.selector.Select(p.topic.name, r, p.topic.shards)
		if err := p.topic.checkShard(s); err != nil {
			return err
		}
		batches[s] = append(batches[s], r)
	}
	for s, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		if err := p.WriteShard(ctx, s, batch...); err != nil {
			return err
		}
	}
	return nil
}

// WriteShard appends records to an explicit shard.
func (p *Publication) WriteShard(ctx context.Context, shard int, records ...contracts.Record) error {
	if err := p.topic.checkShard(shard); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	first, err := p.topic.logs[shard].Append(ctx, records)
	if err != nil {
		return err
	}
	p.broker.log.Debug("[Broker] Appended %d records to %s/%d at offset %d", len(records), p.topic.name, shard, first)
	return nil
}
