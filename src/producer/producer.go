// Package producer publishes typed messages to a topic through a broker gateway.
package producer

import (
	"context"
	"fmt"

	"creek/src/contracts"
)

// Message is one value to publish. Key and ShardKey are optional; a nil
// ShardKey lets the broker spread records round-robin.
type Message[T any] struct {
	Value    T
	Key      any
	ShardKey any
}

// Producer encodes messages with a codec and publishes them to one topic.
type Producer[T any] struct {
	gw    contracts.Gateway
	topic string
	codec contracts.Codec
}

// New creates a Producer. A nil codec means JSON.
func New[T any](gw contracts.Gateway, topic string, codec contracts.Codec) *Producer[T] {
	if codec == nil {
		codec = contracts.JSONCodec{}
	}
	return &Producer[T]{gw: gw, topic: topic, codec: codec}
}

// Topic returns the topic the producer writes to.
func (p *Producer[T]) Topic() string {
	return p.topic
}

// Write publishes messages in order as one request.
func (p *Producer[T]) Write(ctx context.Context, msgs ...Message[T]) error {
	if len(msgs) == 0 {
		return nil
	}

	records := make([]contracts.Record, 0, len(msgs))
	for i, m := range msgs {
		r, err := p.encode(m)
		if err != nil {
			return fmt.Errorf("failed to encode message %d: %w", i, err)
		}
		records = append(records, r)
	}

	if err := p.gw.Publish(ctx, contracts.PublishRequest{Topic: p.topic, Records: records}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// Send publishes a single value with no keys.
func (p *Producer[T]) Send(ctx context.Context, v T) error {
	return p.Write(ctx, Message[T]{Value: v})
}

func (p *Producer[T]) encode(m Message[T]) (contracts.Record, error) {
	var r contracts.Record
	var err error
	if r.Value, err = p.codec.Marshal(m.Value); err != nil {
		return r, err
	}
	if r.Key, err = p.encodeKey(m.Key); err != nil {
		return r, fmt.Errorf("key: %w", err)
	}
	if r.ShardKey, err = p.encodeKey(m.ShardKey); err != nil {
		return r, fmt.Errorf("shard key: %w", err)
	}
	return r, nil
}

// encodeKey passes strings and byte slices through unchanged so that equal
// keys hash alike across producers; anything else goes through the codec.
func (p *Producer[T]) encodeKey(k any) ([]byte, error) {
	switch v := k.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return p.codec.Marshal(v)
	}
}
