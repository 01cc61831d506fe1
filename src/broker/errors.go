package broker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoSuchTopic        = errors.New("no such topic")
	ErrTopicExists        = errors.New("topic already exists")
	ErrShardOutOfRange    = errors.New("shard index out of range")
	ErrShardNotAssigned   = errors.New("shard not assigned to subscription")
	ErrCommitBeyondLease  = errors.New("commit offset beyond leased records")
	ErrSubscriptionClosed = errors.New("subscription is closed")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// TopicError reports a topic lookup or declaration failure.
// Known lists the topics the broker had at the time so typos are easy to spot.
type TopicError struct {
	Topic string
	Known []string
	Err   error
}

func (e *TopicError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Err, e.Topic)
	if errors.Is(e.Err, ErrNoSuchTopic) {
		msg += fmt.Sprintf(" (known topics: [%s])", strings.Join(e.Known, ", "))
	}
	return msg
}

func (e *TopicError) Unwrap() error {
	return e.Err
}

func shardOutOfRange(topic string, shard, shards int) error {
	return fmt.Errorf("%w: shard %d of topic %s with %d shards", ErrShardOutOfRange, shard, topic, shards)
}
