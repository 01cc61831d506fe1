package contracts

import "context"

// Gateway is the transport-agnostic broker contract used by producers and dispatchers.
// Implementations: the in-process broker gateway, the HTTP client and the Kafka backend.
type Gateway interface {
	// Publish appends records to a topic.
	Publish(ctx context.Context, req PublishRequest) error
	// Poll applies the pending commits in req.Offsets, then returns the next leased batches.
	Poll(ctx context.Context, req PollRequest) (PollResponse, error)
	// Unsubscribe applies final commits and releases the client's shards.
	Unsubscribe(ctx context.Context, req PollRequest) error
}

// Admin covers topic management and introspection.
type Admin interface {
	CreateTopic(ctx context.Context, req CreateTopicRequest) error
	Topics(ctx context.Context) ([]TopicInfo, error)
	Stats(ctx context.Context) (Stats, error)
	// Clear truncates every topic and resets cursors and leases.
	Clear(ctx context.Context) error
}
