// Package contracts defines the wire types exchanged between producers, dispatchers and brokers.
package contracts

// Record is a single opaque entry of a shard log.
type Record struct {
	// Payload, never interpreted by the broker.
	Value []byte `json:"value"`
	// Optional record key carried alongside the value.
	Key []byte `json:"key,omitempty"`
	// Optional key used to route the record to a shard.
	ShardKey []byte `json:"shard_key,omitempty"`
}

// ClientID identifies a polling client (one dispatcher instance) to the broker.
type ClientID struct {
	ID    string `json:"id"`
	Group string `json:"group,omitempty"`
	Topic string `json:"topic"`
}

// String renders the client as group:id<topic>.
func (c ClientID) String() string {
	return c.Group + ":" + c.ID + "<" + c.Topic + ">"
}

// ShardOffset is a commit target: the next offset to read for a shard.
type ShardOffset struct {
	Shard  int   `json:"shard"`
	Offset int64 `json:"offset"`
}

// PublishRequest appends records to a topic.
type PublishRequest struct {
	Topic   string   `json:"topic"`
	Records []Record `json:"records"`
}

// PollRequest carries pending commits and asks for the next batches.
// The same shape is used for unsubscribe, where Offsets are the final commits.
type PollRequest struct {
	Client  ClientID      `json:"client"`
	Offsets []ShardOffset `json:"offsets"`
	// Per-shard record limit; zero means the broker default.
	Limit int `json:"limit,omitempty"`
}

// ShardRecords is a leased batch of one shard.
type ShardRecords struct {
	Shard int `json:"shard"`
	// Offset of the first record in Records.
	Offset  int64    `json:"offset"`
	Records []Record `json:"records"`
}

// Next returns the offset following the last record of the batch.
func (r ShardRecords) Next() int64 {
	return r.Offset + int64(len(r.Records))
}

// PollResponse lists the batches handed to the client, ascending by shard.
type PollResponse struct {
	Records []ShardRecords `json:"records"`
}

// CreateTopicRequest declares a topic with a fixed shard count.
type CreateTopicRequest struct {
	Topic  string `json:"topic"`
	Shards int    `json:"shards"`
}

// TopicInfo describes a known topic.
type TopicInfo struct {
	Topic  string `json:"topic"`
	Shards int    `json:"shards"`
}

// Stats is a point-in-time snapshot of broker state.
type Stats struct {
	Topics        []TopicStats `json:"topics"`
	Subscriptions int          `json:"subscriptions"`
}

// TopicStats describes one topic.
type TopicStats struct {
	Topic  string       `json:"topic"`
	Shards []ShardStats `json:"shards"`
}

// ShardStats describes one shard and every cursor kept for it.
type ShardStats struct {
	Shard   int           `json:"shard"`
	Length  int64         `json:"length"`
	Cursors []CursorStats `json:"cursors,omitempty"`
}

// CursorStats describes the commit position and lease of one group on a shard.
type CursorStats struct {
	// Group name, or the subscription tag for independent subscriptions.
	Group     string `json:"group"`
	Committed int64  `json:"committed"`
	Lag       int64  `json:"lag"`
	// Holder is the leasing subscription ID, zero when unleased.
	Holder uint64 `json:"holder,omitempty"`
	// Milliseconds until the lease expires.
	LeaseExpiresInMs int64 `json:"lease_expires_in_ms,omitempty"`
}
