// Package mcp exposes broker administration and inspection as MCP tools.
package mcp

// RecordPreview is a record as shown to an MCP client. Long or binary values
// are shortened; get_record returns the full value.
type RecordPreview struct {
	Shard  int    `json:"shard"`
	Offset int64  `json:"offset"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value"`
	Size   int    `json:"size"`
}

// PeekResponse is returned by the peek tool.
type PeekResponse struct {
	RequestID string          `json:"request_id"`
	Topic     string          `json:"topic"`
	Records   []RecordPreview `json:"records"`
}

// FullRecord is returned by get_record.
type FullRecord struct {
	Topic    string `json:"topic"`
	Shard    int    `json:"shard"`
	Offset   int64  `json:"offset"`
	Key      string `json:"key,omitempty"`
	ShardKey string `json:"shard_key,omitempty"`
	Value    string `json:"value"`
	// Encoding is "utf8" or "base64".
	Encoding string `json:"encoding"`
}
