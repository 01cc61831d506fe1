package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"creek/src/broker"
	"creek/src/contracts"
	"creek/src/logger"
	"creek/src/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	b := broker.New(store.NewInMemoryStore())
	gw := broker.NewGateway(b, broker.GatewayConfig{}, logger.NewSilentLogger())
	t.Cleanup(gw.Close)
	return NewServer(gw, gw)
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("handler returned no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want mcp.TextContent", result.Content[0])
	}
	return text.Text, result.IsError
}

func TestTopicTools(t *testing.T) {
	s := newTestServer(t)

	if text, isErr := call(t, s.handleCreateTopic, map[string]any{"topic": "orders", "shards": 3}); isErr {
		t.Fatalf("create_topic failed: %s", text)
	}
	if text, isErr := call(t, s.handleCreateTopic, map[string]any{"topic": "orders", "shards": 4}); !isErr {
		t.Errorf("create_topic with a different shard count should fail, got %s", text)
	}
	if text, isErr := call(t, s.handleCreateTopic, map[string]any{"topic": "orders"}); !isErr || !strings.Contains(text, "shards") {
		t.Errorf("create_topic without shards = %s, want shards error", text)
	}

	text, isErr := call(t, s.handleListTopics, nil)
	if isErr {
		t.Fatalf("list_topics failed: %s", text)
	}
	var topics []contracts.TopicInfo
	if err := json.Unmarshal([]byte(text), &topics); err != nil {
		t.Fatalf("list_topics returned invalid JSON: %v", err)
	}
	if len(topics) != 1 || topics[0].Topic != "orders" || topics[0].Shards != 3 {
		t.Errorf("list_topics = %v, want [orders/3]", topics)
	}
}

func TestPublishPeekAndGetRecord(t *testing.T) {
	s := newTestServer(t)
	call(t, s.handleCreateTopic, map[string]any{"topic": "orders", "shards": 2})

	long := strings.Repeat("x", previewValueLimit+50)
	for _, v := range []string{"first", long} {
		text, isErr := call(t, s.handlePublish, map[string]any{"topic": "orders", "value": v, "shard_key": "user-1"})
		if isErr {
			t.Fatalf("publish failed: %s", text)
		}
	}
	if text, isErr := call(t, s.handlePublish, map[string]any{"topic": "missing", "value": "x"}); !isErr {
		t.Errorf("publish to missing topic should fail, got %s", text)
	}

	text, isErr := call(t, s.handlePeek, map[string]any{"topic": "orders"})
	if isErr {
		t.Fatalf("peek failed: %s", text)
	}
	var peek PeekResponse
	if err := json.Unmarshal([]byte(text), &peek); err != nil {
		t.Fatalf("peek returned invalid JSON: %v", err)
	}
	if len(peek.Records) != 2 {
		t.Fatalf("peek returned %d records, want 2", len(peek.Records))
	}
	shard := broker.HashShard([]byte("user-1"), 2)
	second := peek.Records[1]
	if second.Shard != shard || second.Offset != 1 || second.Size != len(long) {
		t.Errorf("second record = %+v", second)
	}
	if !strings.HasSuffix(second.Value, "...") {
		t.Errorf("long value should be shortened, got %d chars", len(second.Value))
	}

	text, isErr = call(t, s.handleGetRecord, map[string]any{"request_id": peek.RequestID, "shard": shard, "offset": 1})
	if isErr {
		t.Fatalf("get_record failed: %s", text)
	}
	var full FullRecord
	if err := json.Unmarshal([]byte(text), &full); err != nil {
		t.Fatalf("get_record returned invalid JSON: %v", err)
	}
	if full.Value != long || full.Encoding != "utf8" || full.ShardKey != "user-1" {
		t.Errorf("get_record = %+v, want full value", full)
	}

	// Peeking again starts from the beginning since nothing was committed.
	text, _ = call(t, s.handlePeek, map[string]any{"topic": "orders", "limit": 1})
	if err := json.Unmarshal([]byte(text), &peek); err != nil {
		t.Fatalf("peek returned invalid JSON: %v", err)
	}
	if len(peek.Records) != 1 || peek.Records[0].Value != "first" {
		t.Errorf("second peek = %+v, want the first record again", peek.Records)
	}
}

func TestTopicStatsTool(t *testing.T) {
	s := newTestServer(t)
	call(t, s.handleCreateTopic, map[string]any{"topic": "orders", "shards": 2})
	call(t, s.handleCreateTopic, map[string]any{"topic": "audit", "shards": 1})

	text, isErr := call(t, s.handleTopicStats, map[string]any{"topic": "audit"})
	if isErr {
		t.Fatalf("topic_stats failed: %s", text)
	}
	var stats contracts.Stats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("topic_stats returned invalid JSON: %v", err)
	}
	if len(stats.Topics) != 1 || stats.Topics[0].Topic != "audit" {
		t.Errorf("topic_stats = %+v, want only audit", stats.Topics)
	}

	if _, isErr := call(t, s.handleTopicStats, map[string]any{"topic": "nope"}); !isErr {
		t.Error("topic_stats for unknown topic should fail")
	}
}
