package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"creek/src/contracts"
)

const (
	defaultPeekLimit  = 20
	previewValueLimit = 200
)

// Server is the MCP server for creek.
type Server struct {
	mcpServer *server.MCPServer
	gateway   contracts.Gateway
	admin     contracts.Admin
	peeks     *PeekStore
}

// NewServer creates an MCP server backed by the given broker.
func NewServer(gw contracts.Gateway, admin contracts.Admin) *Server {
	s := server.NewMCPServer(
		"creek",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		gateway:   gw,
		admin:     admin,
		peeks:     NewPeekStore(),
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	createTool := mcp.NewTool("create_topic",
		mcp.WithDescription("Create a topic with a fixed number of shards. Creating an existing topic with the same shard count succeeds."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic name")),
		mcp.WithNumber("shards", mcp.Required(), mcp.Description("Number of shards (at least 1)")),
	)

	listTool := mcp.NewTool("list_topics",
		mcp.WithDescription("List every topic and its shard count."),
	)

	publishTool := mcp.NewTool("publish",
		mcp.WithDescription("Publish one record to a topic. Records with the same shard_key land on the same shard; without one they are spread round-robin."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Record payload")),
		mcp.WithString("key", mcp.Description("Optional record key")),
		mcp.WithString("shard_key", mcp.Description("Optional routing key")),
	)

	statsTool := mcp.NewTool("topic_stats",
		mcp.WithDescription("Shard lengths, group cursors, lag and lease holders. Pass a topic to narrow the result."),
		mcp.WithString("topic", mcp.Description("Only report this topic")),
	)

	peekTool := mcp.NewTool("peek",
		mcp.WithDescription("Read records from the start of every shard without moving any group's cursor. Values are shortened; use get_record for the full payload."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic name")),
		mcp.WithNumber("limit", mcp.Description("Max records per shard (default: 20)")),
	)

	recordTool := mcp.NewTool("get_record",
		mcp.WithDescription("Get the full payload of a record returned by peek."),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("Request ID from the peek response")),
		mcp.WithNumber("shard", mcp.Required(), mcp.Description("Shard of the record")),
		mcp.WithNumber("offset", mcp.Required(), mcp.Description("Offset of the record")),
	)

	s.mcpServer.AddTool(createTool, s.handleCreateTopic)
	s.mcpServer.AddTool(listTool, s.handleListTopics)
	s.mcpServer.AddTool(publishTool, s.handlePublish)
	s.mcpServer.AddTool(statsTool, s.handleTopicStats)
	s.mcpServer.AddTool(peekTool, s.handlePeek)
	s.mcpServer.AddTool(recordTool, s.handleGetRecord)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleCreateTopic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic := request.GetString("topic", "")
	if topic == "" {
		return mcp.NewToolResultError("topic parameter is required"), nil
	}
	shards := request.GetInt("shards", 0)
	if shards <= 0 {
		return mcp.NewToolResultError("shards must be at least 1"), nil
	}

	if err := s.admin.CreateTopic(ctx, contracts.CreateTopicRequest{Topic: topic, Shards: shards}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("topic %s ready with %d shards", topic, shards)), nil
}

func (s *Server) handleListTopics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topics, err := s.admin.Topics(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if topics == nil {
		topics = []contracts.TopicInfo{}
	}
	return jsonResult(topics)
}

func (s *Server) handlePublish(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic := request.GetString("topic", "")
	if topic == "" {
		return mcp.NewToolResultError("topic parameter is required"), nil
	}

	record := contracts.Record{Value: []byte(request.GetString("value", ""))}
	if key := request.GetString("key", ""); key != "" {
		record.Key = []byte(key)
	}
	if shardKey := request.GetString("shard_key", ""); shardKey != "" {
		record.ShardKey = []byte(shardKey)
	}

	req := contracts.PublishRequest{Topic: topic, Records: []contracts.Record{record}}
	if err := s.gateway.Publish(ctx, req); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("publish failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("published %d bytes to %s", len(record.Value), topic)), nil
}

func (s *Server) handleTopicStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.admin.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}

	if topic := request.GetString("topic", ""); topic != "" {
		var filtered []contracts.TopicStats
		for _, t := range stats.Topics {
			if t.Topic == topic {
				filtered = append(filtered, t)
			}
		}
		if len(filtered) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("no such topic: %s", topic)), nil
		}
		stats.Topics = filtered
	}
	return jsonResult(stats)
}

// handlePeek reads through a throwaway independent client, so group cursors
// are untouched and nothing is committed.
func (s *Server) handlePeek(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic := request.GetString("topic", "")
	if topic == "" {
		return mcp.NewToolResultError("topic parameter is required"), nil
	}
	limit := request.GetInt("limit", defaultPeekLimit)

	requestID := "peek-" + uuid.NewString()
	client := contracts.ClientID{ID: requestID, Topic: topic}
	resp, err := s.gateway.Poll(ctx, contracts.PollRequest{Client: client, Limit: limit})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("peek failed: %v", err)), nil
	}
	if err := s.gateway.Unsubscribe(ctx, contracts.PollRequest{Client: client}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("peek cleanup failed: %v", err)), nil
	}

	s.peeks.Store(requestID, topic, resp.Records)

	out := PeekResponse{RequestID: requestID, Topic: topic, Records: []RecordPreview{}}
	for _, b := range resp.Records {
		for i, r := range b.Records {
			out.Records = append(out.Records, RecordPreview{
				Shard:  b.Shard,
				Offset: b.Offset + int64(i),
				Key:    previewValue(r.Key, previewValueLimit),
				Value:  previewValue(r.Value, previewValueLimit),
				Size:   len(r.Value),
			})
		}
	}
	return jsonResult(out)
}

func (s *Server) handleGetRecord(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := request.GetString("request_id", "")
	if requestID == "" {
		return mcp.NewToolResultError("request_id parameter is required"), nil
	}
	shard := request.GetInt("shard", -1)
	offset := request.GetInt("offset", -1)

	topic, r, found := s.peeks.Get(requestID, shard, int64(offset))
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("record not found: request_id=%s, shard=%d, offset=%d", requestID, shard, offset)), nil
	}

	value, encoding := encodeValue(r.Value)
	key, _ := encodeValue(r.Key)
	shardKey, _ := encodeValue(r.ShardKey)
	return jsonResult(FullRecord{
		Topic:    topic,
		Shard:    shard,
		Offset:   int64(offset),
		Key:      key,
		ShardKey: shardKey,
		Value:    value,
		Encoding: encoding,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
