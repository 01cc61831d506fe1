package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"creek/src/contracts"
)

// Client talks to a creek HTTP server. It implements contracts.Gateway and
// contracts.Admin.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Publish implements contracts.Gateway.
func (c *Client) Publish(ctx context.Context, req contracts.PublishRequest) error {
	return c.do(ctx, http.MethodPost, "/publish", req, nil)
}

// Poll implements contracts.Gateway.
func (c *Client) Poll(ctx context.Context, req contracts.PollRequest) (contracts.PollResponse, error) {
	var resp contracts.PollResponse
	err := c.do(ctx, http.MethodPost, "/poll", req, &resp)
	return resp, err
}

// Unsubscribe implements contracts.Gateway.
func (c *Client) Unsubscribe(ctx context.Context, req contracts.PollRequest) error {
	return c.do(ctx, http.MethodPost, "/unsubscribe", req, nil)
}

// CreateTopic implements contracts.Admin.
func (c *Client) CreateTopic(ctx context.Context, req contracts.CreateTopicRequest) error {
	return c.do(ctx, http.MethodPost, "/topics", req, nil)
}

// Topics implements contracts.Admin.
func (c *Client) Topics(ctx context.Context) ([]contracts.TopicInfo, error) {
	var topics []contracts.TopicInfo
	err := c.do(ctx, http.MethodGet, "/topics", nil, &topics)
	return topics, err
}

// Stats implements contracts.Admin.
func (c *Client) Stats(ctx context.Context) (contracts.Stats, error) {
	var stats contracts.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

// Clear implements contracts.Admin.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clear", nil, nil)
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &e); err != nil {
			e.Error = strings.TrimSpace(string(data))
		}
		return decodeError(resp.StatusCode, e)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
