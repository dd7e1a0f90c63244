package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Deliverer sends one task message to a remote agent and returns whatever
// the remote produced. Implemented by transport-specific clients.
type Deliverer interface {
	Deliver(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error)
}

// DeliveryRequest carries one user message to a remote agent endpoint.
type DeliveryRequest struct {
	// ContextID is the conversation id shared with the remote agent.
	ContextID string
	// TaskID is the durable task id, when one exists.
	TaskID string
	// Message is the user turn to deliver.
	Message *Message
	// Endpoint is the remote agent's A2A URL, taken from its card.
	Endpoint string
}

// DeliveryResult is the remote agent's answer. At most one field is set:
// a full task object, a bare agent message, or neither (no response).
type DeliveryResult struct {
	Task    *Task
	Message *Message
}

// Client implements Deliverer over A2A JSON-RPC HTTP.
type Client struct {
	http    *http.Client
	headers http.Header
	id      uint64
}

// ClientOption configures the HTTP delivery client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithHeader adds a static header to all outgoing requests.
func WithHeader(name, value string) ClientOption {
	return func(cl *Client) { cl.headers.Add(name, value) }
}

// NewClient constructs a JSON-RPC HTTP deliverer. Per-request endpoints come
// from the agent cards, so a single client serves every remote agent.
func NewClient(opts ...ClientOption) *Client {
	cl := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	return cl
}

var _ Deliverer = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("a2a error %d: %s", e.Code, e.Message)
}

func (c *Client) nextID() uint64 {
	return atomic.AddUint64(&c.id, 1)
}

// Deliver invokes tasks/send on the remote endpoint. The result is decoded
// as a task when it carries a status, as a bare message when it carries
// parts, and as empty otherwise.
func (c *Client) Deliver(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	if req.Endpoint == "" {
		return nil, fmt.Errorf("a2a: delivery endpoint is required")
	}
	params := map[string]any{
		"contextId": req.ContextID,
		"message":   req.Message,
	}
	if req.TaskID != "" {
		params["taskId"] = req.TaskID
	}
	rpcReq := rpcRequest{
		JSONRPC: "2.0",
		Method:  "tasks/send",
		ID:      c.nextID(),
		Params:  params,
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("a2a http status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode a2a response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return decodeResult(rpcResp.Result)
}

// decodeResult distinguishes task results from bare message results by shape.
func decodeResult(raw json.RawMessage) (*DeliveryResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &DeliveryResult{}, nil
	}

	var probe struct {
		Status *json.RawMessage `json:"status"`
		Role   string           `json:"role"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode a2a result: %w", err)
	}

	if probe.Status != nil {
		var task Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return nil, fmt.Errorf("decode a2a task: %w", err)
		}
		return &DeliveryResult{Task: &task}, nil
	}
	if probe.Role != "" {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("decode a2a message: %w", err)
		}
		return &DeliveryResult{Message: &msg}, nil
	}
	return &DeliveryResult{}, nil
}
