// Package comfy talks to a ComfyUI server: queue a workflow over HTTP, wait
// for completion on the websocket event stream, then fetch the outputs.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a ComfyUI API client bound to one server address.
type Client struct {
	address    string
	clientID   string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient constructs a client for a host:port address.
func NewClient(address string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		address:    address,
		clientID:   uuid.NewString(),
		httpClient: &http.Client{Timeout: timeout},
		dialer:     websocket.DefaultDialer,
	}
}

// ClientID returns the websocket client id used for event correlation.
func (c *Client) ClientID() string {
	return c.clientID
}

// QueuePrompt submits a workflow and returns the assigned prompt id.
func (c *Client) QueuePrompt(ctx context.Context, workflow Workflow) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"prompt":    workflow,
		"client_id": c.clientID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s/prompt", c.address), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("comfyui: status %d: %s", res.StatusCode, string(b))
	}

	var resp struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode queue response: %w", err)
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("comfyui: empty prompt id")
	}
	return resp.PromptID, nil
}

// WaitForPrompt blocks on the websocket event stream until the prompt
// finishes executing or ctx is cancelled.
func (c *Client) WaitForPrompt(ctx context.Context, promptID string) error {
	wsURL := fmt.Sprintf("ws://%s/ws?clientId=%s", c.address, url.QueryEscape(c.clientID))
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read websocket: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue // previews are binary frames
		}

		var msg struct {
			Type string `json:"type"`
			Data struct {
				Node     *string `json:"node"`
				PromptID string  `json:"prompt_id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "executing" && msg.Data.Node == nil && msg.Data.PromptID == promptID {
			return nil
		}
	}
}

// History fetches the execution record of a prompt.
func (c *Client) History(ctx context.Context, promptID string) (History, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/history/%s", c.address, promptID), nil)
	if err != nil {
		return History{}, fmt.Errorf("build request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return History{}, fmt.Errorf("fetch history: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return History{}, fmt.Errorf("comfyui: history status %d", res.StatusCode)
	}

	var all map[string]History
	if err := json.NewDecoder(res.Body).Decode(&all); err != nil {
		return History{}, fmt.Errorf("decode history: %w", err)
	}
	h, ok := all[promptID]
	if !ok {
		return History{}, fmt.Errorf("comfyui: no history for prompt %s", promptID)
	}
	return h, nil
}

// FetchOutput downloads one produced file.
func (c *Client) FetchOutput(ctx context.Context, ref OutputRef) ([]byte, error) {
	query := url.Values{}
	query.Set("filename", ref.Filename)
	query.Set("subfolder", ref.Subfolder)
	query.Set("type", ref.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/view?%s", c.address, query.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch output: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("comfyui: view status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// Run queues a workflow, waits for completion, and returns all output files
// in node order.
func (c *Client) Run(ctx context.Context, workflow Workflow) ([][]byte, error) {
	promptID, err := c.QueuePrompt(ctx, workflow)
	if err != nil {
		return nil, err
	}
	if err := c.WaitForPrompt(ctx, promptID); err != nil {
		return nil, err
	}

	history, err := c.History(ctx, promptID)
	if err != nil {
		return nil, err
	}

	var outputs [][]byte
	for _, ref := range history.OutputRefs() {
		data, err := c.FetchOutput(ctx, ref)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, data)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("comfyui: prompt %s produced no outputs", promptID)
	}
	return outputs, nil
}

// OutputRef identifies one file produced by a workflow node.
type OutputRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// History is the execution record of a single prompt.
type History struct {
	Outputs map[string]struct {
		Images []OutputRef `json:"images,omitempty"`
		Audio  []OutputRef `json:"audio,omitempty"`
	} `json:"outputs"`
}

// OutputRefs returns all file references across nodes in stable node order.
func (h History) OutputRefs() []OutputRef {
	nodeIDs := make([]string, 0, len(h.Outputs))
	for id := range h.Outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	var refs []OutputRef
	for _, id := range nodeIDs {
		out := h.Outputs[id]
		refs = append(refs, out.Images...)
		refs = append(refs, out.Audio...)
	}
	return refs
}
