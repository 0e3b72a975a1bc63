// Package video generates per-scene video clips through the SiliconFlow
// image-to-video API: submit a request, poll until it settles, download the
// result. External-call retries live here and nowhere above.
package video

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/IAMD3/ykgen/internal/version"
)

// Status values reported by the API.
const (
	StatusSucceed    = "Succeed"
	StatusFailed     = "Failed"
	StatusInQueue    = "InQueue"
	StatusInProgress = "InProgress"
)

// Options configures the client. Zero values fall back to service defaults.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	Size         string
	MaxWait      time.Duration
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration

	// OnRetry is invoked once per retried status check, if set.
	OnRetry func()
}

func (o *Options) fill() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.siliconflow.cn/v1"
	}
	if o.Model == "" {
		o.Model = "Wan-AI/Wan2.1-I2V-14B-720P-Turbo"
	}
	if o.Size == "" {
		o.Size = "1280x720"
	}
	if o.MaxWait == 0 {
		o.MaxWait = 10 * time.Minute
	}
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 5 * time.Second
	}
}

// Client talks to one SiliconFlow endpoint.
type Client struct {
	opts       Options
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient validates options and builds a client.
func NewClient(opts Options, log *zap.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("video: api key is required")
	}
	opts.fill()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}, nil
}

// Request describes one clip: the source frame plus motion prompts.
type Request struct {
	Image    []byte
	Prompt   string
	Negative string
	Seed     int64
}

// StatusResponse is the poll result for a submitted request.
type StatusResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Results struct {
		Videos []struct {
			URL string `json:"url"`
		} `json:"videos"`
	} `json:"results"`
}

// Submit queues a generation request and returns its request id.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("video: source image is empty")
	}
	if req.Prompt == "" {
		return "", fmt.Errorf("video: prompt is empty")
	}

	payload := map[string]any{
		"model":      c.opts.Model,
		"prompt":     req.Prompt,
		"image_size": c.opts.Size,
		"image":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image),
	}
	if req.Negative != "" {
		payload["negative_prompt"] = req.Negative
	}
	if req.Seed != 0 {
		payload["seed"] = req.Seed
	}

	var resp struct {
		RequestID string `json:"requestId"`
	}
	if err := c.post(ctx, "/video/submit", payload, &resp); err != nil {
		return "", err
	}
	if resp.RequestID == "" {
		return "", fmt.Errorf("video: submit returned no request id")
	}
	return resp.RequestID, nil
}

// Status polls one request, retrying transient server errors with
// exponentially growing delays.
func (c *Client) Status(ctx context.Context, requestID string) (StatusResponse, error) {
	var resp StatusResponse
	var lastErr error

	delay := c.opts.RetryDelay
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		err := c.post(ctx, "/video/status", map[string]any{"requestId": requestID}, &resp)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == c.opts.MaxRetries {
			break
		}

		if c.opts.OnRetry != nil {
			c.opts.OnRetry()
		}
		c.log.Warn("video status check failed, retrying",
			zap.String("request_id", requestID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return StatusResponse{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return StatusResponse{}, lastErr
}

// Generate runs the full submit/poll/download cycle and returns the clip
// bytes. The poll loop gives up after the configured max wait.
func (c *Client) Generate(ctx context.Context, req Request) ([]byte, error) {
	requestID, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	c.log.Info("video request submitted",
		zap.String("request_id", requestID),
		zap.String("model", c.opts.Model))

	deadline := time.Now().Add(c.opts.MaxWait)
	for {
		status, err := c.Status(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("video %s: %w", requestID, err)
		}

		switch status.Status {
		case StatusSucceed:
			if len(status.Results.Videos) == 0 || status.Results.Videos[0].URL == "" {
				return nil, fmt.Errorf("video %s: succeeded without a result url", requestID)
			}
			return c.download(ctx, status.Results.Videos[0].URL)
		case StatusFailed:
			return nil, fmt.Errorf("video %s: generation failed: %s", requestID, status.Reason)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video %s: still %s after %s", requestID, status.Status, c.opts.MaxWait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.opts.PollInterval):
		}
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.opts.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return &apiError{status: res.StatusCode, body: string(b), path: path}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("video download: status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

type apiError struct {
	status int
	body   string
	path   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("siliconflow %s: status %d: %s", e.path, e.status, e.body)
}

// Bad gateway, unavailable, and timeout responses are worth retrying.
func isRetryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status == http.StatusBadGateway ||
			ae.status == http.StatusServiceUnavailable ||
			ae.status == http.StatusGatewayTimeout ||
			ae.status == http.StatusTooManyRequests
	}
	// Transport-level failures (connection reset, timeouts) are retryable.
	return true
}
