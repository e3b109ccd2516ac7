package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// Client talks to a self-hosted summarizer service that offers a synchronous
// endpoint and an asynchronous batch queue.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var (
	_ ports.Summarizer      = (*Client)(nil)
	_ ports.BatchSummarizer = (*Client)(nil)
)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Summarize requests a summary for one story.
func (c *Client) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}
	if err := c.do(ctx, http.MethodPost, "/summarize", req, &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

// SubmitBatch enqueues the requests and returns the service's batch id.
func (c *Client) SubmitBatch(ctx context.Context, reqs []domain.SummaryRequest) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/batches", map[string]any{"requests": reqs}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("summarizer returned empty batch id")
	}
	return resp.ID, nil
}

// FetchBatch polls a batch. The service reports running, ended or failed.
func (c *Client) FetchBatch(ctx context.Context, handle string) (domain.BatchResult, error) {
	var resp struct {
		Status string                   `json:"status"`
		Error  string                   `json:"error"`
		Items  []domain.BatchItemResult `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/batches/"+url.PathEscape(handle), nil, &resp); err != nil {
		return domain.BatchResult{}, err
	}

	switch domain.BatchState(resp.Status) {
	case domain.BatchStateEnded:
		return domain.BatchResult{State: domain.BatchStateEnded, Items: resp.Items}, nil
	case domain.BatchStateFailed:
		return domain.BatchResult{State: domain.BatchStateFailed, Error: resp.Error}, nil
	default:
		return domain.BatchResult{State: domain.BatchStateRunning}, nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any, v any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
