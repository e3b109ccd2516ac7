package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"NewsDesk/internal/config"
	"NewsDesk/internal/content"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

const defaultClaudeMaxTokens = 400

// ClaudeClient summarizes stories through the Anthropic Messages and
// Message Batches APIs.
type ClaudeClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var (
	_ ports.Summarizer      = (*ClaudeClient)(nil)
	_ ports.BatchSummarizer = (*ClaudeClient)(nil)
)

// NewClaudeClient builds a client from configuration. SDK retries are off;
// callers own the retry policy.
func NewClaudeClient(cfg config.AnthropicConfig) (*ClaudeClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	return &ClaudeClient{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// Summarize sends one story to the Messages API.
func (c *ClaudeClient) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: content.SystemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(content.Prompt(req)))},
	})
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}
	return messageText(resp.Content), nil
}

// SubmitBatch creates a Message Batch with one request per story, keyed by story id.
func (c *ClaudeClient) SubmitBatch(ctx context.Context, reqs []domain.SummaryRequest) (string, error) {
	if len(reqs) == 0 {
		return "", fmt.Errorf("empty batch")
	}

	requests := make([]anthropic.MessageBatchNewParamsRequest, 0, len(reqs))
	for _, req := range reqs {
		requests = append(requests, anthropic.MessageBatchNewParamsRequest{
			CustomID: req.StoryID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:     anthropic.Model(c.model),
				MaxTokens: c.maxTokens,
				System:    []anthropic.TextBlockParam{{Text: content.SystemPrompt}},
				Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(content.Prompt(req)))},
			},
		})
	}

	batch, err := c.client.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{Requests: requests})
	if err != nil {
		return "", fmt.Errorf("create message batch: %w", err)
	}
	return batch.ID, nil
}

// FetchBatch polls the batch and, once it has ended, streams its results.
func (c *ClaudeClient) FetchBatch(ctx context.Context, handle string) (domain.BatchResult, error) {
	batch, err := c.client.Messages.Batches.Get(ctx, handle)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("get message batch: %w", err)
	}
	if string(batch.ProcessingStatus) != "ended" {
		return domain.BatchResult{State: domain.BatchStateRunning}, nil
	}

	stream := c.client.Messages.Batches.ResultsStreaming(ctx, handle)
	defer stream.Close()

	result := domain.BatchResult{State: domain.BatchStateEnded}
	for stream.Next() {
		entry := stream.Current()
		item := domain.BatchItemResult{StoryID: entry.CustomID}
		switch entry.Result.Type {
		case "succeeded":
			item.Summary = messageText(entry.Result.Message.Content)
		default:
			item.Error = "batch request " + string(entry.Result.Type)
		}
		result.Items = append(result.Items, item)
	}
	if err := stream.Err(); err != nil {
		return domain.BatchResult{}, fmt.Errorf("stream batch results: %w", err)
	}
	return result, nil
}

func messageText(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
