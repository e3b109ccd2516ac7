package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// Publisher emits notify requests to a Redis Stream for the delivery service.
type Publisher struct {
	client *redis.Client
	stream string
}

var _ ports.Notifier = (*Publisher)(nil)

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// NotifyBreaking appends the request to the notification stream.
func (p *Publisher) NotifyBreaking(ctx context.Context, req domain.NotifyRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notify request: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			FieldStoryID: req.StoryID,
			FieldPayload: string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish notify request: %w", err)
	}
	return nil
}

// PublishArticle appends an article to an ingestion stream.
func PublishArticle(ctx context.Context, client *redis.Client, stream string, article domain.Article) (string, error) {
	payload, err := json.Marshal(article)
	if err != nil {
		return "", fmt.Errorf("marshal article: %w", err)
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{FieldArticle: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish article: %w", err)
	}
	return id, nil
}
