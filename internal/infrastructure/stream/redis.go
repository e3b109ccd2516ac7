// Package stream carries articles in and breaking notifications out over Redis Streams.
package stream

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Message fields.
const (
	FieldArticle = "article"
	FieldStoryID = "story_id"
	FieldPayload = "payload"
)

// NewClient creates a Redis client from a URL such as redis://localhost:6379/0.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
