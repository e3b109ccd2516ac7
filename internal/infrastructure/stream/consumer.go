package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

const (
	defaultBatchSize     = 32
	defaultBlock         = 2 * time.Second
	defaultMaxDeliveries = 5
	retryBackoff         = time.Second
)

// Dead-letter entry fields.
const (
	FieldEntryID = "entry_id"
	FieldError   = "error"
)

// ConsumerConfig names the stream, the consumer group and this consumer.
type ConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
	// MaxDeliveries is how many failed deliveries an entry gets before it
	// is copied to DeadLetter and acknowledged.
	MaxDeliveries int
	DeadLetter    string
}

// Consumer reads articles from a Redis Stream through a consumer group.
// Entries are acknowledged only after the handler succeeds for them, so a
// crash or a handler error leaves them pending for redelivery.
type Consumer struct {
	client  *redis.Client
	cfg     ConsumerConfig
	logger  *slog.Logger
	now     func() time.Time
	backoff time.Duration
	// deliveries counts failed deliveries per pending entry of this process.
	deliveries map[string]int
}

var _ ports.ArticleSource = (*Consumer)(nil)

func NewConsumer(client *redis.Client, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = defaultMaxDeliveries
	}
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = cfg.Stream + ":dead"
	}
	return &Consumer{
		client:     client,
		cfg:        cfg,
		logger:     logger.With("component", "stream_consumer", "stream", cfg.Stream),
		now:        time.Now,
		backoff:    retryBackoff,
		deliveries: make(map[string]int),
	}
}

// entry is a decoded stream message.
type entry struct {
	id  string
	raw string
}

// Consume blocks until ctx is cancelled. It first replays entries this
// consumer left unacknowledged, then reads new ones.
func (c *Consumer) Consume(ctx context.Context, handle func(ctx context.Context, articles []domain.Article) error) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	cursor := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, cursor},
			Count:    c.cfg.BatchSize,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				cursor = ">"
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("read stream failed", "error", err)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		messages := flatten(streams)
		if len(messages) == 0 {
			// Backlog drained.
			cursor = ">"
			continue
		}

		articles, entries, dropped := c.decode(messages)
		ack := dropped
		failed := map[int]error{}
		if len(articles) > 0 {
			err := handle(ctx, articles)
			var batchErr *domain.BatchError
			switch {
			case err == nil:
			case errors.As(err, &batchErr):
				failed = batchErr.Failed
			default:
				for i := range entries {
					failed[i] = err
				}
			}
		}
		for i, e := range entries {
			if _, ok := failed[i]; !ok {
				ack = append(ack, e.id)
			}
		}

		pending := 0
		for i, err := range failed {
			if i < 0 || i >= len(entries) {
				continue
			}
			e := entries[i]
			c.deliveries[e.id]++
			if c.deliveries[e.id] < c.cfg.MaxDeliveries {
				pending++
				continue
			}
			if c.deadLetter(ctx, e, err) {
				ack = append(ack, e.id)
			} else {
				pending++
			}
		}

		// Handled entries are acknowledged even when shutdown has begun.
		if len(ack) > 0 {
			if err := c.client.XAck(context.WithoutCancel(ctx), c.cfg.Stream, c.cfg.Group, ack...).Err(); err != nil {
				c.logger.Error("ack failed", "count", len(ack), "error", err)
			} else {
				for _, id := range ack {
					delete(c.deliveries, id)
				}
			}
		}

		if pending > 0 {
			c.logger.Warn("entries left pending", "count", pending, "acked", len(ack))
			cursor = "0"
			if !sleep(ctx, c.backoff) {
				return nil
			}
		}
	}
}

// deadLetter copies an entry that keeps failing to the dead-letter stream.
func (c *Consumer) deadLetter(ctx context.Context, e entry, cause error) bool {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	err := c.client.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: c.cfg.DeadLetter,
		Values: map[string]any{
			FieldArticle: e.raw,
			FieldEntryID: e.id,
			FieldError:   reason,
		},
	}).Err()
	if err != nil {
		c.logger.Error("dead-letter failed", "entry_id", e.id, "error", err)
		return false
	}
	c.logger.Error("entry dead-lettered",
		"entry_id", e.id,
		"deliveries", c.deliveries[e.id],
		"dead_letter", c.cfg.DeadLetter,
		"error", cause)
	return true
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// decode returns the parsed articles with their entries, plus the ids of
// undecodable entries, which are acknowledged and dropped.
func (c *Consumer) decode(messages []redis.XMessage) ([]domain.Article, []entry, []string) {
	articles := make([]domain.Article, 0, len(messages))
	entries := make([]entry, 0, len(messages))
	var dropped []string
	for _, msg := range messages {
		raw, ok := msg.Values[FieldArticle].(string)
		if !ok {
			c.logger.Warn("entry without article field dropped", "entry_id", msg.ID)
			dropped = append(dropped, msg.ID)
			continue
		}
		var article domain.Article
		if err := json.Unmarshal([]byte(raw), &article); err != nil {
			c.logger.Warn("undecodable article dropped", "entry_id", msg.ID, "error", err)
			dropped = append(dropped, msg.ID)
			continue
		}
		if article.IngestedAt.IsZero() {
			article.IngestedAt = c.now().UTC()
		}
		articles = append(articles, article)
		entries = append(entries, entry{id: msg.ID, raw: raw})
	}
	return articles, entries, dropped
}

func flatten(streams []redis.XStream) []redis.XMessage {
	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
