// Package source reads articles from local files.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

const defaultBatchSize = 64

// JSONLines delivers articles encoded one JSON object per line. Blank lines
// and lines starting with # are skipped; malformed lines are logged and skipped.
type JSONLines struct {
	r         io.Reader
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.ArticleSource = (*JSONLines)(nil)

func NewJSONLines(r io.Reader, batchSize int, logger *slog.Logger) *JSONLines {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &JSONLines{
		r:         r,
		batchSize: batchSize,
		logger:    logger.With("component", "jsonl_source"),
		now:       time.Now,
	}
}

// Consume reads the whole input, handing articles over in batches. The first
// handler error stops consumption.
func (s *JSONLines) Consume(ctx context.Context, handle func(ctx context.Context, articles []domain.Article) error) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	batch := make([]domain.Article, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := handle(ctx, batch); err != nil {
			return err
		}
		batch = make([]domain.Article, 0, s.batchSize)
		return nil
	}

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var article domain.Article
		if err := json.Unmarshal([]byte(text), &article); err != nil {
			s.logger.Warn("malformed line skipped", "line", line, "error", err)
			continue
		}
		if article.IngestedAt.IsZero() {
			article.IngestedAt = s.now().UTC()
		}

		batch = append(batch, article)
		if len(batch) == s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read articles: %w", err)
	}

	return flush()
}
