package ports

import (
	"context"
	"time"

	"NewsDesk/internal/domain"
)

// ArticleSource delivers articles at least once. handle is invoked per
// delivery batch; a source acknowledges a batch only when handle returns nil.
type ArticleSource interface {
	Consume(ctx context.Context, handle func(ctx context.Context, articles []domain.Article) error) error
}

// StoryRepository owns the recency-indexed story view and the article index.
type StoryRepository interface {
	// RecentByCategory returns stories updated at or after since, most recent first.
	RecentByCategory(ctx context.Context, category string, since time.Time, limit int) ([]domain.Story, error)
	// FindByArticle returns the id of the story that already holds the article.
	FindByArticle(ctx context.Context, articleID string) (storyID string, found bool, err error)
	Get(ctx context.Context, id string) (domain.Story, error)
	// Create stores a new story with Version 1. It fails with
	// domain.ErrArticleIndexed when a member article already belongs to a story.
	Create(ctx context.Context, story *domain.Story) error
	// Update writes the story only if the stored version equals story.Version,
	// then increments story.Version. A mismatch yields domain.ErrVersionConflict.
	Update(ctx context.Context, story *domain.Story) error
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Story, error)
	// ListUnsummarized returns stories updated since the lookback start that
	// have no summary, are not waiting on a batch, are not content gaps and
	// have fewer than maxAttempts recorded failures.
	ListUnsummarized(ctx context.Context, since time.Time, maxAttempts, limit int) ([]domain.Story, error)
	List(ctx context.Context, filter domain.StoryFilter) ([]domain.Story, error)
}

// BatchJobRepository tracks outstanding batch summarization jobs.
type BatchJobRepository interface {
	Create(ctx context.Context, job *domain.BatchJob) error
	Update(ctx context.Context, job *domain.BatchJob) error
	// ListOpen returns unarchived jobs, oldest first.
	ListOpen(ctx context.Context) ([]domain.BatchJob, error)
	Archive(ctx context.Context, id string, at time.Time) error
}

// Summarizer produces a summary synchronously.
type Summarizer interface {
	Summarize(ctx context.Context, req domain.SummaryRequest) (string, error)
}

// BatchSummarizer is the asynchronous, lower-cost summarization collaborator.
type BatchSummarizer interface {
	SubmitBatch(ctx context.Context, reqs []domain.SummaryRequest) (handle string, err error)
	FetchBatch(ctx context.Context, handle string) (domain.BatchResult, error)
}

// Notifier hands breaking-story notify requests to the delivery collaborator.
type Notifier interface {
	NotifyBreaking(ctx context.Context, req domain.NotifyRequest) error
}

// Scheduler runs named jobs on cron-style specs.
type Scheduler interface {
	Register(name, spec string, job func(time.Time)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
