package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/spam"
)

const defaultIngestWorkers = 4

// PipelineDeps wires all collaborators into the ingestion pipeline.
type PipelineDeps struct {
	Source        ports.ArticleSource
	Filter        *spam.Filter
	Resolver      *Resolver
	Summarization *Summarization
	Alerts        *BreakingAlerts
	Workers       int
	Logger        *slog.Logger
}

// Pipeline implements the article ingestion workflow:
// filter, resolve, then notify and summarize.
type Pipeline struct {
	source        ports.ArticleSource
	filter        *spam.Filter
	resolver      *Resolver
	summarization *Summarization
	alerts        *BreakingAlerts
	workers       int
	logger        *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultIngestWorkers
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:        deps.Source,
		filter:        deps.Filter,
		resolver:      deps.Resolver,
		summarization: deps.Summarization,
		alerts:        deps.Alerts,
		workers:       workers,
		logger:        logger.With("component", "pipeline"),
	}
}

// Run consumes the article source until it is exhausted or ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.source == nil {
		return nil
	}
	return p.source.Consume(ctx, func(ctx context.Context, articles []domain.Article) error {
		_, err := p.IngestBatch(ctx, articles)
		return err
	})
}

// Ingest processes one article. Rejected, invalid and conflicted articles are
// logged and reported in the result; only transient persistence failures are
// returned as errors so the delivery can be retried.
func (p *Pipeline) Ingest(ctx context.Context, article domain.Article) (domain.IngestResult, error) {
	if p.filter != nil {
		if v := p.filter.Check(article.Title, article.Description, article.URL); !v.Accepted {
			metrics.RecordRejection(v.Rule)
			metrics.RecordArticle(string(domain.OutcomeRejected))
			p.logger.Info("article rejected",
				"article_id", article.ID,
				"source", article.Source,
				"rule", v.Rule,
				"match", v.Match)
			return domain.IngestResult{
				ArticleID: article.ID,
				Outcome:   domain.OutcomeRejected,
				Reason:    v.Rule,
			}, nil
		}
	}

	res, err := p.resolver.Resolve(ctx, article)
	switch {
	case errors.Is(err, domain.ErrInvalidTimestamp):
		metrics.RecordArticle(string(domain.OutcomeInvalid))
		p.logger.Error("article excluded: invalid timestamp",
			"article_id", article.ID,
			"source", article.Source,
			"published_at", article.PublishedAt,
			"error", err)
		return res.Result, nil
	case errors.Is(err, domain.ErrInvalidArticle):
		metrics.RecordArticle(string(domain.OutcomeInvalid))
		p.logger.Warn("article dropped: invalid",
			"article_id", article.ID,
			"source", article.Source,
			"error", err)
		return res.Result, nil
	case errors.Is(err, domain.ErrConflictRetriesExhausted):
		metrics.RecordArticle(string(domain.OutcomeSkipped))
		p.logger.Warn("article skipped after repeated conflicts",
			"article_id", article.ID,
			"story_id", res.Result.StoryID,
			"error", err)
		return res.Result, nil
	case err != nil:
		return res.Result, fmt.Errorf("resolve article %s: %w", article.ID, err)
	}
	metrics.RecordArticle(string(res.Result.Outcome))

	if res.Result.Outcome != domain.OutcomeCreated && res.Result.Outcome != domain.OutcomeMerged {
		return res.Result, nil
	}
	story := res.Story

	if tr := res.Result.Transition; tr != nil {
		metrics.RecordTransition(string(tr.From), string(tr.To))
		if tr.To == domain.StatusBreaking {
			// A failed emit is retried by the sweeper.
			_, _ = p.alerts.Notify(ctx, story)
		}
	}

	if res.Result.NewSource && p.summarization != nil {
		p.summarization.Immediate(ctx, story)
	}
	return res.Result, nil
}

// IngestBatch processes articles concurrently. Results keep input order. A
// failing article never cancels its siblings; failures are reported together
// as a *domain.BatchError so sources can acknowledge the rest.
func (p *Pipeline) IngestBatch(ctx context.Context, articles []domain.Article) ([]domain.IngestResult, error) {
	results := make([]domain.IngestResult, len(articles))
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed = map[int]error{}
	)
	g.SetLimit(p.workers)

	for i := range articles {
		g.Go(func() error {
			res, err := p.Ingest(ctx, articles[i])
			results[i] = res
			if err != nil {
				p.logger.Warn("article failed", "article_id", articles[i].ID, "error", err)
				mu.Lock()
				failed[i] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return results, &domain.BatchError{Failed: failed}
	}
	p.logger.Debug("batch ingested", "articles", len(articles))
	return results, nil
}
