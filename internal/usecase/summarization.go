package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"NewsDesk/internal/content"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/retry"
)

// SummarizationConfig bounds both summarization paths.
type SummarizationConfig struct {
	ImmediateTimeout   time.Duration
	ImmediatePerMinute float64
	ImmediateBurst     int
	Retry              retry.Config
	BatchTimeout       time.Duration
	Lookback           time.Duration
	MaxBatchSize       int
	MaxSubmitAttempts  int
	MaxItemAttempts    int
	ConflictRetries    int
}

// DefaultSummarizationConfig mirrors the configuration defaults.
func DefaultSummarizationConfig() SummarizationConfig {
	return SummarizationConfig{
		ImmediateTimeout:   20 * time.Second,
		ImmediatePerMinute: 30,
		ImmediateBurst:     5,
		Retry:              retry.DefaultConfig(),
		BatchTimeout:       time.Minute,
		Lookback:           24 * time.Hour,
		MaxBatchSize:       100,
		MaxSubmitAttempts:  3,
		MaxItemAttempts:    3,
		ConflictRetries:    defaultConflictRetries,
	}
}

// Degrade reasons logged when the immediate path leaves a story to the batch path.
const (
	ReasonTimeout     = "timeout"
	ReasonRateLimited = "rate_limited"
	ReasonError       = "error"
	ReasonNoContent   = "no_content"
	ReasonDisabled    = "disabled"
)

// BatchReport summarizes one batch sweep.
type BatchReport struct {
	Polled      int `json:"polled"`
	Reconciled  int `json:"reconciled"`
	Archived    int `json:"archived"`
	Summarized  int `json:"summarized"`
	ItemsFailed int `json:"items_failed"`
	Resubmitted int `json:"resubmitted"`
	JobsFailed  int `json:"jobs_failed"`
	Claimed     int `json:"claimed"`
	ContentGaps int `json:"content_gaps"`
	Submitted   int `json:"submitted"`
}

// Summarization schedules stories between the immediate and batch paths.
type Summarization struct {
	stories    ports.StoryRepository
	jobs       ports.BatchJobRepository
	summarizer ports.Summarizer
	batch      ports.BatchSummarizer
	limiter    *rate.Limiter
	retrier    *retry.Retrier
	cfg        SummarizationConfig
	logger     *slog.Logger
	now        func() time.Time
}

// SummarizationDeps wires the collaborators. Either summarizer may be nil.
type SummarizationDeps struct {
	Stories    ports.StoryRepository
	Jobs       ports.BatchJobRepository
	Summarizer ports.Summarizer
	Batch      ports.BatchSummarizer
	Logger     *slog.Logger
}

// NewSummarization builds the scheduler.
func NewSummarization(deps SummarizationDeps, cfg SummarizationConfig) *Summarization {
	def := DefaultSummarizationConfig()
	if cfg.ImmediateTimeout <= 0 {
		cfg.ImmediateTimeout = def.ImmediateTimeout
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxSubmitAttempts <= 0 {
		cfg.MaxSubmitAttempts = def.MaxSubmitAttempts
	}
	if cfg.MaxItemAttempts <= 0 {
		cfg.MaxItemAttempts = def.MaxItemAttempts
	}
	if cfg.ImmediateBurst <= 0 {
		cfg.ImmediateBurst = 1
	}

	limit := rate.Inf
	if cfg.ImmediatePerMinute > 0 {
		limit = rate.Limit(cfg.ImmediatePerMinute / 60)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "summarization")

	return &Summarization{
		stories:    deps.Stories,
		jobs:       deps.Jobs,
		summarizer: deps.Summarizer,
		batch:      deps.Batch,
		limiter:    rate.NewLimiter(limit, cfg.ImmediateBurst),
		retrier:    retry.NewRetrier(cfg.Retry, immediateRetryable, logger),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func immediateRetryable(err error) bool {
	return retry.NotCanceled(err) && !errors.Is(err, domain.ErrEmptySummary)
}

// Immediate tries to summarize the story right away. It never fails the
// caller: every degradation is logged with a reason and left to the batch path.
func (s *Summarization) Immediate(ctx context.Context, story domain.Story) bool {
	if s.summarizer == nil {
		s.degrade(story.ID, ReasonDisabled, domain.ErrSummarizerDisabled)
		return false
	}

	req, err := content.Request(&story)
	if errors.Is(err, domain.ErrNoContent) {
		s.degrade(story.ID, ReasonNoContent, err)
		s.markContentGap(ctx, story)
		return false
	}
	if !s.limiter.Allow() {
		s.degrade(story.ID, ReasonRateLimited, domain.ErrRateLimited)
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ImmediateTimeout)
	defer cancel()

	start := time.Now()
	var summary string
	err = s.retrier.Do(callCtx, func(ctx context.Context) error {
		text, err := s.summarizer.Summarize(ctx, req)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return domain.ErrEmptySummary
		}
		summary = text
		return nil
	})
	metrics.SummaryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := ReasonError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		s.degrade(story.ID, reason, err)
		return false
	}

	_, _, err = updateStory(ctx, s.stories, story, s.cfg.ConflictRetries, "summarization", func(st *domain.Story) (bool, error) {
		st.Summary = summary
		st.SummaryState = domain.SummaryDone
		st.SummaryError = ""
		return true, nil
	})
	if err != nil {
		s.degrade(story.ID, ReasonError, err)
		return false
	}

	metrics.RecordSummary("immediate", "ok")
	s.logger.Info("story summarized", "story_id", story.ID, "path", "immediate")
	return true
}

func (s *Summarization) degrade(storyID, reason string, err error) {
	metrics.RecordSummary("immediate", reason)
	level := slog.LevelWarn
	if reason == ReasonDisabled || reason == ReasonNoContent {
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, "immediate summarization degraded",
		"story_id", storyID,
		"reason", reason,
		"error", err)
}

func (s *Summarization) markContentGap(ctx context.Context, story domain.Story) {
	_, changed, err := updateStory(ctx, s.stories, story, s.cfg.ConflictRetries, "summarization", func(st *domain.Story) (bool, error) {
		if st.HasContent() || st.SummaryState == domain.SummaryContentGap || st.SummaryState == domain.SummaryDone {
			return false, nil
		}
		st.SummaryState = domain.SummaryContentGap
		return true, nil
	})
	if err != nil {
		s.logger.Warn("mark content gap failed", "story_id", story.ID, "error", err)
		return
	}
	if changed {
		s.logger.Info("story marked as content gap", "story_id", story.ID)
	}
}

// RunBatch performs one batch sweep: reconcile open jobs, retry pending
// submissions, then claim and submit unsummarized stories. It never waits
// for a batch to finish.
func (s *Summarization) RunBatch(ctx context.Context) (BatchReport, error) {
	var report BatchReport
	if s.batch == nil || s.jobs == nil {
		s.logger.Debug("batch summarization disabled")
		return report, nil
	}

	open, err := s.jobs.ListOpen(ctx)
	if err != nil {
		return report, fmt.Errorf("list open batch jobs: %w", err)
	}

	for i := range open {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		job := open[i]
		switch {
		case job.Status == domain.BatchPending:
			continue
		case !job.Status.Open() || job.CompletedAt != nil:
			// Finished on an earlier sweep but left unarchived.
			s.archive(ctx, &job, &report)
			continue
		case job.Handle == "":
			job.Status = domain.BatchPending
			open[i] = job
			s.logger.Warn("batch job has no handle, resubmitting", "job_id", job.ID)
			continue
		}
		report.Polled++
		s.reconcile(ctx, &job, &report)
	}

	for i := range open {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		job := open[i]
		if job.Status != domain.BatchPending {
			continue
		}
		report.Resubmitted++
		s.submit(ctx, &job, &report)
	}

	if err := s.claim(ctx, &report); err != nil {
		return report, err
	}

	s.logger.Info("batch sweep finished",
		"polled", report.Polled,
		"reconciled", report.Reconciled,
		"archived", report.Archived,
		"summarized", report.Summarized,
		"items_failed", report.ItemsFailed,
		"jobs_failed", report.JobsFailed,
		"claimed", report.Claimed,
		"content_gaps", report.ContentGaps,
		"submitted", report.Submitted)
	return report, nil
}

func (s *Summarization) reconcile(ctx context.Context, job *domain.BatchJob, report *BatchReport) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout)
	result, err := s.batch.FetchBatch(callCtx, job.Handle)
	cancel()
	if err != nil {
		s.logger.Warn("poll batch failed", "job_id", job.ID, "handle", job.Handle, "error", err)
		return
	}

	switch result.State {
	case domain.BatchStateRunning:
		if job.Status == domain.BatchSubmitted {
			job.Status = domain.BatchInProgress
			if err := s.jobs.Update(ctx, job); err != nil {
				s.logger.Warn("update batch job failed", "job_id", job.ID, "error", err)
			}
		}
		return
	case domain.BatchStateFailed:
		reason := result.Error
		if reason == "" {
			reason = "batch failed"
		}
		result.Items = nil
		for _, id := range job.StoryIDs {
			result.Items = append(result.Items, domain.BatchItemResult{StoryID: id, Error: reason})
		}
		job.Status = domain.BatchFailed
		job.LastError = reason
	default:
		job.Status = domain.BatchCompleted
	}

	items := make(map[string]domain.BatchItemResult, len(result.Items))
	for _, item := range result.Items {
		items[item.StoryID] = item
	}

	clean := true
	for _, id := range job.StoryIDs {
		item, ok := items[id]
		if !ok {
			item = domain.BatchItemResult{StoryID: id, Error: "missing from batch results"}
		}
		summary := strings.TrimSpace(item.Summary)
		if item.Error == "" && summary == "" {
			item.Error = domain.ErrEmptySummary.Error()
		}

		var werr error
		if item.Error == "" {
			werr = s.writeSummary(ctx, id, summary)
			if werr == nil {
				report.Summarized++
			}
		} else {
			werr = s.recordFailure(ctx, id, item.Error)
			if werr == nil {
				report.ItemsFailed++
			}
		}
		if werr != nil && !errors.Is(werr, domain.ErrStoryNotFound) {
			clean = false
			s.logger.Warn("apply batch item failed", "job_id", job.ID, "story_id", id, "error", werr)
		}
	}

	if !clean {
		// Writes are idempotent, so the next sweep re-applies the same results.
		return
	}

	now := s.now().UTC()
	job.CompletedAt = &now
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Warn("update batch job failed", "job_id", job.ID, "error", err)
		return
	}
	if err := s.jobs.Archive(ctx, job.ID, now); err != nil {
		s.logger.Warn("archive batch job failed", "job_id", job.ID, "error", err)
		return
	}
	report.Reconciled++
	metrics.RecordBatchJob(string(job.Status))
	s.logger.Info("batch job reconciled", "job_id", job.ID, "status", job.Status, "stories", len(job.StoryIDs))
}

func (s *Summarization) writeSummary(ctx context.Context, storyID, summary string) error {
	_, changed, err := updateStoryByID(ctx, s.stories, storyID, s.cfg.ConflictRetries, "summarization", func(st *domain.Story) (bool, error) {
		if st.SummaryState == domain.SummaryDone && st.Summary == summary {
			return false, nil
		}
		st.Summary = summary
		st.SummaryState = domain.SummaryDone
		st.SummaryError = ""
		return true, nil
	})
	if err == nil && changed {
		metrics.RecordSummary("batch", "ok")
	}
	return err
}

// recordFailure only touches stories still waiting on a batch so re-applying
// the same results does not count an attempt twice.
func (s *Summarization) recordFailure(ctx context.Context, storyID, reason string) error {
	_, changed, err := updateStoryByID(ctx, s.stories, storyID, s.cfg.ConflictRetries, "summarization", func(st *domain.Story) (bool, error) {
		if st.SummaryState != domain.SummaryPendingBatch {
			return false, nil
		}
		st.SummaryState = domain.SummaryFailed
		st.SummaryAttempts++
		st.SummaryError = reason
		return true, nil
	})
	if err == nil && changed {
		metrics.RecordSummary("batch", "failed")
	}
	return err
}

// submit hands a pending job to the batch collaborator. Stories that lost
// their content or were summarized meanwhile are dropped from the job.
func (s *Summarization) submit(ctx context.Context, job *domain.BatchJob, report *BatchReport) {
	reqs := make([]domain.SummaryRequest, 0, len(job.StoryIDs))
	ids := make([]string, 0, len(job.StoryIDs))
	for _, id := range job.StoryIDs {
		story, err := s.stories.Get(ctx, id)
		if errors.Is(err, domain.ErrStoryNotFound) {
			continue
		}
		if err != nil {
			// Leave the job pending so no claimed story is orphaned.
			s.logger.Warn("load story for batch failed", "job_id", job.ID, "story_id", id, "error", err)
			return
		}
		if story.SummaryState != domain.SummaryPendingBatch {
			continue
		}
		req, err := content.Request(&story)
		if err != nil {
			report.ContentGaps++
			s.markContentGap(ctx, story)
			continue
		}
		reqs = append(reqs, req)
		ids = append(ids, id)
	}
	job.StoryIDs = ids

	now := s.now().UTC()
	if len(reqs) == 0 {
		job.Status = domain.BatchCompleted
		job.CompletedAt = &now
		if err := s.jobs.Update(ctx, job); err != nil {
			s.logger.Warn("update batch job failed", "job_id", job.ID, "error", err)
			return
		}
		if err := s.jobs.Archive(ctx, job.ID, now); err != nil {
			s.logger.Warn("archive batch job failed", "job_id", job.ID, "error", err)
		}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout)
	handle, err := s.batch.SubmitBatch(callCtx, reqs)
	cancel()
	job.SubmitAttempts++

	if err != nil {
		job.LastError = err.Error()
		if job.SubmitAttempts < s.cfg.MaxSubmitAttempts {
			s.logger.Warn("batch submission failed, will retry",
				"job_id", job.ID,
				"attempt", job.SubmitAttempts,
				"max_attempts", s.cfg.MaxSubmitAttempts,
				"error", err)
			if uerr := s.jobs.Update(ctx, job); uerr != nil {
				s.logger.Warn("update batch job failed", "job_id", job.ID, "error", uerr)
			}
			return
		}
		s.failJob(ctx, job, report, now)
		return
	}

	job.Handle = handle
	job.Status = domain.BatchSubmitted
	job.SubmittedAt = &now
	job.LastError = ""
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("batch submitted but job not stored", "job_id", job.ID, "handle", handle, "error", err)
		return
	}
	report.Submitted++
	metrics.BatchSize.Observe(float64(len(reqs)))
	metrics.RecordBatchJob(string(domain.BatchSubmitted))
	s.logger.Info("batch submitted", "job_id", job.ID, "handle", handle, "stories", len(reqs), "attempt", job.SubmitAttempts)
}

func (s *Summarization) failJob(ctx context.Context, job *domain.BatchJob, report *BatchReport, now time.Time) {
	job.Status = domain.BatchFailed
	job.CompletedAt = &now
	report.JobsFailed++
	metrics.RecordBatchJob(string(domain.BatchFailed))
	s.logger.Error("batch submission failed permanently",
		"job_id", job.ID,
		"attempts", job.SubmitAttempts,
		"stories", len(job.StoryIDs),
		"error", job.LastError)

	for _, id := range job.StoryIDs {
		if err := s.recordFailure(ctx, id, "batch submission failed: "+job.LastError); err != nil {
			s.logger.Warn("record story failure failed", "job_id", job.ID, "story_id", id, "error", err)
		} else {
			report.ItemsFailed++
		}
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Warn("update batch job failed", "job_id", job.ID, "error", err)
		return
	}
	if err := s.jobs.Archive(ctx, job.ID, now); err != nil {
		s.logger.Warn("archive batch job failed", "job_id", job.ID, "error", err)
	}
}

// archive retries the final step of a job whose outcome is already recorded.
func (s *Summarization) archive(ctx context.Context, job *domain.BatchJob, report *BatchReport) {
	if err := s.jobs.Archive(ctx, job.ID, s.now().UTC()); err != nil {
		s.logger.Warn("archive batch job failed", "job_id", job.ID, "error", err)
		return
	}
	report.Archived++
	s.logger.Info("batch job archived", "job_id", job.ID, "status", job.Status)
}

func (s *Summarization) claim(ctx context.Context, report *BatchReport) error {
	now := s.now().UTC()
	candidates, err := s.stories.ListUnsummarized(ctx, now.Add(-s.cfg.Lookback), s.cfg.MaxItemAttempts, s.cfg.MaxBatchSize)
	if err != nil {
		return fmt.Errorf("list unsummarized stories: %w", err)
	}

	ids := make([]string, 0, len(candidates))
	for _, story := range candidates {
		if !story.HasContent() {
			report.ContentGaps++
			s.markContentGap(ctx, story)
			continue
		}
		ids = append(ids, story.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	job := domain.BatchJob{
		ID:        uuid.NewString(),
		StoryIDs:  ids,
		Status:    domain.BatchPending,
		CreatedAt: now,
	}
	if err := s.jobs.Create(ctx, &job); err != nil {
		return fmt.Errorf("create batch job: %w", err)
	}

	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		_, changed, err := updateStoryByID(ctx, s.stories, id, s.cfg.ConflictRetries, "summarization", func(st *domain.Story) (bool, error) {
			if st.SummaryState != domain.SummaryNone && st.SummaryState != domain.SummaryFailed {
				return false, nil
			}
			st.SummaryState = domain.SummaryPendingBatch
			return true, nil
		})
		if err != nil {
			s.logger.Warn("claim story for batch failed", "job_id", job.ID, "story_id", id, "error", err)
			continue
		}
		if changed {
			claimed = append(claimed, id)
		}
	}
	report.Claimed += len(claimed)
	job.StoryIDs = claimed

	s.submit(ctx, &job, report)
	return nil
}
