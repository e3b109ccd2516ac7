package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/fingerprint"
	"NewsDesk/internal/similarity"
	"NewsDesk/internal/spam"
	"NewsDesk/internal/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStories is a versioned in-memory StoryRepository.
type memStories struct {
	mu       sync.Mutex
	stories  map[string]domain.Story
	articles map[string]string
	// conflicts makes the next N updates fail as if another writer won.
	conflicts int
	// failUpdate returns an error for updates of the given story id.
	failUpdate map[string]error
	updates    int
	// staleIndex makes FindByArticle miss, like a lagging read replica.
	staleIndex bool
	// searchDelay stretches candidate search like a database round trip.
	searchDelay time.Duration
}

func newMemStories() *memStories {
	return &memStories{
		stories:    map[string]domain.Story{},
		articles:   map[string]string{},
		failUpdate: map[string]error{},
	}
}

func (m *memStories) RecentByCategory(_ context.Context, category string, since time.Time, limit int) ([]domain.Story, error) {
	m.mu.Lock()
	var out []domain.Story
	for _, s := range m.stories {
		if s.Category == category && !s.LastUpdated.Before(since) {
			out = append(out, s.Clone())
		}
	}
	delay := m.searchDelay
	m.mu.Unlock()

	time.Sleep(delay)
	sortRecent(out)
	return head(out, limit), nil
}

func (m *memStories) FindByArticle(_ context.Context, articleID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleIndex {
		return "", false, nil
	}
	id, ok := m.articles[articleID]
	return id, ok, nil
}

func (m *memStories) Get(_ context.Context, id string) (domain.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[id]
	if !ok {
		return domain.Story{}, domain.ErrStoryNotFound
	}
	return s.Clone(), nil
}

func (m *memStories) Create(_ context.Context, story *domain.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range story.Members {
		if _, ok := m.articles[mem.ArticleID]; ok {
			return domain.ErrArticleIndexed
		}
	}
	story.Version = 1
	m.stories[story.ID] = story.Clone()
	for _, mem := range story.Members {
		m.articles[mem.ArticleID] = story.ID
	}
	return nil
}

func (m *memStories) Update(_ context.Context, story *domain.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if err := m.failUpdate[story.ID]; err != nil {
		return err
	}
	cur, ok := m.stories[story.ID]
	if !ok {
		return domain.ErrStoryNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		cur.Version++
		m.stories[story.ID] = cur
		return domain.ErrVersionConflict
	}
	if cur.Version != story.Version {
		return domain.ErrVersionConflict
	}
	for _, mem := range story.Members {
		if owner, ok := m.articles[mem.ArticleID]; ok && owner != story.ID {
			return domain.ErrArticleIndexed
		}
	}
	story.Version++
	m.stories[story.ID] = story.Clone()
	for _, mem := range story.Members {
		m.articles[mem.ArticleID] = story.ID
	}
	return nil
}

func (m *memStories) ListByStatus(_ context.Context, st domain.Status, limit int) ([]domain.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Story
	for _, s := range m.stories {
		if s.Status == st {
			out = append(out, s.Clone())
		}
	}
	sortRecent(out)
	return head(out, limit), nil
}

func (m *memStories) ListUnsummarized(_ context.Context, since time.Time, maxAttempts, limit int) ([]domain.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Story
	for _, s := range m.stories {
		if s.LastUpdated.Before(since) || s.SummaryAttempts >= maxAttempts {
			continue
		}
		if s.SummaryState == domain.SummaryNone || s.SummaryState == domain.SummaryFailed {
			out = append(out, s.Clone())
		}
	}
	sortRecent(out)
	return head(out, limit), nil
}

func (m *memStories) List(_ context.Context, f domain.StoryFilter) ([]domain.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Story
	for _, s := range m.stories {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		out = append(out, s.Clone())
	}
	sortRecent(out)
	return head(out, f.Limit), nil
}

func (m *memStories) all() []domain.Story {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Story, 0, len(m.stories))
	for _, s := range m.stories {
		out = append(out, s.Clone())
	}
	sortRecent(out)
	return out
}

func (m *memStories) put(s domain.Story) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Version == 0 {
		s.Version = 1
	}
	m.stories[s.ID] = s.Clone()
	for _, mem := range s.Members {
		m.articles[mem.ArticleID] = s.ID
	}
}

func sortRecent(out []domain.Story) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
}

func head(s []domain.Story, n int) []domain.Story {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// memJobs is an in-memory BatchJobRepository.
type memJobs struct {
	mu          sync.Mutex
	jobs        map[string]domain.BatchJob
	order       []string
	archived    map[string]time.Time
	archiveErrs int
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]domain.BatchJob{}, archived: map[string]time.Time{}}
}

func (m *memJobs) Create(_ context.Context, job *domain.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(*job)
	m.order = append(m.order, job.ID)
	return nil
}

func (m *memJobs) Update(_ context.Context, job *domain.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrBatchJobNotFound
	}
	m.jobs[job.ID] = copyJob(*job)
	return nil
}

func (m *memJobs) ListOpen(context.Context) ([]domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BatchJob
	for _, id := range m.order {
		if _, done := m.archived[id]; done {
			continue
		}
		out = append(out, copyJob(m.jobs[id]))
	}
	return out, nil
}

func (m *memJobs) Archive(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.archiveErrs > 0 {
		m.archiveErrs--
		return errors.New("archive unavailable")
	}
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrBatchJobNotFound
	}
	job.ArchivedAt = &at
	m.jobs[id] = job
	m.archived[id] = at
	return nil
}

func (m *memJobs) get(id string) domain.BatchJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyJob(m.jobs[id])
}

func copyJob(j domain.BatchJob) domain.BatchJob {
	j.StoryIDs = append([]string(nil), j.StoryIDs...)
	return j
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []domain.NotifyRequest
	fails int
}

func (n *recordingNotifier) NotifyBreaking(_ context.Context, req domain.NotifyRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails > 0 {
		n.fails--
		return errors.New("notification transport unavailable")
	}
	n.sent = append(n.sent, req)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type stubSummarizer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req domain.SummaryRequest) (string, error)
}

func (s *stubSummarizer) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, req)
	}
	return "Summary of " + req.Title, nil
}

type stubBatch struct {
	mu         sync.Mutex
	submitErrs int
	submitted  [][]domain.SummaryRequest
	results    map[string]domain.BatchResult
	fetched    []string
}

func (b *stubBatch) SubmitBatch(_ context.Context, reqs []domain.SummaryRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErrs > 0 {
		b.submitErrs--
		return "", errors.New("batch endpoint unavailable")
	}
	b.submitted = append(b.submitted, reqs)
	return "batch-" + string(rune('a'+len(b.submitted)-1)), nil
}

func (b *stubBatch) FetchBatch(_ context.Context, handle string) (domain.BatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetched = append(b.fetched, handle)
	res, ok := b.results[handle]
	if !ok {
		return domain.BatchResult{State: domain.BatchStateRunning}, nil
	}
	return res, nil
}

type harness struct {
	clock    *clock
	stories  *memStories
	jobs     *memJobs
	notifier *recordingNotifier
	resolver *Resolver
	alerts   *BreakingAlerts
	sweeper  *Sweeper
	summary  *Summarization
	pipeline *Pipeline
}

func newHarness(summarizer *stubSummarizer, batch *stubBatch) *harness {
	h := &harness{
		clock:    newClock(baseTime),
		stories:  newMemStories(),
		jobs:     newMemJobs(),
		notifier: &recordingNotifier{},
	}
	logger := testLogger()
	machine := status.NewMachine(status.DefaultBreakingWindow)

	resolver, err := NewResolver(h.stories,
		fingerprint.NewGenerator(3, 2, 6),
		similarity.NewScorer(similarity.DefaultWeights(), similarity.DefaultThreshold),
		machine, DefaultResolverConfig(), logger)
	if err != nil {
		panic(err)
	}
	resolver.now = h.clock.Now
	h.resolver = resolver

	h.alerts = NewBreakingAlerts(h.stories, h.notifier, 3, logger)
	h.sweeper = NewSweeper(h.stories, machine, h.alerts, 3, logger)
	h.sweeper.now = h.clock.Now

	deps := SummarizationDeps{Stories: h.stories, Jobs: h.jobs, Logger: logger}
	if summarizer != nil {
		deps.Summarizer = summarizer
	}
	if batch != nil {
		deps.Batch = batch
	}
	cfg := DefaultSummarizationConfig()
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = time.Millisecond
	h.summary = NewSummarization(deps, cfg)
	h.summary.now = h.clock.Now

	h.pipeline = NewPipeline(PipelineDeps{
		Filter:        spam.New(),
		Resolver:      resolver,
		Summarization: h.summary,
		Alerts:        h.alerts,
		Workers:       4,
		Logger:        logger,
	})
	return h
}

func article(id, source, title string, published time.Time) domain.Article {
	return domain.Article{
		ID:          id,
		Source:      source,
		Category:    "world",
		Title:       title,
		Description: "Report from " + source + " about " + title,
		URL:         "https://" + source + ".example/" + id,
		PublishedAt: published,
	}
}
