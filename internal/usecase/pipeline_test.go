package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDesk/internal/domain"
)

func TestPromotionalArticleNeverReachesClustering(t *testing.T) {
	h := newHarness(nil, nil)

	spam := article("c1", "gadgets", "42 useful travel products you can buy on Amazon", baseTime)
	res := ingestAt(t, h, baseTime, spam)

	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	assert.Equal(t, "listicle_purchase", res.Reason)
	assert.Empty(t, res.StoryID)
	assert.Empty(t, h.stories.all())

	_, found, err := h.stories.FindByArticle(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestConcurrentQuakeHeadlinesFormOneStory(t *testing.T) {
	h := newHarness(nil, nil)
	h.stories.searchDelay = 5 * time.Millisecond
	h.clock.now = baseTime.Add(10 * time.Minute)

	results, err := h.pipeline.IngestBatch(context.Background(), []domain.Article{
		article("a1", "reuters", "Earthquake hits coastal town", baseTime),
		article("a2", "ap", "Coastal town struck by magnitude 6 quake", baseTime.Add(4*time.Minute)),
		article("a3", "bbc", "Quake rattles coast, town hit", baseTime.Add(9*time.Minute)),
	})
	require.NoError(t, err)

	outcomes := map[domain.Outcome]int{}
	for _, r := range results {
		outcomes[r.Outcome]++
	}
	assert.Equal(t, map[domain.Outcome]int{domain.OutcomeCreated: 1, domain.OutcomeMerged: 2}, outcomes)

	stories := h.stories.all()
	require.Len(t, stories, 1)
	assert.Equal(t, 3, stories[0].VerificationLevel)
	assert.Equal(t, domain.StatusBreaking, stories[0].Status)
	assert.ElementsMatch(t, []string{"reuters", "ap", "bbc"}, stories[0].Sources)
	assert.True(t, stories[0].FirstSeen.Equal(baseTime))
	assert.Equal(t, 1, h.notifier.count())
	assertInvariants(t, h)
}

func TestIngestBatchKeepsInputOrder(t *testing.T) {
	h := newHarness(nil, nil)
	h.clock.now = baseTime.Add(time.Minute)

	articles := []domain.Article{
		article("b1", "reuters", "Wildfire forces evacuations near Athens", baseTime),
		article("b2", "gadgets", "The best early Prime Day laptop deals at Amazon", baseTime),
		article("b3", "ap", "Central bank holds interest rates steady", baseTime),
		article("b4", "bbc", "Wildfire forces evacuations near Athens", time.Time{}),
	}

	results, err := h.pipeline.IngestBatch(context.Background(), articles)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "b1", results[0].ArticleID)
	assert.Equal(t, domain.OutcomeCreated, results[0].Outcome)
	assert.Equal(t, domain.OutcomeRejected, results[1].Outcome)
	assert.Equal(t, domain.OutcomeCreated, results[2].Outcome)
	assert.Equal(t, domain.OutcomeInvalid, results[3].Outcome)
	assert.Len(t, h.stories.all(), 2)
	assertInvariants(t, h)
}

type failingStories struct {
	*memStories
}

func (f failingStories) RecentByCategory(context.Context, string, time.Time, int) ([]domain.Story, error) {
	return nil, errors.New("connection refused")
}

func TestTransientPersistenceFailureIsReturned(t *testing.T) {
	h := newHarness(nil, nil)
	h.resolver.repo = failingStories{h.stories}

	_, err := h.pipeline.Ingest(context.Background(), article("a1", "reuters", "Earthquake hits coastal town", baseTime))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

// brokenCategory fails candidate search for one category only.
type brokenCategory struct {
	*memStories
	category string
}

func (b brokenCategory) RecentByCategory(ctx context.Context, category string, since time.Time, limit int) ([]domain.Story, error) {
	if category == b.category {
		return nil, errors.New("connection reset")
	}
	return b.memStories.RecentByCategory(ctx, category, since, limit)
}

func TestIngestBatchIsolatesFailingArticle(t *testing.T) {
	h := newHarness(nil, nil)
	h.resolver.repo = brokenCategory{memStories: h.stories, category: "sports"}
	h.clock.now = baseTime.Add(time.Minute)

	broken := article("x1", "reuters", "Cup final postponed after storm", baseTime)
	broken.Category = "sports"
	articles := []domain.Article{
		article("b1", "reuters", "Wildfire forces evacuations near Athens", baseTime),
		broken,
		article("b3", "ap", "Central bank holds interest rates steady", baseTime),
	}

	results, err := h.pipeline.IngestBatch(context.Background(), articles)
	var batchErr *domain.BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failed, 1)
	assert.Contains(t, batchErr.Failed[1].Error(), "connection reset")

	assert.Equal(t, domain.OutcomeCreated, results[0].Outcome)
	assert.Equal(t, domain.OutcomeCreated, results[2].Outcome)
	assert.Len(t, h.stories.all(), 2)
}

type sliceSource struct {
	batches [][]domain.Article
	acked   int
}

func (s *sliceSource) Consume(ctx context.Context, handle func(context.Context, []domain.Article) error) error {
	for _, b := range s.batches {
		if err := handle(ctx, b); err != nil {
			return err
		}
		s.acked++
	}
	return nil
}

func TestRunConsumesSource(t *testing.T) {
	h := newHarness(nil, nil)
	h.clock.now = baseTime.Add(10 * time.Minute)
	src := &sliceSource{batches: [][]domain.Article{
		{article("a1", "reuters", "Earthquake hits coastal town", baseTime)},
		{
			article("a2", "ap", "Coastal town struck by magnitude 6 quake", baseTime.Add(4*time.Minute)),
			article("a1", "reuters", "Earthquake hits coastal town", baseTime),
		},
	}}
	h.pipeline.source = src

	require.NoError(t, h.pipeline.Run(context.Background()))
	assert.Equal(t, 2, src.acked)

	stories := h.stories.all()
	require.Len(t, stories, 1)
	assert.Equal(t, 2, stories[0].VerificationLevel)
}

func TestStoryServiceList(t *testing.T) {
	h := newHarness(nil, nil)
	ctx := context.Background()

	done := storyWithContent("s1", baseTime, "text")
	done.Summary = "A summary"
	done.SummaryState = domain.SummaryDone
	h.stories.put(done)
	h.stories.put(breakingStory("s2", baseTime.Add(time.Minute), true))

	svc := NewStoryService(h.stories)
	views, err := svc.List(ctx, domain.StoryFilter{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "s2", views[0].ID)
	assert.Nil(t, views[0].Summary)
	assert.Equal(t, []string{"reuters", "ap", "bbc"}, views[0].Sources)
	require.NotNil(t, views[1].Summary)
	assert.Equal(t, "A summary", *views[1].Summary)

	views, err = svc.List(ctx, domain.StoryFilter{Status: domain.StatusBreaking})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 3, views[0].VerificationLevel)
	assert.Len(t, views[0].Articles, 3)

	_, err = svc.List(ctx, domain.StoryFilter{Status: "SOMETIMES"})
	assert.Error(t, err)
}
