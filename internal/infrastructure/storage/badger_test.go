package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timshannon/badgerhold/v4"

	"NewsDesk/internal/domain"
)

func openTestStore(t *testing.T) *badgerhold.Store {
	t.Helper()
	store, err := OpenBadger(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storyAt(id, category string, updated time.Time, articleIDs ...string) domain.Story {
	s := domain.Story{
		ID:          id,
		Category:    category,
		Title:       "story " + id,
		Status:      domain.StatusMonitoring,
		LastUpdated: updated,
	}
	for _, a := range articleIDs {
		s.AddMember(domain.MemberRef{ArticleID: a, Source: "src-" + a, PublishedAt: updated, AddedAt: updated})
	}
	return s
}

func TestBadgerCreateAndIndex(t *testing.T) {
	t.Parallel()
	repo := NewBadgerStoryRepository(openTestStore(t))
	ctx := context.Background()

	story := storyAt("s1", "world", testTime, "a1", "a2")
	require.NoError(t, repo.Create(ctx, &story))
	assert.Equal(t, 1, story.Version)

	id, found, err := repo.FindByArticle(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "s1", id)

	_, found, err = repo.FindByArticle(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)

	dup := storyAt("s2", "world", testTime, "a1")
	assert.ErrorIs(t, repo.Create(ctx, &dup), domain.ErrArticleIndexed)
	_, err = repo.Get(ctx, "s2")
	assert.ErrorIs(t, err, domain.ErrStoryNotFound)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, 2, got.VerificationLevel)
	assert.Equal(t, []string{"src-a1", "src-a2"}, got.Sources)
}

func TestBadgerConditionalUpdate(t *testing.T) {
	t.Parallel()
	repo := NewBadgerStoryRepository(openTestStore(t))
	ctx := context.Background()

	story := storyAt("s1", "world", testTime, "a1")
	require.NoError(t, repo.Create(ctx, &story))

	first, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "s1")
	require.NoError(t, err)

	first.AddMember(domain.MemberRef{ArticleID: "a3", Source: "bbc", PublishedAt: testTime})
	require.NoError(t, repo.Update(ctx, &first))
	assert.Equal(t, 2, first.Version)

	second.Title = "stale writer"
	assert.ErrorIs(t, repo.Update(ctx, &second), domain.ErrVersionConflict)
	assert.Equal(t, 1, second.Version)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "story s1", got.Title)
	assert.Equal(t, 2, got.Version)

	id, found, err := repo.FindByArticle(ctx, "a3")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "s1", id)

	missing := storyAt("ghost", "world", testTime)
	assert.ErrorIs(t, repo.Update(ctx, &missing), domain.ErrStoryNotFound)
}

func TestBadgerUpdateRejectsMemberOfAnotherStory(t *testing.T) {
	t.Parallel()
	repo := NewBadgerStoryRepository(openTestStore(t))
	ctx := context.Background()

	s1 := storyAt("s1", "world", testTime, "a1")
	require.NoError(t, repo.Create(ctx, &s1))
	s2 := storyAt("s2", "world", testTime, "b1")
	require.NoError(t, repo.Create(ctx, &s2))

	s2.AddMember(domain.MemberRef{ArticleID: "a1", Source: "src-a1", PublishedAt: testTime, AddedAt: testTime})
	assert.ErrorIs(t, repo.Update(ctx, &s2), domain.ErrArticleIndexed)
	assert.Equal(t, 1, s2.Version)

	owner, found, err := repo.FindByArticle(ctx, "a1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s1", owner)

	stored, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.False(t, stored.HasArticle("a1"))

	// Members the story already owns are not a conflict.
	stored.Title = "renamed"
	require.NoError(t, repo.Update(ctx, &stored))
	assert.Equal(t, 2, stored.Version)
}

func TestBadgerQueries(t *testing.T) {
	t.Parallel()
	repo := NewBadgerStoryRepository(openTestStore(t))
	ctx := context.Background()

	old := storyAt("old", "world", testTime.Add(-72*time.Hour), "a1")
	mid := storyAt("mid", "world", testTime.Add(-time.Hour), "a2")
	recent := storyAt("recent", "world", testTime, "a3")
	sport := storyAt("sport", "sport", testTime, "a4")
	recent.Status = domain.StatusBreaking
	mid.SummaryState = domain.SummaryDone
	sport.SummaryState = domain.SummaryFailed
	sport.SummaryAttempts = 3
	for _, s := range []*domain.Story{&old, &mid, &recent, &sport} {
		require.NoError(t, repo.Create(ctx, s))
	}

	world, err := repo.RecentByCategory(ctx, "world", testTime.Add(-48*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "mid"}, ids(world))

	limited, err := repo.RecentByCategory(ctx, "world", testTime.Add(-100*24*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, ids(limited))

	breaking, err := repo.ListByStatus(ctx, domain.StatusBreaking, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, ids(breaking))

	pending, err := repo.ListUnsummarized(ctx, testTime.Add(-48*time.Hour), 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, ids(pending))

	all, err := repo.List(ctx, domain.StoryFilter{Category: "world"})
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "mid", "old"}, ids(all))
}

func TestBadgerBatchJobs(t *testing.T) {
	t.Parallel()
	repo := NewBadgerBatchJobRepository(openTestStore(t))
	ctx := context.Background()

	first := domain.BatchJob{ID: "j1", StoryIDs: []string{"s1"}, Status: domain.BatchPending, CreatedAt: testTime}
	second := domain.BatchJob{ID: "j2", StoryIDs: []string{"s2"}, Status: domain.BatchPending, CreatedAt: testTime.Add(time.Minute)}
	require.NoError(t, repo.Create(ctx, &second))
	require.NoError(t, repo.Create(ctx, &first))

	first.Status = domain.BatchSubmitted
	first.Handle = "batch-a"
	require.NoError(t, repo.Update(ctx, &first))

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "j1", open[0].ID)
	assert.Equal(t, "batch-a", open[0].Handle)
	assert.Equal(t, "j2", open[1].ID)

	require.NoError(t, repo.Archive(ctx, "j1", testTime))
	open, err = repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "j2", open[0].ID)

	ghost := domain.BatchJob{ID: "ghost"}
	assert.ErrorIs(t, repo.Update(ctx, &ghost), domain.ErrBatchJobNotFound)
	assert.ErrorIs(t, repo.Archive(ctx, "ghost", testTime), domain.ErrBatchJobNotFound)
}

func ids(stories []domain.Story) []string {
	out := make([]string, 0, len(stories))
	for _, s := range stories {
		out = append(out, s.ID)
	}
	return out
}
