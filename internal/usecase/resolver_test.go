package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/status"
)

func assertInvariants(t *testing.T, h *harness) {
	t.Helper()
	now := h.clock.Now()
	for _, s := range h.stories.all() {
		distinct := map[string]struct{}{}
		minPublished := s.Members[0].PublishedAt
		for _, m := range s.Members {
			distinct[m.Source] = struct{}{}
			if m.PublishedAt.Before(minPublished) {
				minPublished = m.PublishedAt
			}
		}
		assert.Equal(t, len(distinct), s.VerificationLevel, "story %s level", s.ID)
		assert.Equal(t, len(distinct), len(s.Sources), "story %s sources", s.ID)
		assert.True(t, s.FirstSeen.Equal(minPublished), "story %s first_seen", s.ID)
		assert.Equal(t, status.Derive(s.VerificationLevel, now.Sub(s.FirstSeen), status.DefaultBreakingWindow), s.Status,
			"story %s status", s.ID)
	}
}

func ingestAt(t *testing.T, h *harness, at time.Time, a domain.Article) domain.IngestResult {
	t.Helper()
	h.clock.now = at
	res, err := h.pipeline.Ingest(context.Background(), a)
	require.NoError(t, err)
	assertInvariants(t, h)
	return res
}

func TestQuakeHeadlinesMergeIntoBreakingStory(t *testing.T) {
	h := newHarness(nil, nil)

	r1 := ingestAt(t, h, baseTime.Add(time.Minute),
		article("a1", "reuters", "Earthquake hits coastal town", baseTime))
	require.Equal(t, domain.OutcomeCreated, r1.Outcome)

	r2 := ingestAt(t, h, baseTime.Add(5*time.Minute),
		article("a2", "ap", "Coastal town struck by magnitude 6 quake", baseTime.Add(4*time.Minute)))
	require.Equal(t, domain.OutcomeMerged, r2.Outcome)
	assert.Equal(t, r1.StoryID, r2.StoryID)
	assert.True(t, r2.NewSource)
	require.NotNil(t, r2.Transition)
	assert.Equal(t, domain.StatusDeveloping, r2.Transition.To)

	r3 := ingestAt(t, h, baseTime.Add(10*time.Minute),
		article("a3", "bbc", "Quake rattles coast, town hit", baseTime.Add(9*time.Minute)))
	require.Equal(t, domain.OutcomeMerged, r3.Outcome)
	assert.Equal(t, r1.StoryID, r3.StoryID)
	require.NotNil(t, r3.Transition)
	assert.Equal(t, domain.StatusBreaking, r3.Transition.To)

	stories := h.stories.all()
	require.Len(t, stories, 1)
	story := stories[0]
	assert.Equal(t, 3, story.VerificationLevel)
	assert.Equal(t, domain.StatusBreaking, story.Status)
	assert.Equal(t, []string{"reuters", "ap", "bbc"}, story.Sources)
	assert.Equal(t, "Earthquake hits coastal town", story.Title)
	assert.True(t, story.PushNotificationSent)
	require.Equal(t, 1, h.notifier.count())
	assert.Equal(t, story.ID, h.notifier.sent[0].StoryID)
}

func TestUnrelatedStoriesSharingGenericKeywordStaySeparate(t *testing.T) {
	h := newHarness(nil, nil)

	r1 := ingestAt(t, h, baseTime, article("d1", "reuters", "Tech giant announces layoffs", baseTime))
	r2 := ingestAt(t, h, baseTime.Add(time.Minute), article("d2", "ap", "Mayor announces new park plan", baseTime))

	assert.Equal(t, domain.OutcomeCreated, r1.Outcome)
	assert.Equal(t, domain.OutcomeCreated, r2.Outcome)
	assert.NotEqual(t, r1.StoryID, r2.StoryID)
	assert.Len(t, h.stories.all(), 2)
}

func TestRedeliveryIsNoOp(t *testing.T) {
	h := newHarness(nil, nil)
	a1 := article("a1", "reuters", "Earthquake hits coastal town", baseTime)
	a2 := article("a2", "ap", "Coastal town struck by magnitude 6 quake", baseTime)

	ingestAt(t, h, baseTime, a1)
	ingestAt(t, h, baseTime.Add(time.Minute), a2)
	before := h.stories.all()[0]

	for i := 0; i < 3; i++ {
		res := ingestAt(t, h, baseTime.Add(2*time.Minute), a2)
		assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
		assert.Equal(t, before.ID, res.StoryID)
	}

	// Without the cache the article index still catches it.
	h.resolver.resolved.Purge()
	res := ingestAt(t, h, baseTime.Add(3*time.Minute), a1)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)

	after := h.stories.all()[0]
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.Members, 2)
}

func TestRepeatSourceDoesNotRaiseLevel(t *testing.T) {
	h := newHarness(nil, nil)

	ingestAt(t, h, baseTime, article("a1", "reuters", "Earthquake hits coastal town", baseTime))
	res := ingestAt(t, h, baseTime.Add(time.Minute),
		article("a2", "reuters", "Earthquake hits coastal town, damage reported", baseTime.Add(time.Minute)))

	assert.Equal(t, domain.OutcomeMerged, res.Outcome)
	assert.False(t, res.NewSource)
	assert.Nil(t, res.Transition)

	story := h.stories.all()[0]
	assert.Len(t, story.Members, 2)
	assert.Equal(t, 1, story.VerificationLevel)
	assert.Equal(t, domain.StatusMonitoring, story.Status)
}

func TestEarlierMemberLowersFirstSeen(t *testing.T) {
	h := newHarness(nil, nil)

	ingestAt(t, h, baseTime, article("a1", "reuters", "Earthquake hits coastal town", baseTime))
	ingestAt(t, h, baseTime.Add(time.Minute),
		article("a2", "ap", "Coastal town struck by magnitude 6 quake", baseTime.Add(-20*time.Minute)))

	story := h.stories.all()[0]
	assert.True(t, story.FirstSeen.Equal(baseTime.Add(-20*time.Minute)))
}

func TestInvalidTimestampsAreExcluded(t *testing.T) {
	h := newHarness(nil, nil)

	zero := article("z1", "reuters", "Earthquake hits coastal town", time.Time{})
	res := ingestAt(t, h, baseTime, zero)
	assert.Equal(t, domain.OutcomeInvalid, res.Outcome)

	future := article("f1", "reuters", "Earthquake hits coastal town", baseTime.Add(2*time.Hour))
	res = ingestAt(t, h, baseTime, future)
	assert.Equal(t, domain.OutcomeInvalid, res.Outcome)

	_, err := h.resolver.Resolve(context.Background(), future)
	assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)

	missing := article("", "reuters", "Earthquake hits coastal town", baseTime)
	_, err = h.resolver.Resolve(context.Background(), missing)
	assert.ErrorIs(t, err, domain.ErrInvalidArticle)

	assert.Empty(t, h.stories.all())
}

func TestMergeRetriesOnVersionConflict(t *testing.T) {
	h := newHarness(nil, nil)
	ingestAt(t, h, baseTime, article("a1", "reuters", "Earthquake hits coastal town", baseTime))

	h.stories.conflicts = 2
	res := ingestAt(t, h, baseTime.Add(time.Minute),
		article("a2", "ap", "Coastal town struck by magnitude 6 quake", baseTime))

	assert.Equal(t, domain.OutcomeMerged, res.Outcome)
	story := h.stories.all()[0]
	assert.Equal(t, 2, story.VerificationLevel)
	assert.Equal(t, 4, story.Version)
}

func TestMergeSkippedWhenConflictsPersist(t *testing.T) {
	h := newHarness(nil, nil)
	ingestAt(t, h, baseTime, article("a1", "reuters", "Earthquake hits coastal town", baseTime))

	h.stories.conflicts = 100
	res := ingestAt(t, h, baseTime.Add(time.Minute),
		article("a2", "ap", "Coastal town struck by magnitude 6 quake", baseTime))

	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	h.stories.conflicts = 0

	// The next delivery of the same article merges normally.
	res = ingestAt(t, h, baseTime.Add(2*time.Minute),
		article("a2", "ap", "Coastal town struck by magnitude 6 quake", baseTime))
	assert.Equal(t, domain.OutcomeMerged, res.Outcome)
}

func TestCandidatesOutsideWindowAreIgnored(t *testing.T) {
	h := newHarness(nil, nil)
	ingestAt(t, h, baseTime, article("a1", "reuters", "Earthquake hits coastal town", baseTime))

	later := baseTime.Add(72 * time.Hour)
	res := ingestAt(t, h, later, article("a2", "ap", "Coastal town struck by magnitude 6 quake", later))
	assert.Equal(t, domain.OutcomeCreated, res.Outcome)
}

func TestRedeliveryNeverJoinsSecondStory(t *testing.T) {
	h := newHarness(nil, nil)
	first := ingestAt(t, h, baseTime, article("a1", "reuters", "Earthquake hits coastal town", baseTime))

	later := baseTime.Add(72 * time.Hour)
	second := ingestAt(t, h, later, article("a2", "ap", "Coastal town struck by magnitude 6 quake", later))
	require.Equal(t, domain.OutcomeCreated, second.Outcome)

	// The index lookup misses, so the re-delivery scores into the newer story.
	h.stories.staleIndex = true
	h.resolver.resolved.Purge()
	res := ingestAt(t, h, later.Add(time.Minute), article("a1", "reuters", "Earthquake hits coastal town", baseTime))
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
	assert.Empty(t, res.StoryID)

	s2, err := h.stories.Get(context.Background(), second.StoryID)
	require.NoError(t, err)
	assert.False(t, s2.HasArticle("a1"))
	assert.Equal(t, 1, s2.Version)

	h.stories.staleIndex = false
	owner, found, err := h.stories.FindByArticle(context.Background(), "a1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first.StoryID, owner)
}

func TestByHashOrdersMatchingCandidatesFirst(t *testing.T) {
	candidates := []domain.Story{
		{ID: "s1", Fingerprint: domain.Fingerprint{Hash: "aaaaaa"}},
		{ID: "s2", Fingerprint: domain.Fingerprint{Hash: "bbbbbb"}},
		{ID: "s3", Fingerprint: domain.Fingerprint{Hash: "cccccc"}},
		{ID: "s4", Fingerprint: domain.Fingerprint{Hash: "bbbbbb"}},
	}

	ids := func(stories []domain.Story) []string {
		out := make([]string, 0, len(stories))
		for _, s := range stories {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{"s2", "s4", "s1", "s3"}, ids(byHash("bbbbbb", candidates)))
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, ids(byHash("", candidates)))
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, ids(byHash("ffffff", candidates)))
}
