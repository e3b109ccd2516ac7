package usecase

import (
	"context"
	"errors"
	"fmt"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
)

const defaultConflictRetries = 3

// mutation edits a private copy of a story. Returning false leaves the
// stored story untouched.
type mutation func(s *domain.Story) (bool, error)

// updateStory applies fn to story and writes it conditionally. On a version
// conflict the story is re-read and fn re-applied, at most retries times.
func updateStory(ctx context.Context, repo ports.StoryRepository, story domain.Story, retries int, mutator string, fn mutation) (domain.Story, bool, error) {
	if retries < 0 {
		retries = 0
	}
	for attempt := 0; ; attempt++ {
		next := story.Clone()
		changed, err := fn(&next)
		if err != nil {
			return story, false, err
		}
		if !changed {
			return story, false, nil
		}

		err = repo.Update(ctx, &next)
		if err == nil {
			return next, true, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return story, false, fmt.Errorf("update story %s: %w", story.ID, err)
		}
		if attempt >= retries {
			metrics.RecordConflict(mutator, "exhausted")
			return story, false, fmt.Errorf("update story %s after %d attempts: %w", story.ID, attempt+1, domain.ErrConflictRetriesExhausted)
		}
		metrics.RecordConflict(mutator, "retried")

		fresh, err := repo.Get(ctx, story.ID)
		if err != nil {
			return story, false, fmt.Errorf("reload story %s: %w", story.ID, err)
		}
		story = fresh
	}
}

// updateStoryByID loads the story first.
func updateStoryByID(ctx context.Context, repo ports.StoryRepository, id string, retries int, mutator string, fn mutation) (domain.Story, bool, error) {
	story, err := repo.Get(ctx, id)
	if err != nil {
		return domain.Story{}, false, fmt.Errorf("load story %s: %w", id, err)
	}
	return updateStory(ctx, repo, story, retries, mutator, fn)
}
