package domain

import (
	"errors"
	"fmt"
	"sort"
)

// Input rejection
var (
	ErrRejected         = errors.New("article rejected by spam filter")
	ErrInvalidArticle   = errors.New("invalid article")
	ErrInvalidTimestamp = errors.New("invalid article timestamp")
)

// Persistence
var (
	ErrStoryNotFound    = errors.New("story not found")
	ErrBatchJobNotFound = errors.New("batch job not found")
	ErrArticleIndexed   = errors.New("article already belongs to a story")
	// ErrVersionConflict is returned by conditional updates when the stored
	// version no longer matches the version that was read.
	ErrVersionConflict          = errors.New("story version conflict")
	ErrConflictRetriesExhausted = errors.New("conflict retries exhausted")
)

// Summarization
var (
	ErrNoContent          = errors.New("story has no usable content")
	ErrSummarizerDisabled = errors.New("summarizer not configured")
	ErrRateLimited        = errors.New("immediate summarization budget exhausted")
	ErrEmptySummary       = errors.New("summarizer returned empty text")
)

// BatchError reports the articles of a delivery batch that failed; the others
// were processed. Failed is keyed by position in the batch.
type BatchError struct {
	Failed map[int]error
}

func (e *BatchError) Error() string {
	idx := make([]int, 0, len(e.Failed))
	for i := range e.Failed {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	if len(idx) == 0 {
		return "batch failed"
	}
	return fmt.Sprintf("%d articles failed, first at %d: %v", len(idx), idx[0], e.Failed[idx[0]])
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}
