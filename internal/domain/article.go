package domain

import "time"

// Article is a single news item delivered by a feed. It is never mutated once stored.
type Article struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Outcome reports what the ingestion pipeline did with an article.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeMerged    Outcome = "merged"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeSkipped   Outcome = "skipped"
)

// IngestResult captures the resolution of one article.
type IngestResult struct {
	ArticleID string
	StoryID   string
	Outcome   Outcome
	Score     float64
	// NewSource is true when the article added a previously unseen source to its story.
	NewSource bool
	// Transition is set when the story status changed as part of the mutation.
	Transition *StatusChange
	Reason     string
}

// StatusChange records a status transition applied to a story.
type StatusChange struct {
	From Status
	To   Status
}
