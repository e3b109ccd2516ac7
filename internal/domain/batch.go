package domain

import "time"

// BatchJobStatus is the lifecycle state of a batch summarization submission.
type BatchJobStatus string

const (
	// BatchPending jobs are recorded but not yet accepted by the batch collaborator.
	BatchPending    BatchJobStatus = "pending"
	BatchSubmitted  BatchJobStatus = "submitted"
	BatchInProgress BatchJobStatus = "in_progress"
	BatchCompleted  BatchJobStatus = "completed"
	BatchFailed     BatchJobStatus = "failed"
)

// Open reports whether the job still needs attention from the scheduler.
func (s BatchJobStatus) Open() bool {
	return s == BatchPending || s == BatchSubmitted || s == BatchInProgress
}

// BatchJob tracks one submission to the batch summarization collaborator.
type BatchJob struct {
	ID             string
	StoryIDs       []string
	Handle         string
	Status         BatchJobStatus
	SubmitAttempts int
	LastError      string
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	CompletedAt    *time.Time
	ArchivedAt     *time.Time
}

// SummaryRequest is the content handed to a summarizer for one story.
type SummaryRequest struct {
	StoryID  string   `json:"story_id"`
	Title    string   `json:"title"`
	Snippets []string `json:"snippets"`
}

// BatchState is the collaborator-side state of a submitted batch.
type BatchState string

const (
	BatchStateRunning BatchState = "running"
	BatchStateEnded   BatchState = "ended"
	BatchStateFailed  BatchState = "failed"
)

// BatchItemResult is the outcome for one story inside a finished batch.
type BatchItemResult struct {
	StoryID string `json:"story_id"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult is returned when polling a submitted batch.
type BatchResult struct {
	State BatchState
	Items []BatchItemResult
	Error string
}
