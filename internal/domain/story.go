package domain

import (
	"strings"
	"time"
)

// Status is the verification status of a story.
type Status string

const (
	StatusMonitoring Status = "MONITORING"
	StatusDeveloping Status = "DEVELOPING"
	StatusBreaking   Status = "BREAKING"
	StatusVerified   Status = "VERIFIED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusMonitoring, StatusDeveloping, StatusBreaking, StatusVerified:
		return true
	}
	return false
}

// ParseStatus converts user input such as "breaking" to a Status.
func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(value)))
	return s, s.Valid()
}

// SummaryState tracks where a story is in the summarization lifecycle.
type SummaryState string

const (
	SummaryNone         SummaryState = ""
	SummaryPendingBatch SummaryState = "pending_batch"
	SummaryDone         SummaryState = "summarized"
	SummaryContentGap   SummaryState = "content_gap"
	SummaryFailed       SummaryState = "failed"
)

// Fingerprint is the coarse signature of a story's founding article.
type Fingerprint struct {
	Keywords []string `json:"keywords"`
	Entities []string `json:"entities"`
	Hash     string   `json:"hash"`
}

// MemberRef points at an article that belongs to a story. Snippet keeps the
// article description so summaries can be produced without the article store.
type MemberRef struct {
	ArticleID   string    `json:"article_id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	AddedAt     time.Time `json:"added_at"`
}

// Story aggregates articles that describe the same real-world event.
type Story struct {
	ID                   string
	Category             string
	Title                string
	Members              []MemberRef
	Sources              []string
	FirstSeen            time.Time
	LastUpdated          time.Time
	Status               Status
	VerificationLevel    int
	Fingerprint          Fingerprint
	Summary              string
	SummaryState         SummaryState
	SummaryAttempts      int
	SummaryError         string
	PushNotificationSent bool
	// Version is bumped by the repository on every successful write.
	Version int
}

// HasArticle reports whether the article is already a member.
func (s *Story) HasArticle(articleID string) bool {
	for _, m := range s.Members {
		if m.ArticleID == articleID {
			return true
		}
	}
	return false
}

// HasSource reports whether the source already reported this story.
func (s *Story) HasSource(source string) bool {
	for _, src := range s.Sources {
		if src == source {
			return true
		}
	}
	return false
}

// AddMember appends the article reference and refreshes every derived field
// except status. It returns true when the source was not seen before.
func (s *Story) AddMember(ref MemberRef) bool {
	newSource := !s.HasSource(ref.Source)
	s.Members = append(s.Members, ref)
	s.RecomputeSources()
	if s.FirstSeen.IsZero() || ref.PublishedAt.Before(s.FirstSeen) {
		s.FirstSeen = ref.PublishedAt
	}
	return newSource
}

// RecomputeSources rebuilds Sources and VerificationLevel from Members.
func (s *Story) RecomputeSources() {
	seen := make(map[string]struct{}, len(s.Members))
	sources := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		if _, ok := seen[m.Source]; ok {
			continue
		}
		seen[m.Source] = struct{}{}
		sources = append(sources, m.Source)
	}
	s.Sources = sources
	s.VerificationLevel = len(sources)
}

// HasContent reports whether any member carries a usable snippet.
func (s *Story) HasContent() bool {
	for _, m := range s.Members {
		if strings.TrimSpace(m.Snippet) != "" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing repository state.
func (s *Story) Clone() Story {
	out := *s
	out.Members = append([]MemberRef(nil), s.Members...)
	out.Sources = append([]string(nil), s.Sources...)
	out.Fingerprint.Keywords = append([]string(nil), s.Fingerprint.Keywords...)
	out.Fingerprint.Entities = append([]string(nil), s.Fingerprint.Entities...)
	return out
}

// StoryFilter narrows the read API.
type StoryFilter struct {
	Status   Status
	Category string
	Limit    int
}

// NotifyRequest is emitted once when a story first becomes BREAKING.
type NotifyRequest struct {
	StoryID           string    `json:"story_id"`
	Title             string    `json:"title"`
	Category          string    `json:"category"`
	VerificationLevel int       `json:"verification_level"`
	Sources           []string  `json:"sources"`
	FirstSeen         time.Time `json:"first_seen"`
}
