package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ArticleView is a member article as exposed to readers.
type ArticleView struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// StoryView is the read model of a story.
type StoryView struct {
	ID                string        `json:"id"`
	Category          string        `json:"category"`
	Title             string        `json:"title"`
	Status            domain.Status `json:"status"`
	VerificationLevel int           `json:"verification_level"`
	Sources           []string      `json:"sources"`
	FirstSeen         time.Time     `json:"first_seen"`
	LastUpdated       time.Time     `json:"last_updated"`
	Summary           *string       `json:"summary,omitempty"`
	Articles          []ArticleView `json:"articles"`
}

// StoryService is the read API consumed by presentation layers.
type StoryService struct {
	repo ports.StoryRepository
}

// NewStoryService returns the read API.
func NewStoryService(repo ports.StoryRepository) *StoryService {
	return &StoryService{repo: repo}
}

// List returns stories matching the filter, most recently updated first.
func (s *StoryService) List(ctx context.Context, filter domain.StoryFilter) ([]StoryView, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", filter.Status)
	}
	filter.Category = strings.ToLower(strings.TrimSpace(filter.Category))
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}

	stories, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}

	views := make([]StoryView, 0, len(stories))
	for _, st := range stories {
		views = append(views, toView(st))
	}
	return views, nil
}

func toView(st domain.Story) StoryView {
	v := StoryView{
		ID:                st.ID,
		Category:          st.Category,
		Title:             st.Title,
		Status:            st.Status,
		VerificationLevel: st.VerificationLevel,
		Sources:           append([]string{}, st.Sources...),
		FirstSeen:         st.FirstSeen,
		LastUpdated:       st.LastUpdated,
		Articles:          make([]ArticleView, 0, len(st.Members)),
	}
	if st.SummaryState == domain.SummaryDone && st.Summary != "" {
		summary := st.Summary
		v.Summary = &summary
	}
	for _, m := range st.Members {
		v.Articles = append(v.Articles, ArticleView{
			ID:          m.ArticleID,
			Source:      m.Source,
			Title:       m.Title,
			URL:         m.URL,
			PublishedAt: m.PublishedAt,
		})
	}
	return v
}
