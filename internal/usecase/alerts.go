package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
)

// BreakingAlerts emits a single notify request per story once it is BREAKING.
// The sent flag is claimed with a conditional update before the emit, so
// concurrent callers cannot both send; a failed emit releases the claim and
// the sweeper tries again.
type BreakingAlerts struct {
	repo     ports.StoryRepository
	notifier ports.Notifier
	retries  int
	logger   *slog.Logger
}

// NewBreakingAlerts returns nil-safe alerts; a nil notifier disables them.
func NewBreakingAlerts(repo ports.StoryRepository, notifier ports.Notifier, conflictRetries int, logger *slog.Logger) *BreakingAlerts {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakingAlerts{
		repo:     repo,
		notifier: notifier,
		retries:  conflictRetries,
		logger:   logger.With("component", "breaking_alerts"),
	}
}

// Pending reports whether the story still owes a notification.
func Pending(s domain.Story) bool {
	return s.Status == domain.StatusBreaking && !s.PushNotificationSent
}

// Notify claims the sent flag, then emits the request. It returns true when
// this call sent the notification.
func (b *BreakingAlerts) Notify(ctx context.Context, story domain.Story) (bool, error) {
	if b == nil || b.notifier == nil || !Pending(story) {
		return false, nil
	}

	claimed, changed, err := updateStory(ctx, b.repo, story, b.retries, "alerts", func(s *domain.Story) (bool, error) {
		if !Pending(*s) {
			return false, nil
		}
		s.PushNotificationSent = true
		return true, nil
	})
	if err != nil {
		metrics.RecordNotification("unclaimed")
		b.logger.Warn("breaking notification not claimed, will retry on next sweep",
			"story_id", story.ID,
			"error", err)
		return false, fmt.Errorf("claim notification %s: %w", story.ID, err)
	}
	if !changed {
		// Another caller already sent it, or the story left BREAKING.
		return false, nil
	}

	req := domain.NotifyRequest{
		StoryID:           claimed.ID,
		Title:             claimed.Title,
		Category:          claimed.Category,
		VerificationLevel: claimed.VerificationLevel,
		Sources:           append([]string(nil), claimed.Sources...),
		FirstSeen:         claimed.FirstSeen,
	}
	if err := b.notifier.NotifyBreaking(ctx, req); err != nil {
		metrics.RecordNotification("failed")
		b.release(ctx, claimed)
		b.logger.Warn("breaking notification failed, will retry on next sweep",
			"story_id", story.ID,
			"error", err)
		return false, fmt.Errorf("notify breaking %s: %w", story.ID, err)
	}

	metrics.RecordNotification("sent")
	b.logger.Info("breaking notification sent",
		"story_id", claimed.ID,
		"verification_level", claimed.VerificationLevel)
	return true, nil
}

// release clears a claim whose emit failed.
func (b *BreakingAlerts) release(ctx context.Context, claimed domain.Story) {
	_, _, err := updateStory(context.WithoutCancel(ctx), b.repo, claimed, b.retries, "alerts", func(s *domain.Story) (bool, error) {
		if !s.PushNotificationSent {
			return false, nil
		}
		s.PushNotificationSent = false
		return true, nil
	})
	if err != nil {
		metrics.RecordNotification("unreleased")
		b.logger.Error("breaking notification claim not released, story will not be notified",
			"story_id", claimed.ID,
			"error", err)
	}
}
