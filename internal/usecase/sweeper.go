package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/status"
)

const defaultSweepLimit = 1000

// SweepReport counts what one sweep did.
type SweepReport struct {
	Examined     int `json:"examined"`
	Transitioned int `json:"transitioned"`
	Notified     int `json:"notified"`
	Failed       int `json:"failed"`
}

// Sweeper drives the time-based BREAKING to VERIFIED transition for stories
// that stopped receiving new sources.
type Sweeper struct {
	repo    ports.StoryRepository
	machine *status.Machine
	alerts  *BreakingAlerts
	retries int
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweeper wires the sweeper. alerts may be nil.
func NewSweeper(repo ports.StoryRepository, machine *status.Machine, alerts *BreakingAlerts, conflictRetries int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		repo:    repo,
		machine: machine,
		alerts:  alerts,
		retries: conflictRetries,
		limit:   defaultSweepLimit,
		logger:  logger.With("component", "sweeper"),
		now:     time.Now,
	}
}

// Sweep re-evaluates every BREAKING story. A failure on one story is logged
// and counted without stopping the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	stories, err := s.repo.ListByStatus(ctx, domain.StatusBreaking, s.limit)
	if err != nil {
		return report, fmt.Errorf("list breaking stories: %w", err)
	}

	now := s.now().UTC()
	for _, story := range stories {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Examined++

		if !s.machine.Evaluate(story, now).Changed {
			if Pending(story) {
				if ok, err := s.alerts.Notify(ctx, story); err != nil {
					report.Failed++
				} else if ok {
					report.Notified++
				}
			}
			continue
		}

		var tr status.Transition
		_, changed, err := updateStory(ctx, s.repo, story, s.retries, "sweeper", func(st *domain.Story) (bool, error) {
			tr = s.machine.Apply(st, now)
			if !tr.Changed {
				return false, nil
			}
			st.LastUpdated = now
			return true, nil
		})
		if err != nil {
			report.Failed++
			s.logger.Warn("status transition failed", "story_id", story.ID, "error", err)
			continue
		}
		if !changed {
			continue
		}

		report.Transitioned++
		metrics.RecordTransition(string(tr.From), string(tr.To))
		s.logger.Info("story status transitioned",
			"story_id", story.ID,
			"from", tr.From,
			"to", tr.To,
			"elapsed", now.Sub(story.FirstSeen).Round(time.Second))
	}

	s.logger.Info("status sweep finished",
		"examined", report.Examined,
		"transitioned", report.Transitioned,
		"notified", report.Notified,
		"failed", report.Failed)
	return report, nil
}
