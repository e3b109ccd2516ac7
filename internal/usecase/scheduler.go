package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsDesk/internal/ports"
)

// Scheduler wires the cron driver with the periodic use cases.
type Scheduler struct {
	driver        ports.Scheduler
	sweeper       *Sweeper
	summarization *Summarization
	sweepSpec     string
	batchSpec     string
	logger        *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, sweeper *Sweeper, summarization *Summarization, sweepSpec, batchSpec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		driver:        driver,
		sweeper:       sweeper,
		summarization: summarization,
		sweepSpec:     sweepSpec,
		batchSpec:     batchSpec,
		logger:        logger.With("component", "scheduler"),
	}
}

// Start registers the sweeps with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	if s.sweeper != nil {
		err := s.driver.Register("status-sweep", s.sweepSpec, func(time.Time) {
			if _, err := s.sweeper.Sweep(ctx); err != nil {
				s.logger.Error("status sweep failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("register status sweep: %w", err)
		}
	}

	if s.summarization != nil {
		err := s.driver.Register("batch-summarization", s.batchSpec, func(time.Time) {
			if _, err := s.summarization.RunBatch(ctx); err != nil {
				s.logger.Error("batch summarization sweep failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("register batch summarization: %w", err)
		}
	}

	return s.driver.Start(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
