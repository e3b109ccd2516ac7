// Package retry runs operations against flaky collaborators with exponential
// backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config bounds a Retrier.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// DefaultConfig is a small budget suitable for request-path calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   2,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
	}
}

// ErrorClassifier reports whether err is worth another attempt.
type ErrorClassifier func(error) bool

// Retrier retries an operation while the classifier allows it.
type Retrier struct {
	config      Config
	isRetryable ErrorClassifier
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetrier builds a Retrier. A nil classifier retries every error except
// context cancellation.
func NewRetrier(config Config, classifier ErrorClassifier, logger *slog.Logger) *Retrier {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	if classifier == nil {
		classifier = NotCanceled
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		config:      config,
		isRetryable: classifier,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// NotCanceled treats everything except context errors as transient.
func NotCanceled(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Do runs operation until it succeeds, returns a non-retryable error, the
// attempt budget is spent or ctx is done.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Info("operation succeeded after retry",
					"attempt", attempt,
					"total_duration_ms", time.Since(start).Milliseconds())
			}
			return nil
		}

		retryable := r.isRetryable(lastErr)
		if attempt == r.config.MaxAttempts || !retryable {
			r.logger.Warn("operation failed permanently",
				"attempt", attempt,
				"error", lastErr,
				"retryable", retryable)
			break
		}

		delay := r.delay(attempt)
		r.logger.Debug("retry backoff wait",
			"attempt", attempt,
			"error", lastErr,
			"retry_delay_ms", delay.Milliseconds())

		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

func (r *Retrier) delay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if r.config.MaxDelay > 0 && delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	jitter := 1.0 + (rand.Float64()-0.5)*r.config.JitterFactor
	return time.Duration(delay * jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
