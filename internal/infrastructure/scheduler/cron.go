package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsDesk/internal/ports"
	"NewsDesk/pkg/logger"
)

// CronScheduler runs named jobs on robfig/cron specs. A job that is still
// running when its next tick fires is skipped.
type CronScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	started bool
	logger  *slog.Logger
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler that accepts standard five-field specs
// and descriptors such as "@every 2m".
func NewCronScheduler(l *slog.Logger) *CronScheduler {
	if l == nil {
		l = slog.Default()
	}
	cl := logger.NewCron(l)
	return &CronScheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		entries: map[string]cron.EntryID{},
		logger:  l.With("component", "cron_scheduler"),
	}
}

// Register adds a job. Names are unique.
func (c *CronScheduler) Register(name, spec string, job func(time.Time)) error {
	if job == nil {
		return fmt.Errorf("register %s: nil job", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("register %s: already registered", name)
	}

	id, err := c.cron.AddFunc(spec, func() {
		start := time.Now()
		job(start)
		c.logger.Debug("scheduled job finished", "job", name, "duration_ms", time.Since(start).Milliseconds())
	})
	if err != nil {
		return fmt.Errorf("register %s with spec %q: %w", name, spec, err)
	}
	c.entries[name] = id
	c.logger.Info("scheduled job registered", "job", name, "spec", spec)
	return nil
}

// Start begins dispatching jobs and stops when ctx is done.
func (c *CronScheduler) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.cron.Start()
	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts dispatching and waits for running jobs or ctx, whichever is first.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	done := c.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next run time of a registered job.
func (c *CronScheduler) Next(name string) (time.Time, bool) {
	c.mu.Lock()
	id, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return c.cron.Entry(id).Next, true
}
