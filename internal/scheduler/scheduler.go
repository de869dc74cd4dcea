// Package scheduler runs the background cycle on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// defaultJobTimeout bounds one cycle so a wedged HTTP call cannot pile up
// overlapping runs forever.
const defaultJobTimeout = 60 * time.Second

// Job is one scheduled cycle of work.
type Job func(ctx context.Context)

// Config holds configuration for a Scheduler.
type Config struct {
	Logger zerolog.Logger

	// JobTimeout overrides the default per-cycle deadline.
	JobTimeout time.Duration
}

// Scheduler wraps a cron runner and exposes the start/stop lifecycle of the
// background cycle. A Scheduler is safe for concurrent use.
type Scheduler struct {
	logger     zerolog.Logger
	jobTimeout time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a stopped Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	return &Scheduler{
		logger:     cfg.Logger.With().Str("component", "scheduler").Logger(),
		jobTimeout: cfg.JobTimeout,
	}
}

// StartService begins running job every interval. Starting an already
// running scheduler replaces the previous schedule.
func (s *Scheduler) StartService(interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("invalid cycle interval %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}

	runner := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := runner.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}

	runner.Start()
	s.cron = runner
	s.logger.Info().Dur("interval", interval).Msg("background cycle started")
	return nil
}

// StopService halts the schedule. Cycles already in flight run to
// completion. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) StopService() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.logger.Info().Msg("background cycle stopped")
}

// Running reports whether a schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}
