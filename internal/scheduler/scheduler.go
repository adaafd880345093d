// Package scheduler runs the scan pipeline and the agent cycle on cron
// schedules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context, now time.Time) error
	Name() string
}

// RunRecorder persists the last successful run of each job.
type RunRecorder interface {
	GetLastRun(job string) time.Time
	SetLastRun(job string, t time.Time) error
}

// ErrorNotifier is told about failed scheduled runs.
type ErrorNotifier interface {
	NotifyError(ctx context.Context, err error, where string) error
}

// Options configures a Scheduler.
type Options struct {
	// TradingDaysOnly skips runs on weekends.
	TradingDaysOnly bool
	// Recorder is optional.
	Recorder RunRecorder
	// Notifier is optional.
	Notifier ErrorNotifier
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	opts Options
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// one run per job at a time
	mu      sync.Mutex
	running map[string]bool
}

// New creates a new scheduler
func New(opts Options, log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(utils.NewYork)),
		log:     log.With().Str("component", "scheduler").Logger(),
		opts:    opts,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]bool),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with a cron schedule (seconds field first).
// Schedule examples:
//   - "0 45 9 * * MON-FRI" - 9:45 AM New York time on weekdays
//   - "0 */30 9-16 * * *"  - every 30 minutes during the session
//   - "@every 1h"          - every hour
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.execute(s.ctx, job); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("Job failed")
		}
	})

	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(ctx, job)
}

// LastRun returns the last successful run of a job, zero when unknown.
func (s *Scheduler) LastRun(name string) time.Time {
	if s.opts.Recorder == nil {
		return time.Time{}
	}
	return s.opts.Recorder.GetLastRun(name)
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	now := s.now()
	if s.opts.TradingDaysOnly && !utils.IsTradingDay(now) {
		s.log.Debug().Str("job", job.Name()).Msg("Skipping job on non-trading day")
		return nil
	}

	s.mu.Lock()
	if s.running[job.Name()] {
		s.mu.Unlock()
		s.log.Warn().Str("job", job.Name()).Msg("Previous run still in progress, skipping")
		return nil
	}
	s.running[job.Name()] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name())
		s.mu.Unlock()
	}()

	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	start := time.Now()
	if err := job.Run(ctx, now); err != nil {
		s.notifyFailure(ctx, job, err)
		return err
	}
	s.log.Info().Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("Job completed")

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.SetLastRun(job.Name(), now); err != nil {
			s.log.Warn().Err(err).Str("job", job.Name()).Msg("Failed to record last run")
		}
	}
	return nil
}

func (s *Scheduler) notifyFailure(ctx context.Context, job Job, err error) {
	if s.opts.Notifier == nil || ctx.Err() != nil {
		return
	}
	if nerr := s.opts.Notifier.NotifyError(ctx, err, job.Name()); nerr != nil {
		s.log.Warn().Err(nerr).Str("job", job.Name()).Msg("Failed to send failure notification")
	}
}
