// Package schedule runs in-process periodic jobs, such as the nightly invoice
// and reminder runs, for deployments without an external cron trigger.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobFunc is a unit of scheduled work.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc
	next     time.Time
}

// Scheduler checks registered jobs on a fixed tick and runs the due ones.
// Jobs run sequentially; a slow job delays the next check rather than
// overlapping with itself.
type Scheduler struct {
	mu       sync.Mutex
	jobs     []*job
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Scheduler)

// WithCheckInterval sets how often due jobs are checked.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithJobTimeout bounds each job run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		interval: 30 * time.Second,
		timeout:  30 * time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers fn to run on sched. The first run is the first
// occurrence after registration.
func (s *Scheduler) AddJob(name string, sched Schedule, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.name == name {
			return ErrJobAlreadyRegistered
		}
	}

	next := sched.Next(s.now())
	s.jobs = append(s.jobs, &job{name: name, schedule: sched, fn: fn, next: next})
	s.logger.Info("registered scheduled job",
		slog.String("job", name),
		slog.String("schedule", sched.String()),
		slog.Time("next_run", next),
	)
	return nil
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	if n == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !now.Before(j.next) {
			due = append(due, j)
			j.next = j.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, j)
	}
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "scheduled job panicked",
				slog.String("job", j.name),
				slog.Any("panic", r),
			)
		}
	}()

	if err := j.fn(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled job failed",
			slog.String("job", j.name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "scheduled job completed",
		slog.String("job", j.name),
		slog.Duration("duration", time.Since(start)),
	)
}
