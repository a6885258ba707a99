package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/runlock"
)

// Job is a named unit of scheduled work. The lock, when set, guarantees one
// concurrent run across service replicas.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
	Lock *runlock.Lock
}

// Scheduler runs registered jobs on a fixed interval until its context is
// cancelled. It is deliberately simple: the daily compliance jobs are
// idempotent, so an extra run after a restart is harmless.
type Scheduler struct {
	jobs       []Job
	interval   time.Duration
	runTimeout time.Duration
	log        *slog.Logger
}

// New builds a scheduler ticking at the given interval. Each job run is
// bounded by runTimeout.
func New(interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{interval: interval, runTimeout: runTimeout, log: logger}
}

// Register adds a job to the schedule.
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start blocks running the schedule until ctx is cancelled. Jobs run once
// immediately so a freshly deployed instance does not wait a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, job := range s.jobs {
		s.runOne(ctx, job)
	}
}

func (s *Scheduler) runOne(ctx context.Context, job Job) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if job.Lock != nil {
		if err := job.Lock.Acquire(runCtx); err != nil {
			if errors.Is(err, runlock.ErrNotAcquired) {
				s.log.Info("job skipped, lock held elsewhere", "job", job.Name)
			} else {
				s.log.Error("job lock acquisition failed", "job", job.Name, "error", err)
			}
			return
		}
		defer func() {
			if err := job.Lock.Release(context.WithoutCancel(runCtx)); err != nil {
				s.log.Warn("job lock release failed", "job", job.Name, "error", err)
			}
		}()
	}

	start := time.Now()
	if err := job.Run(runCtx); err != nil {
		s.log.Error("job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return
	}
	s.log.Info("job completed", "job", job.Name, "duration", time.Since(start))
}
