package worker

import (
	"context"
	"fmt"
	"time"

	"savingsrate/internal/log"

	"github.com/robfig/cron/v3"
)

// Job is a scheduled task. Errors are logged; the schedule keeps running.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	logger *log.Logger
}

func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Add registers job under a standard five-field cron spec (or a descriptor
// such as "@hourly"). ctx is handed to every run.
func (s *Scheduler) Add(ctx context.Context, spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scheduled job failed", log.FieldOperation, name, log.FieldError, err.Error())
			return
		}
		s.logger.DebugContext(ctx, "Scheduled job done", log.FieldOperation, name, log.FieldDuration, time.Since(start).Milliseconds())
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.logger.Info("Job scheduled", log.FieldOperation, name, "schedule", spec)
	return nil
}

func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Next reports the next activation across all jobs.
func (s *Scheduler) Next() (time.Time, bool) {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if !e.Next.IsZero() && (next.IsZero() || e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next, !next.IsZero()
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
	}
}
