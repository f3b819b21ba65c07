package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/review"
)

// Scheduler wraps a gocron scheduler for the periodic review pass.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler creates a scheduler evaluating cron expressions in loc.
func NewScheduler(loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running jobs.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleCron runs task on a standard five-field cron expression. A run that
// is still going when the next one is due causes that next run to be skipped.
func (s *Scheduler) ScheduleCron(name, expr string, task func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(s.wrap(name, task)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule %s with cron %q: %w", name, expr, err)
	}
	s.logger.Info("Scheduled job", logfields.ScheduleName(name), logfields.ScheduleID(job.ID().String()),
		slog.String("cron", expr))
	return job.ID().String(), nil
}

// Remove unschedules the job with the given id.
func (s *Scheduler) Remove(id string) error {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", id, err)
	}
	return s.scheduler.RemoveJob(jobID)
}

// NextRun returns the next run time of the first scheduled job, if any.
func (s *Scheduler) NextRun() (time.Time, bool) {
	var next time.Time
	for _, job := range s.scheduler.Jobs() {
		t, err := job.NextRun()
		if err != nil || t.IsZero() {
			continue
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}

func (s *Scheduler) wrap(name string, task func()) func() {
	return func() {
		start := time.Now()
		s.logger.Info("Executing scheduled job", logfields.ScheduleName(name))
		task()
		s.logger.Debug("Scheduled job finished", logfields.ScheduleName(name),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	}
}

// scheduledPass is the task registered for the review cron.
func (d *Daemon) scheduledPass() {
	ctx, cancel := d.stopAwareContext(context.Background())
	defer cancel()
	d.runPass(ctx, review.Trigger{})
}
