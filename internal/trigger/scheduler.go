package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger deletes execution records created before a cutoff.
// *automation.SQLiteRepository satisfies it.
type Purger interface {
	PurgeExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs the periodic schedule scan and the execution record
// retention job on a seconds-resolution cron.
type Scheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
	logger  Logger
	now     func() time.Time
}

// NewScheduler creates a scheduler in the given timezone. Jobs receive
// baseCtx; cancel it to stop in-flight work after Stop.
func NewScheduler(baseCtx context.Context, loc *time.Location, logger Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		baseCtx: baseCtx,
		logger:  logger,
		now:     time.Now,
	}
}

// Add registers a job on a six-field cron spec.
func (s *Scheduler) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() { job(s.baseCtx) })
	if err != nil {
		return 0, fmt.Errorf("adding cron job %q: %w", spec, err)
	}
	return id, nil
}

// AddScheduleScan runs d.ScanSchedules on spec.
func (s *Scheduler) AddScheduleScan(spec string, d *Dispatcher) error {
	_, err := s.Add(spec, func(ctx context.Context) {
		if err := d.ScanSchedules(ctx, s.now()); err != nil {
			s.logger.Error("schedule scan failed", "error", err)
		}
	})
	return err
}

// AddRetention purges execution records older than retention on spec.
func (s *Scheduler) AddRetention(spec string, p Purger, retention time.Duration) error {
	_, err := s.Add(spec, func(ctx context.Context) {
		s.purge(ctx, p, retention)
	})
	return err
}

func (s *Scheduler) purge(ctx context.Context, p Purger, retention time.Duration) {
	cutoff := s.now().Add(-retention)
	n, err := p.PurgeExecutionsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("execution record purge failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("purged old execution records",
			"count", n,
			"cutoff", cutoff.UTC().Format(time.RFC3339),
		)
	}
}

// Start runs the cron in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop halts the cron and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
