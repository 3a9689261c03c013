// Package scheduler re-runs a collection job on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultJobTimeout bounds a single scheduled run.
const DefaultJobTimeout = 2 * time.Minute

// Job performs one collection pass.
type Job func(ctx context.Context) error

type Scheduler struct {
	ctx     context.Context
	job     Job
	logger  logrus.FieldLogger
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler returns a scheduler running job until ctx is done. A run
// that is still in progress when the next one is due causes that next run
// to be skipped, so runs never overlap.
func NewScheduler(ctx context.Context, job Job, logger logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		ctx:     ctx,
		job:     job,
		logger:  logger,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: DefaultJobTimeout,
	}
}

// SetTimeout changes the per-run timeout.
func (s *Scheduler) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

// Start the scheduler with a cron spec such as "*/5 * * * *" or "@every 1m".
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.collectData)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// collectData runs the job once with its own timeout
func (s *Scheduler) collectData() {
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled collection failed")
		return
	}
	s.logger.WithField("duration", time.Since(start).String()).Info("Scheduled collection completed")
}

// Stop the scheduler and wait for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
