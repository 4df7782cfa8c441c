// Package scheduler runs the periodic overdue sweep and reminder job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loankart/pkg/metrics"
)

const jobName = "overdue_sweep"

// Ledger is the part of the ledger service the job drives.
type Ledger interface {
	SweepOverdue(ctx context.Context) (int64, error)
	SendReminders(ctx context.Context, days int) (int, error)
}

// Scheduler wraps a cron runner around the daily ledger job.
type Scheduler struct {
	ledger       Ledger
	reminderDays int
	timeout      time.Duration
	logger       *logrus.Logger
	cron         *cron.Cron
}

func New(l Ledger, reminderDays int, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ledger:       l,
		reminderDays: reminderDays,
		timeout:      5 * time.Minute,
		logger:       logger,
		cron:         cron.New(cron.WithLocation(time.UTC)),
	}
}

// RunOnce persists overdue payments and then sends reminders. A failed sweep
// does not prevent reminders, since reads derive overdue on their own.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error

	marked, err := s.ledger.SweepOverdue(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep overdue: %w", err))
	}
	sent, err := s.ledger.SendReminders(ctx, s.reminderDays)
	if err != nil {
		errs = append(errs, fmt.Errorf("send reminders: %w", err))
	}

	err = errors.Join(errs...)
	metrics.ObserveJob(jobName, err, time.Since(start))
	entry := s.logger.WithFields(logrus.Fields{
		"job":         jobName,
		"marked":      marked,
		"sent":        sent,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("scheduled job finished with errors")
	} else {
		entry.Info("scheduled job finished")
	}
	return err
}

// Start registers the job under the cron spec and starts the runner.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid job schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", spec).Info("scheduler started")
	return nil
}

// Stop halts the runner and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
