package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/metrics"
)

const sweepTimeout = time.Minute

// Expirer expires overdue records and reports how many changed.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// ExpirySweeper periodically expires overdue quotes and marketplace jobs.
// Reads also expire quotes lazily, so the sweep only keeps listings tidy.
type ExpirySweeper struct {
	cron   *cron.Cron
	quotes Expirer
	jobs   Expirer
	logger *logrus.Logger
}

func NewExpirySweeper(quotes, jobs Expirer, logger *logrus.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		quotes: quotes,
		jobs:   jobs,
		logger: logger,
	}
}

// Start schedules the sweep, e.g. "@every 15m" or a five field cron spec.
func (s *ExpirySweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", schedule).Info("expiry sweeper started")
	return nil
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *ExpirySweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *ExpirySweeper) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	s.sweep(ctx, "quote", s.quotes)
	s.sweep(ctx, "marketplace_job", s.jobs)
}

func (s *ExpirySweeper) sweep(ctx context.Context, entity string, target Expirer) {
	if target == nil {
		return
	}
	n, err := target.ExpireOverdue(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("entity", entity).Error("expiry sweep failed")
		return
	}
	metrics.RecordSweep(entity, n)
	if n > 0 {
		s.logger.WithFields(logrus.Fields{"entity": entity, "expired": n}).Info("expired overdue records")
	}
}
