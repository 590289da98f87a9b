package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const maintenanceJobTimeout = 2 * time.Minute

type ExpiredSessionSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

type ShareCreditResetter interface {
	ResetAllDue(ctx context.Context) (int64, error)
}

// MaintenanceScheduler runs the expired-exam sweep and the monthly share-credit
// reset on cron schedules (UTC). Both jobs are idempotent, so running them on
// several instances only costs duplicate no-op queries.
type MaintenanceScheduler struct {
	sweeper   ExpiredSessionSweeper
	resetter  ShareCreditResetter
	sweepSpec string
	resetSpec string
	cron      *cron.Cron
	logger    *zap.Logger
}

func NewMaintenanceScheduler(sweeper ExpiredSessionSweeper, resetter ShareCreditResetter, sweepSpec, resetSpec string, logger *zap.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		sweeper:   sweeper,
		resetter:  resetter,
		sweepSpec: sweepSpec,
		resetSpec: resetSpec,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		logger: logger,
	}
}

func (s *MaintenanceScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.sweepSpec, s.runSweep); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.sweepSpec, err)
	}
	if _, err := s.cron.AddFunc(s.resetSpec, s.runShareReset); err != nil {
		return fmt.Errorf("schedule share credit reset %q: %w", s.resetSpec, err)
	}

	// Run on startup as well, so a deploy after the 1st still resets the month.
	go func() {
		s.runShareReset()
		s.runSweep()
	}()

	s.cron.Start()
	s.logger.Info("maintenance scheduler started",
		zap.String("sweep_schedule", s.sweepSpec),
		zap.String("reset_schedule", s.resetSpec))
	return nil
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *MaintenanceScheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *MaintenanceScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	n, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired exams abandoned", zap.Int("count", n))
	}
}

func (s *MaintenanceScheduler) runShareReset() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	n, err := s.resetter.ResetAllDue(ctx)
	if err != nil {
		s.logger.Error("share credit reset failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("share credits reset", zap.Int64("ledgers", n))
	}
}
