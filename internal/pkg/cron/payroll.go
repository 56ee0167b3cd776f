package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
)

// Recomputer re-evaluates attendance for a period.
type Recomputer interface {
	Recompute(ctx context.Context, period attendance.Period) (int, error)
}

// Retrier redelivers notifications that failed to publish.
type Retrier interface {
	RetryPending(ctx context.Context) (int, error)
}

// Finalizer pays out finance-approved runs.
type Finalizer interface {
	FinalizeApproved(ctx context.Context) (int, error)
}

type PayrollJobsConfig struct {
	RecomputeInterval time.Duration
	// RecomputeDays is how many days back, ending yesterday, get re-evaluated.
	RecomputeDays    int
	RetryInterval    time.Duration
	FinalizeInterval time.Duration
	// AutoFinalize disables the finalize job when false.
	AutoFinalize bool
}

type PayrollJobs struct {
	attendance    Recomputer
	notifications Retrier
	runs          Finalizer
	config        PayrollJobsConfig
	logger        *slog.Logger
	now           func() time.Time
}

func NewPayrollJobs(attendance Recomputer, notifications Retrier, runs Finalizer, cfg PayrollJobsConfig, logger *slog.Logger) *PayrollJobs {
	if cfg.RecomputeInterval <= 0 {
		cfg.RecomputeInterval = time.Hour
	}
	if cfg.RecomputeDays <= 0 {
		cfg.RecomputeDays = 2
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.FinalizeInterval <= 0 {
		cfg.FinalizeInterval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PayrollJobs{
		attendance:    attendance,
		notifications: notifications,
		runs:          runs,
		config:        cfg,
		logger:        logger.With("component", "payroll_jobs"),
		now:           time.Now,
	}
}

func (j *PayrollJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("recompute_attendance", j.config.RecomputeInterval, j.RecomputeAttendance)
	scheduler.AddJob("retry_notifications", j.config.RetryInterval, j.RetryNotifications)
	if j.config.AutoFinalize {
		scheduler.AddJob("finalize_approved_payroll", j.config.FinalizeInterval, j.FinalizeApproved)
	}
}

// RecomputePeriod is the window RecomputeAttendance covers: the last
// RecomputeDays full days before today.
func (j *PayrollJobs) RecomputePeriod() attendance.Period {
	today := attendance.TruncateDay(j.now())
	return attendance.Period{
		Start: today.AddDate(0, 0, -j.config.RecomputeDays),
		End:   today.AddDate(0, 0, -1),
	}
}

func (j *PayrollJobs) RecomputeAttendance(ctx context.Context) error {
	period := j.RecomputePeriod()
	n, err := j.attendance.Recompute(ctx, period)
	if err != nil {
		return fmt.Errorf("failed to recompute attendance: %w", err)
	}
	j.logger.InfoContext(ctx, "attendance recomputed",
		"start", period.Start.Format(time.DateOnly),
		"end", period.End.Format(time.DateOnly),
		"records", n,
	)
	return nil
}

func (j *PayrollJobs) RetryNotifications(ctx context.Context) error {
	n, err := j.notifications.RetryPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to retry notifications: %w", err)
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "notifications redelivered", "count", n)
	}
	return nil
}

func (j *PayrollJobs) FinalizeApproved(ctx context.Context) error {
	n, err := j.runs.FinalizeApproved(ctx)
	if err != nil {
		return fmt.Errorf("failed to finalize approved payroll runs: %w", err)
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "payroll runs finalized", "count", n)
	}
	return nil
}
