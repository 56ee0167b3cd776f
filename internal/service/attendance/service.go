package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/metrics"
)

// recomputeConcurrency bounds how many employees Recompute evaluates at once.
const recomputeConcurrency = 8

type AttendanceServiceImpl struct {
	tx         database.Transactor
	records    attendance.RecordRepository
	exceptions attendance.ExceptionRepository
	ledger     attendance.Ledger
	shifts     schedule.Repository
	rules      rule.Store
	directory  employee.Directory
	evaluator  *Evaluator
	locker     lock.Locker
	notifier   notification.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewAttendanceService(
	tx database.Transactor,
	records attendance.RecordRepository,
	exceptions attendance.ExceptionRepository,
	ledger attendance.Ledger,
	shifts schedule.Repository,
	rules rule.Store,
	directory employee.Directory,
	evaluator *Evaluator,
	locker lock.Locker,
	notifier notification.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) attendance.Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceServiceImpl{
		tx:         tx,
		records:    records,
		exceptions: exceptions,
		ledger:     ledger,
		shifts:     shifts,
		rules:      rules,
		directory:  directory,
		evaluator:  evaluator,
		locker:     locker,
		notifier:   notifier,
		metrics:    m,
		logger:     logger.With("component", "attendance"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func recordLockKey(employeeID string, date time.Time) string {
	return "attendance:" + employeeID + ":" + date.Format("2006-01-02")
}

// RecordPunch implements attendance.Service.
func (s *AttendanceServiceImpl) RecordPunch(ctx context.Context, actor user.Actor, req attendance.RecordPunchRequest) (*attendance.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := user.RequireCapability(actor, user.CapabilityAttendancePunch); err != nil {
		return nil, err
	}
	if req.EmployeeID != actor.EmployeeID && !actor.Can(user.CapabilityAttendanceEvaluate) {
		return nil, attendance.ErrPunchForOtherEmployee.WithEntity("employee", req.EmployeeID)
	}

	emp, err := s.directory.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !emp.IsActive() {
		return nil, employee.ErrEmployeeInactive.WithEntity("employee", emp.ID).WithStates("active", string(emp.EmploymentStatus))
	}

	punch := req.Punch()
	date, err := s.recordDateFor(ctx, emp.ID, punch)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, recordLockKey(emp.ID, date))
	if err != nil {
		return nil, fmt.Errorf("failed to lock attendance record: %w", err)
	}
	defer release()

	record, err := s.records.GetOrCreate(ctx, emp.ID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance record: %w", err)
	}
	record.Punches = append(record.Punches, punch)

	// An invalid sequence is reported and the punch is not stored.
	return s.evaluateLocked(ctx, record, emp)
}

// recordDateFor attaches an Out punch to yesterday's record when that record
// still has an open In from the last 24 hours (overnight shifts).
func (s *AttendanceServiceImpl) recordDateFor(ctx context.Context, employeeID string, p attendance.Punch) (time.Time, error) {
	date := attendance.TruncateDay(p.Time)
	if p.Kind != attendance.PunchOut {
		return date, nil
	}
	prev, err := s.records.GetByEmployeeAndDate(ctx, employeeID, date.AddDate(0, 0, -1))
	if err != nil {
		if errors.Is(err, attendance.ErrRecordNotFound) {
			return date, nil
		}
		return time.Time{}, fmt.Errorf("failed to load previous record: %w", err)
	}
	punches := prev.SortedPunches()
	if n := len(punches); n > 0 && punches[n-1].Kind == attendance.PunchIn && p.Time.Sub(punches[n-1].Time) <= 24*time.Hour {
		today, err := s.records.GetByEmployeeAndDate(ctx, employeeID, date)
		if err == nil && len(today.Punches) > 0 {
			return date, nil
		}
		return prev.Date, nil
	}
	return date, nil
}

// EvaluateDay implements attendance.Service.
func (s *AttendanceServiceImpl) EvaluateDay(ctx context.Context, actor user.Actor, employeeID string, date time.Time) (*attendance.Record, error) {
	if err := user.RequireCapability(actor, user.CapabilityAttendanceEvaluate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(employeeID) == "" {
		return nil, attendance.ErrEmployeeIDRequired
	}
	emp, err := s.directory.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return s.evaluateDay(ctx, emp, attendance.TruncateDay(date))
}

func (s *AttendanceServiceImpl) evaluateDay(ctx context.Context, emp *employee.Employee, date time.Time) (*attendance.Record, error) {
	release, err := s.locker.Acquire(ctx, recordLockKey(emp.ID, date))
	if err != nil {
		return nil, fmt.Errorf("failed to lock attendance record: %w", err)
	}
	defer release()

	record, err := s.records.GetOrCreate(ctx, emp.ID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance record: %w", err)
	}
	return s.evaluateLocked(ctx, record, emp)
}

// evaluateLocked evaluates and persists record. Callers hold the record lock.
func (s *AttendanceServiceImpl) evaluateLocked(ctx context.Context, record *attendance.Record, emp *employee.Employee) (*attendance.Record, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveEvaluateLatency(time.Since(started)) }()

	shift, err := s.shifts.GetApprovedForDate(ctx, emp.ID, record.Date)
	if err != nil {
		if !errors.Is(err, schedule.ErrShiftNotFound) {
			return nil, fmt.Errorf("failed to load shift: %w", err)
		}
		shift = nil
	}

	rules, err := s.rules.ActiveSet(ctx, emp.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	if record.Exceptions == nil {
		record.Exceptions, err = s.exceptions.ListByRecord(ctx, record.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load exceptions: %w", err)
		}
	}

	now := s.now()
	facts, err := s.evaluator.EvaluateAt(record, shift, rules, now)
	if err != nil {
		s.metrics.IncEvaluation("error")
		return nil, err
	}

	record.Apply(facts)
	record.ShiftID = nil
	if shift != nil {
		record.ShiftID = &shift.ID
	}
	record.EvaluatedAt = &now

	var inserted []attendance.Exception
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.records.Update(ctx, record); err != nil {
			return fmt.Errorf("failed to save attendance record: %w", err)
		}
		inserted, err = s.ledger.Sync(ctx, record, facts.Exceptions)
		return err
	})
	if err != nil {
		return nil, err
	}

	record.Exceptions, err = s.exceptions.ListByRecord(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload exceptions: %w", err)
	}

	s.metrics.IncEvaluation(string(facts.Status))
	s.notifyExceptions(ctx, emp, record, inserted)
	return record, nil
}

func (s *AttendanceServiceImpl) notifyExceptions(ctx context.Context, emp *employee.Employee, record *attendance.Record, inserted []attendance.Exception) {
	if len(inserted) == 0 || s.notifier == nil {
		return
	}
	types := make([]string, 0, len(inserted))
	for _, ex := range inserted {
		types = append(types, string(ex.Type))
	}
	recipients := []string{emp.ID}
	if emp.ManagerID != nil && *emp.ManagerID != "" {
		recipients = append(recipients, *emp.ManagerID)
	}
	for _, r := range recipients {
		s.notifier.Notify(ctx, notification.NotifyRequest{
			RecipientID:     r,
			Type:            notification.TypeAttendanceException,
			Title:           "Attendance needs attention",
			Message:         fmt.Sprintf("%s on %s: %s", emp.FullName, record.Date.Format("2006-01-02"), strings.Join(types, ", ")),
			RelatedEntityID: record.ID,
			Data:            map[string]interface{}{"employee_id": emp.ID, "types": types},
		})
	}
}

// Recompute implements attendance.Service. It re-evaluates every active
// employee for every elapsed day in period and is safe to run concurrently
// with itself: each record is evaluated under its own lock and exceptions are
// deduplicated by the ledger.
func (s *AttendanceServiceImpl) Recompute(ctx context.Context, period attendance.Period) (int, error) {
	ids, err := s.directory.ListActiveIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active employees: %w", err)
	}

	today := attendance.TruncateDay(s.now())
	counts := make([]int, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recomputeConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			emp, err := s.directory.GetEmployee(gctx, id)
			if err != nil {
				return err
			}
			for _, day := range period.Days() {
				if day.After(today) {
					break
				}
				if _, err := s.evaluateDay(gctx, emp, day); err != nil {
					if apperror.CodeOf(err) == apperror.CodeValidation {
						s.logger.WarnContext(gctx, "skipping record during recompute",
							"employee_id", id, "date", day.Format("2006-01-02"), "error", err)
						continue
					}
					return fmt.Errorf("failed to evaluate %s on %s: %w", id, day.Format("2006-01-02"), err)
				}
				counts[i]++
			}
			return nil
		})
	}
	err = g.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	return total, err
}

// List implements attendance.Service.
func (s *AttendanceServiceImpl) List(ctx context.Context, actor user.Actor, req attendance.ListRecordsRequest) ([]*attendance.Record, error) {
	employeeID, err := s.listTarget(actor, &req)
	if err != nil {
		return nil, err
	}
	records, err := s.records.ListByEmployee(ctx, employeeID, req.Period())
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}
	for _, r := range records {
		r.Exceptions, err = s.exceptions.ListByRecord(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load exceptions: %w", err)
		}
	}
	return records, nil
}

// ListExceptions implements attendance.Service.
func (s *AttendanceServiceImpl) ListExceptions(ctx context.Context, actor user.Actor, req attendance.ListRecordsRequest) ([]attendance.Exception, error) {
	employeeID, err := s.listTarget(actor, &req)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListUnresolved(ctx, employeeID, req.Period())
}

func (s *AttendanceServiceImpl) listTarget(actor user.Actor, req *attendance.ListRecordsRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	employeeID := req.EmployeeID
	if employeeID == "" {
		employeeID = actor.EmployeeID
	}
	if employeeID != actor.EmployeeID {
		if err := user.RequireCapability(actor, user.CapabilityAttendanceViewAll); err != nil {
			return "", err
		}
	}
	return employeeID, nil
}
