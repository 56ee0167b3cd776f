package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/metrics"
)

type RunServiceImpl struct {
	tx         database.Transactor
	runs       payroll.RunRepository
	payslips   payroll.PayslipRepository
	aggregator payroll.Aggregator
	finalizer  payroll.Finalizer
	directory  employee.Directory
	locker     lock.Locker
	notifier   notification.Notifier
	audit      payroll.AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

func NewRunService(
	tx database.Transactor,
	runs payroll.RunRepository,
	payslips payroll.PayslipRepository,
	aggregator payroll.Aggregator,
	finalizer payroll.Finalizer,
	directory employee.Directory,
	locker lock.Locker,
	notifier notification.Notifier,
	audit payroll.AuditPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) payroll.RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunServiceImpl{
		tx:         tx,
		runs:       runs,
		payslips:   payslips,
		aggregator: aggregator,
		finalizer:  finalizer,
		directory:  directory,
		locker:     locker,
		notifier:   notifier,
		audit:      audit,
		metrics:    m,
		logger:     logger.With("component", "payroll_run"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

func runLockKey(id string) string {
	return "payroll_run:" + id
}

// Create implements payroll.RunService.
func (s *RunServiceImpl) Create(ctx context.Context, actor user.Actor, req payroll.CreateRunRequest) (*payroll.Run, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollCreate); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	employeeIDs := req.EmployeeIDs
	if len(employeeIDs) == 0 {
		ids, err := s.directory.ListActiveIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active employees: %w", err)
		}
		employeeIDs = ids
	}
	if len(employeeIDs) == 0 {
		return nil, payroll.ErrNoEmployees
	}

	now := s.now()
	run := &payroll.Run{
		ID:                  s.newID(),
		Period:              req.Period(),
		Status:              payroll.StatusDraft,
		EmployeeIDs:         dedupe(employeeIDs),
		PayrollSpecialistID: actor.EmployeeID,
		PaymentStatus:       payroll.PaymentPending,
		ApprovalCycle:       1,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	entry := s.auditEntry(run, actor, payroll.EventCreate, "", false, nil)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.runs.Create(ctx, run); err != nil {
			return fmt.Errorf("failed to create payroll run: %w", err)
		}
		return s.runs.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, entry)
	s.metrics.IncTransition(string(payroll.EventCreate), "applied")
	s.logger.InfoContext(ctx, "payroll run created",
		"run_id", run.ID,
		"period", run.Period.String(),
		"employees", len(run.EmployeeIDs),
		"actor", actor.EmployeeID,
	)
	return run, nil
}

// Get implements payroll.RunService.
func (s *RunServiceImpl) Get(ctx context.Context, actor user.Actor, id string) (*payroll.Run, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollView); err != nil {
		return nil, err
	}
	return s.runs.GetByID(ctx, id)
}

// List implements payroll.RunService.
func (s *RunServiceImpl) List(ctx context.Context, actor user.Actor, filter payroll.RunFilter) ([]*payroll.Run, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollView); err != nil {
		return nil, err
	}
	return s.runs.List(ctx, filter)
}

// Payslips implements payroll.RunService.
func (s *RunServiceImpl) Payslips(ctx context.Context, actor user.Actor, id string) ([]payroll.Payslip, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollView); err != nil {
		return nil, err
	}
	if _, err := s.runs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.payslips.ListByRun(ctx, id)
}

// Payslip implements payroll.RunService. A payslip is only visible through the
// run that produced it.
func (s *RunServiceImpl) Payslip(ctx context.Context, actor user.Actor, runID, payslipID string) (*payroll.Payslip, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollView); err != nil {
		return nil, err
	}
	ps, err := s.payslips.GetByID(ctx, payslipID)
	if err != nil {
		return nil, err
	}
	if ps.RunID != runID {
		return nil, payroll.ErrPayslipNotFound.WithEntity("payslip", payslipID)
	}
	return ps, nil
}

// Audit implements payroll.RunService.
func (s *RunServiceImpl) Audit(ctx context.Context, actor user.Actor, id string) ([]payroll.AuditEntry, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollView); err != nil {
		return nil, err
	}
	if _, err := s.runs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.runs.ListAudit(ctx, id)
}

// Transition implements payroll.RunService. The run lock serializes transitions
// on one run in this process; the versioned update catches everything else.
func (s *RunServiceImpl) Transition(ctx context.Context, actor user.Actor, id string, event payroll.Event, req payroll.TransitionRequest) (*payroll.Run, error) {
	run, err := s.transition(ctx, actor, id, event, req)
	if err != nil {
		s.metrics.IncTransition(string(event), string(apperror.CodeOf(err)))
		return nil, err
	}
	s.metrics.IncTransition(string(event), "applied")
	return run, nil
}

func (s *RunServiceImpl) transition(ctx context.Context, actor user.Actor, id string, event payroll.Event, req payroll.TransitionRequest) (*payroll.Run, error) {
	if event == payroll.EventCreate {
		return nil, payroll.ErrInvalidTransition.WithField("event", string(event))
	}
	if err := req.ValidateFor(event); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, runLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock payroll run: %w", err)
	}
	defer release()

	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Version != req.ExpectedVersion {
		return nil, payroll.ErrConcurrentModification.WithEntity("payroll_run", id).
			WithStates(fmt.Sprint(req.ExpectedVersion), fmt.Sprint(run.Version))
	}

	if event == payroll.EventApprove || event == payroll.EventReject {
		if err := s.requireActiveApprover(ctx, actor); err != nil {
			return nil, err
		}
	}

	cmd := Command{
		Event:  event,
		Actor:  actor,
		Reason: req.Reason,
		At:     s.now(),
	}
	if event == payroll.EventEditPeriod {
		cmd.Period = req.Period()
	}
	if (event == payroll.EventCalculate || event == payroll.EventSubmit) && run.Status == payroll.StatusDraft && !run.Frozen {
		// Aggregation is expensive; refuse callers the table would refuse anyway.
		if err := user.RequireCapability(actor, rowsFor(event)[0].capability); err != nil {
			return nil, err
		}
		lines, err := s.aggregator.AggregateAll(ctx, run.EmployeeIDs, run.Period)
		if err != nil {
			return nil, err
		}
		cmd.Lines = lines
	}

	next, err := Apply(run, cmd)
	if err != nil {
		return nil, err
	}

	entry := s.auditEntry(next, actor, event, run.Status, run.Frozen, optional(req.Reason))
	var slips []payroll.Payslip
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.runs.Update(ctx, next, run.Version); err != nil {
			return err
		}
		entry.Version = next.Version
		if err := s.runs.AppendAudit(ctx, entry); err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
		if event == payroll.EventFinalize {
			slips, err = s.finalizer.Finalize(ctx, next)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, entry)
	s.notifyTransition(ctx, actor, next, event, slips)
	s.logger.InfoContext(ctx, "payroll run transition applied",
		"run_id", next.ID,
		"event", event,
		"from", run.Status,
		"to", next.Status,
		"frozen", next.Frozen,
		"version", next.Version,
		"actor", actor.EmployeeID,
	)
	return next, nil
}

// FinalizeApproved implements payroll.RunService.
func (s *RunServiceImpl) FinalizeApproved(ctx context.Context) (int, error) {
	status := payroll.StatusFinanceApproved
	runs, err := s.runs.List(ctx, payroll.RunFilter{Status: &status})
	if err != nil {
		return 0, fmt.Errorf("failed to list approved payroll runs: %w", err)
	}

	actor := user.SystemActor()
	finalized := 0
	for _, run := range runs {
		if run.Frozen {
			continue
		}
		_, err := s.Transition(ctx, actor, run.ID, payroll.EventFinalize, payroll.TransitionRequest{ExpectedVersion: run.Version})
		if err != nil {
			if errors.Is(err, apperror.ErrConcurrentModification) || errors.Is(err, apperror.ErrInvalidTransition) {
				s.logger.WarnContext(ctx, "skipping payroll run finalization", "run_id", run.ID, "error", err)
				continue
			}
			return finalized, err
		}
		finalized++
	}
	return finalized, nil
}

func (s *RunServiceImpl) requireActiveApprover(ctx context.Context, actor user.Actor) error {
	emp, err := s.directory.GetEmployee(ctx, actor.EmployeeID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return user.ErrActorNotResolved.WithEntity("employee", actor.EmployeeID)
		}
		return fmt.Errorf("failed to look up approver: %w", err)
	}
	if !emp.IsActive() {
		return employee.ErrEmployeeInactive.WithEntity("employee", actor.EmployeeID)
	}
	return nil
}

func (s *RunServiceImpl) auditEntry(run *payroll.Run, actor user.Actor, event payroll.Event, from payroll.Status, wasFrozen bool, reason *string) payroll.AuditEntry {
	return payroll.AuditEntry{
		ID:         s.newID(),
		RunID:      run.ID,
		Event:      event,
		ActorID:    actor.EmployeeID,
		ActorRole:  string(actor.Role),
		FromStatus: from,
		ToStatus:   run.Status,
		WasFrozen:  wasFrozen,
		IsFrozen:   run.Frozen,
		Reason:     reason,
		Version:    run.Version,
		At:         run.UpdatedAt,
	}
}

func (s *RunServiceImpl) publish(ctx context.Context, entry payroll.AuditEntry) {
	if s.audit != nil {
		s.audit.PublishAudit(ctx, entry)
	}
}

func (s *RunServiceImpl) notifyTransition(ctx context.Context, actor user.Actor, run *payroll.Run, event payroll.Event, slips []payroll.Payslip) {
	if s.notifier == nil {
		return
	}
	sender := actor.EmployeeID
	send := func(recipient string, t notification.NotificationType, title, message string) {
		if recipient == "" || recipient == sender {
			return
		}
		s.notifier.Notify(ctx, notification.NotifyRequest{
			RecipientID:     recipient,
			SenderID:        &sender,
			Type:            t,
			Title:           title,
			Message:         message,
			RelatedEntityID: run.ID,
			Data: map[string]interface{}{
				"run_id": run.ID,
				"status": string(run.Status),
				"period": run.Period.String(),
			},
		})
	}
	period := run.Period.String()

	switch event {
	case payroll.EventSubmit:
		if manager := s.managerOf(ctx, run.PayrollSpecialistID); manager != "" {
			send(manager, notification.TypePayrollSubmitted, "Payroll run submitted",
				fmt.Sprintf("Payroll run for %s is waiting for your approval", period))
		}
	case payroll.EventApprove:
		send(run.PayrollSpecialistID, notification.TypePayrollApproved, "Payroll run approved",
			fmt.Sprintf("Payroll run for %s is now %s", period, run.Status))
	case payroll.EventReject:
		reason := ""
		if run.RejectionReason != nil {
			reason = *run.RejectionReason
		}
		send(run.PayrollSpecialistID, notification.TypePayrollRejected, "Payroll run rejected",
			fmt.Sprintf("Payroll run for %s was rejected: %s", period, reason))
	case payroll.EventRequestFinanceReview:
		if run.PayrollManagerID != nil {
			send(*run.PayrollManagerID, notification.TypePayrollFinanceReview, "Payroll run sent to finance",
				fmt.Sprintf("Payroll run for %s is waiting for finance approval", period))
		}
	case payroll.EventFreeze:
		send(run.PayrollSpecialistID, notification.TypePayrollFrozen, "Payroll run frozen",
			fmt.Sprintf("Payroll run for %s was frozen", period))
	case payroll.EventUnfreeze:
		send(run.PayrollSpecialistID, notification.TypePayrollUnfrozen, "Payroll run unfrozen",
			fmt.Sprintf("Payroll run for %s was unfrozen", period))
	case payroll.EventFinalize:
		send(run.PayrollSpecialistID, notification.TypePayrollPaid, "Payroll run paid",
			fmt.Sprintf("Payroll run for %s was finalized with %d payslips", period, len(slips)))
		for _, p := range slips {
			send(p.EmployeeID, notification.TypePayslipAvailable, "Payslip available",
				fmt.Sprintf("Your payslip for %s is available", period))
		}
	}
}

// managerOf returns the directory manager of employeeID, or "" when unknown.
func (s *RunServiceImpl) managerOf(ctx context.Context, employeeID string) string {
	emp, err := s.directory.GetEmployee(ctx, employeeID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve manager for notification", "employee_id", employeeID, "error", err)
		return ""
	}
	if emp.ManagerID == nil {
		return ""
	}
	return *emp.ManagerID
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
