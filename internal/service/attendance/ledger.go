package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

type LedgerImpl struct {
	records    attendance.RecordRepository
	exceptions attendance.ExceptionRepository
	now        func() time.Time
}

func NewLedger(records attendance.RecordRepository, exceptions attendance.ExceptionRepository) *LedgerImpl {
	return &LedgerImpl{
		records:    records,
		exceptions: exceptions,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Sync implements attendance.Ledger.
func (l *LedgerImpl) Sync(ctx context.Context, record *attendance.Record, detected []attendance.ExceptionType) ([]attendance.Exception, error) {
	open := record.UnresolvedTypes()
	var inserted []attendance.Exception
	for _, t := range detected {
		if open[t] {
			continue
		}
		ex := attendance.Exception{
			RecordID:   record.ID,
			EmployeeID: record.EmployeeID,
			Date:       record.Date,
			Type:       t,
			CreatedAt:  l.now(),
		}
		ok, err := l.exceptions.InsertIfAbsent(ctx, ex)
		if err != nil {
			return nil, fmt.Errorf("failed to insert %s exception: %w", t, err)
		}
		open[t] = true
		if ok {
			inserted = append(inserted, ex)
		}
	}
	return inserted, nil
}

// ListUnresolved implements attendance.Ledger.
func (l *LedgerImpl) ListUnresolved(ctx context.Context, employeeID string, period attendance.Period) ([]attendance.Exception, error) {
	exs, err := l.exceptions.ListUnresolved(ctx, employeeID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved exceptions: %w", err)
	}
	return exs, nil
}

// HasUnresolved implements attendance.Ledger.
func (l *LedgerImpl) HasUnresolved(ctx context.Context, employeeID string, period attendance.Period) (bool, error) {
	exs, err := l.ListUnresolved(ctx, employeeID, period)
	if err != nil {
		return false, err
	}
	return len(exs) > 0, nil
}

// ResolveException implements attendance.Ledger.
func (l *LedgerImpl) ResolveException(ctx context.Context, actor user.Actor, recordID string, exceptionType attendance.ExceptionType) (*attendance.Record, error) {
	if err := user.RequireCapability(actor, user.CapabilityAttendanceResolve); err != nil {
		return nil, err
	}
	if !exceptionType.Valid() {
		return nil, attendance.ErrExceptionNotFound.WithEntity("attendance_record", recordID).WithField("type", string(exceptionType))
	}

	record, err := l.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if err := l.exceptions.Resolve(ctx, recordID, exceptionType, actor.UserID, l.now()); err != nil {
		return nil, err
	}

	record.Exceptions, err = l.exceptions.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload exceptions: %w", err)
	}
	return record, nil
}
