package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/schedule"
)

type fakeTx struct{}

func (fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRecords struct {
	mu   sync.Mutex
	seq  int
	byID map[string]*attendance.Record
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byID: make(map[string]*attendance.Record)}
}

func copyRecord(r *attendance.Record) *attendance.Record {
	c := *r
	c.Punches = append([]attendance.Punch(nil), r.Punches...)
	c.Exceptions = nil
	return &c
}

func (f *fakeRecords) GetByID(_ context.Context, id string) (*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	return copyRecord(r), nil
}

func (f *fakeRecords) find(employeeID string, date time.Time) *attendance.Record {
	for _, r := range f.byID {
		if r.EmployeeID == employeeID && r.Date.Equal(date) {
			return r
		}
	}
	return nil
}

func (f *fakeRecords) GetByEmployeeAndDate(_ context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.find(employeeID, date); r != nil {
		return copyRecord(r), nil
	}
	return nil, attendance.ErrRecordNotFound
}

func (f *fakeRecords) GetOrCreate(_ context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.find(employeeID, date); r != nil {
		return copyRecord(r), nil
	}
	f.seq++
	r := &attendance.Record{
		ID:         fmt.Sprintf("rec-%d", f.seq),
		EmployeeID: employeeID,
		Date:       date,
		Status:     attendance.StatusPending,
		Version:    1,
	}
	f.byID[r.ID] = r
	return copyRecord(r), nil
}

func (f *fakeRecords) Update(_ context.Context, record *attendance.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[record.ID]; !ok {
		return attendance.ErrRecordNotFound
	}
	record.Version++
	f.byID[record.ID] = copyRecord(record)
	return nil
}

func (f *fakeRecords) ListByEmployee(_ context.Context, employeeID string, period attendance.Period) ([]*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*attendance.Record
	for _, r := range f.byID {
		if r.EmployeeID == employeeID && period.Contains(r.Date) {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

func (f *fakeRecords) ListByPeriod(_ context.Context, period attendance.Period) ([]*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*attendance.Record
	for _, r := range f.byID {
		if period.Contains(r.Date) {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type fakeExceptions struct {
	mu   sync.Mutex
	seq  int
	rows []attendance.Exception
}

func (f *fakeExceptions) ListByRecord(_ context.Context, recordID string) ([]attendance.Exception, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []attendance.Exception
	for _, e := range f.rows {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExceptions) InsertIfAbsent(_ context.Context, ex attendance.Exception) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.rows {
		if e.RecordID == ex.RecordID && e.Type == ex.Type && !e.Resolved {
			return false, nil
		}
	}
	f.seq++
	ex.ID = fmt.Sprintf("ex-%d", f.seq)
	f.rows = append(f.rows, ex)
	return true, nil
}

func (f *fakeExceptions) ListUnresolved(_ context.Context, employeeID string, period attendance.Period) ([]attendance.Exception, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []attendance.Exception
	for _, e := range f.rows {
		if e.EmployeeID == employeeID && !e.Resolved && period.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExceptions) Resolve(_ context.Context, recordID string, t attendance.ExceptionType, by string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.rows {
		if e.RecordID == recordID && e.Type == t && !e.Resolved {
			f.rows[i].Resolved = true
			f.rows[i].ResolvedBy = &by
			f.rows[i].ResolvedAt = &at
			return nil
		}
	}
	return attendance.ErrExceptionNotFound
}

func (f *fakeExceptions) all() []attendance.Exception {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attendance.Exception(nil), f.rows...)
}

type fakeShifts struct {
	shift *schedule.ShiftAssignment
}

func (f fakeShifts) GetApprovedForDate(_ context.Context, employeeID string, date time.Time) (*schedule.ShiftAssignment, error) {
	if f.shift == nil || f.shift.EmployeeID != employeeID || !f.shift.CoversDate(date) {
		return nil, schedule.ErrShiftNotFound
	}
	s := *f.shift
	return &s, nil
}

type fakeRuleStore struct {
	set rule.Set
}

func (f fakeRuleStore) ActiveSet(context.Context, string) (rule.Set, error) {
	return f.set, nil
}

type fakeDirectory struct {
	employees map[string]*employee.Employee
}

func (f fakeDirectory) GetEmployee(_ context.Context, id string) (*employee.Employee, error) {
	e, ok := f.employees[id]
	if !ok {
		return nil, employee.ErrEmployeeNotFound.WithEntity("employee", id)
	}
	c := *e
	return &c, nil
}

func (f fakeDirectory) ListActiveIDs(context.Context) ([]string, error) {
	var ids []string
	for id, e := range f.employees {
		if e.IsActive() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.NotifyRequest
}

func (f *fakeNotifier) Notify(_ context.Context, req notification.NotifyRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
}

func (f *fakeNotifier) requests() []notification.NotifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.NotifyRequest(nil), f.sent...)
}
