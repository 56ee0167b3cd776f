package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

type fakeTx struct{}

func (fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRuns struct {
	mu    sync.Mutex
	byID  map[string]*payroll.Run
	audit []payroll.AuditEntry
	// beforeUpdate runs inside Update before the version check.
	beforeUpdate func()
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{byID: make(map[string]*payroll.Run)}
}

func (f *fakeRuns) Create(_ context.Context, run *payroll.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[run.ID] = run.Clone()
	return nil
}

func (f *fakeRuns) GetByID(_ context.Context, id string) (*payroll.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, payroll.ErrRunNotFound.WithEntity("payroll_run", id)
	}
	return r.Clone(), nil
}

func (f *fakeRuns) List(_ context.Context, filter payroll.RunFilter) ([]*payroll.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*payroll.Run
	for _, r := range f.byID {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeRuns) Update(_ context.Context, run *payroll.Run, expectedVersion int) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[run.ID]
	if !ok {
		return payroll.ErrRunNotFound.WithEntity("payroll_run", run.ID)
	}
	if stored.Version != expectedVersion {
		return payroll.ErrConcurrentModification.WithEntity("payroll_run", run.ID)
	}
	run.Version = expectedVersion + 1
	f.byID[run.ID] = run.Clone()
	return nil
}

func (f *fakeRuns) AppendAudit(_ context.Context, entry payroll.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audit = append(f.audit, entry)
	return nil
}

func (f *fakeRuns) ListAudit(_ context.Context, runID string) ([]payroll.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []payroll.AuditEntry
	for _, e := range f.audit {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePayslips struct {
	mu    sync.Mutex
	slips []payroll.Payslip
}

func (f *fakePayslips) CreateBatch(_ context.Context, payslips []payroll.Payslip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range payslips {
		p.Line = p.Line.Clone()
		f.slips = append(f.slips, p)
	}
	return nil
}

func (f *fakePayslips) GetByID(_ context.Context, id string) (*payroll.Payslip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.slips {
		if p.ID == id {
			c := p
			c.Line = p.Line.Clone()
			return &c, nil
		}
	}
	return nil, payroll.ErrPayslipNotFound.WithEntity("payslip", id)
}

func (f *fakePayslips) ListByRun(_ context.Context, runID string) ([]payroll.Payslip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []payroll.Payslip
	for _, p := range f.slips {
		if p.RunID == runID {
			c := p
			c.Line = p.Line.Clone()
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeConfigs struct {
	mu   sync.Mutex
	seq  int
	byID map[string]*payroll.ConfigEntity
}

func newFakeConfigs() *fakeConfigs {
	return &fakeConfigs{byID: make(map[string]*payroll.ConfigEntity)}
}

func copyConfig(c *payroll.ConfigEntity) *payroll.ConfigEntity {
	out := *c
	out.Brackets = append([]payroll.Bracket(nil), c.Brackets...)
	return &out
}

func (f *fakeConfigs) Create(_ context.Context, cfg *payroll.ConfigEntity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg.ID == "" {
		f.seq++
		cfg.ID = fmt.Sprintf("cfg-%d", f.seq)
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	f.byID[cfg.ID] = copyConfig(cfg)
	return nil
}

// seed stores an entity as-is, bypassing the approval flow.
func (f *fakeConfigs) seed(cfg *payroll.ConfigEntity) *payroll.ConfigEntity {
	if cfg.Status == "" {
		cfg.Status = payroll.ConfigApproved
	}
	_ = f.Create(context.Background(), cfg)
	return cfg
}

func (f *fakeConfigs) GetByID(_ context.Context, id string) (*payroll.ConfigEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, payroll.ErrConfigNotFound.WithEntity("payroll_config", id)
	}
	return copyConfig(c), nil
}

func (f *fakeConfigs) List(_ context.Context, filter payroll.ConfigFilter) ([]*payroll.ConfigEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*payroll.ConfigEntity
	for _, c := range f.byID {
		if filter.Kind != nil && c.Kind != *filter.Kind {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		out = append(out, copyConfig(c))
	}
	return out, nil
}

func (f *fakeConfigs) UpdateDraft(_ context.Context, cfg *payroll.ConfigEntity, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[cfg.ID]
	if !ok {
		return payroll.ErrConfigNotFound.WithEntity("payroll_config", cfg.ID)
	}
	if stored.Status != payroll.ConfigDraft {
		return payroll.ErrConfigNotEditable.WithEntity("payroll_config", cfg.ID)
	}
	if stored.Version != expectedVersion {
		return payroll.ErrConfigVersionMismatch.WithEntity("payroll_config", cfg.ID)
	}
	cfg.Version = expectedVersion + 1
	f.byID[cfg.ID] = copyConfig(cfg)
	return nil
}

func (f *fakeConfigs) UpdateStatus(_ context.Context, id string, status payroll.ConfigStatus, approverID string, reason *string, at time.Time) (*payroll.ConfigEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, payroll.ErrConfigNotFound.WithEntity("payroll_config", id)
	}
	if c.Status != payroll.ConfigDraft {
		return nil, payroll.ErrConfigNotDraft.WithEntity("payroll_config", id)
	}
	if c.CreatedBy == approverID {
		return nil, payroll.ErrConfigSelfApproval.WithEntity("payroll_config", id)
	}
	c.Status = status
	c.ApprovedBy = &approverID
	c.ApprovedAt = &at
	c.RejectionReason = reason
	c.Version++
	return copyConfig(c), nil
}

func (f *fakeConfigs) ListApproved(_ context.Context) ([]*payroll.ConfigEntity, error) {
	st := payroll.ConfigApproved
	return f.List(context.Background(), payroll.ConfigFilter{Status: &st})
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

type fakeLedger struct {
	open []attendance.Exception
}

func (f *fakeLedger) Sync(context.Context, *attendance.Record, []attendance.ExceptionType) ([]attendance.Exception, error) {
	return nil, nil
}

func (f *fakeLedger) ListUnresolved(_ context.Context, employeeID string, period attendance.Period) ([]attendance.Exception, error) {
	var out []attendance.Exception
	for _, e := range f.open {
		if e.EmployeeID == employeeID && period.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) HasUnresolved(ctx context.Context, employeeID string, period attendance.Period) (bool, error) {
	exs, _ := f.ListUnresolved(ctx, employeeID, period)
	return len(exs) > 0, nil
}

func (f *fakeLedger) ResolveException(context.Context, user.Actor, string, attendance.ExceptionType) (*attendance.Record, error) {
	return nil, attendance.ErrExceptionNotFound
}

// fakeRecords only serves ListByEmployee.
type fakeRecords struct {
	attendance.RecordRepository
	byEmployee map[string][]*attendance.Record
}

func (f fakeRecords) ListByEmployee(_ context.Context, employeeID string, period attendance.Period) ([]*attendance.Record, error) {
	var out []*attendance.Record
	for _, r := range f.byEmployee[employeeID] {
		if period.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
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

func (f *fakeNotifier) types() []notification.NotificationType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notification.NotificationType
	for _, r := range f.sent {
		out = append(out, r.Type)
	}
	return out
}

type fakeAuditPublisher struct {
	mu      sync.Mutex
	entries []payroll.AuditEntry
}

func (f *fakeAuditPublisher) PublishAudit(_ context.Context, entry payroll.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

// stubAggregator returns fixed lines per employee.
type stubAggregator struct {
	mu    sync.Mutex
	lines map[string]payroll.Line
	err   error
	calls int
}

func (s *stubAggregator) Aggregate(_ context.Context, employeeID string, _ payroll.Period) (payroll.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return payroll.Line{}, s.err
	}
	return s.lines[employeeID].Clone(), nil
}

func (s *stubAggregator) AggregateAll(ctx context.Context, employeeIDs []string, period payroll.Period) ([]payroll.Line, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	out := make([]payroll.Line, 0, len(employeeIDs))
	for _, id := range employeeIDs {
		l, err := s.Aggregate(ctx, id, period)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
