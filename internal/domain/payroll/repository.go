package payroll

import (
	"context"
	"time"
)

type RunFilter struct {
	Status *Status
	From   *time.Time
	To     *time.Time
	Limit  int
}

type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, filter RunFilter) ([]*Run, error)
	// Update writes run if the stored version equals expectedVersion and bumps
	// run.Version. Returns ErrConcurrentModification on mismatch.
	Update(ctx context.Context, run *Run, expectedVersion int) error
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, runID string) ([]AuditEntry, error)
}

type PayslipRepository interface {
	CreateBatch(ctx context.Context, payslips []Payslip) error
	GetByID(ctx context.Context, id string) (*Payslip, error)
	ListByRun(ctx context.Context, runID string) ([]Payslip, error)
}

type ConfigFilter struct {
	Kind       *ConfigKind
	Status     *ConfigStatus
	EmployeeID *string
}

type ConfigRepository interface {
	Create(ctx context.Context, cfg *ConfigEntity) error
	GetByID(ctx context.Context, id string) (*ConfigEntity, error)
	List(ctx context.Context, filter ConfigFilter) ([]*ConfigEntity, error)
	// UpdateDraft rewrites a DRAFT entity at expectedVersion.
	UpdateDraft(ctx context.Context, cfg *ConfigEntity, expectedVersion int) error
	// UpdateStatus moves a DRAFT entity to status in a single conditional write
	// that also refuses approverID == created_by. Returns ErrConfigNotDraft or
	// ErrConfigSelfApproval when the condition fails.
	UpdateStatus(ctx context.Context, id string, status ConfigStatus, approverID string, reason *string, at time.Time) (*ConfigEntity, error)
	ListApproved(ctx context.Context) ([]*ConfigEntity, error)
}
