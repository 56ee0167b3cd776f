package payroll

import (
	"context"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

// RunService is the only writer of payroll run state.
type RunService interface {
	Create(ctx context.Context, actor user.Actor, req CreateRunRequest) (*Run, error)
	Get(ctx context.Context, actor user.Actor, id string) (*Run, error)
	List(ctx context.Context, actor user.Actor, filter RunFilter) ([]*Run, error)
	Transition(ctx context.Context, actor user.Actor, id string, event Event, req TransitionRequest) (*Run, error)
	Payslips(ctx context.Context, actor user.Actor, id string) ([]Payslip, error)
	Payslip(ctx context.Context, actor user.Actor, runID, payslipID string) (*Payslip, error)
	Audit(ctx context.Context, actor user.Actor, id string) ([]AuditEntry, error)
	// FinalizeApproved finalizes every finance-approved, unfrozen run as the system actor.
	FinalizeApproved(ctx context.Context) (int, error)
}

// Aggregator turns approved configuration and resolved attendance into lines.
type Aggregator interface {
	Aggregate(ctx context.Context, employeeID string, period Period) (Line, error)
	AggregateAll(ctx context.Context, employeeIDs []string, period Period) ([]Line, error)
}

// Finalizer snapshots lines into payslips. It must be called inside the
// transaction that moves the run to PAID.
type Finalizer interface {
	Finalize(ctx context.Context, run *Run) ([]Payslip, error)
}

type ConfigService interface {
	Create(ctx context.Context, actor user.Actor, req CreateConfigRequest) (*ConfigEntity, error)
	Update(ctx context.Context, actor user.Actor, id string, req UpdateConfigRequest) (*ConfigEntity, error)
	UpdateStatus(ctx context.Context, actor user.Actor, id string, req UpdateConfigStatusRequest) (*ConfigEntity, error)
	Get(ctx context.Context, actor user.Actor, id string) (*ConfigEntity, error)
	List(ctx context.Context, actor user.Actor, filter ConfigFilter) ([]*ConfigEntity, error)
}

// AuditPublisher ships audit entries off-box. Failures are logged, never returned.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, entry AuditEntry)
}
