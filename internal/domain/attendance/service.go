package attendance

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

type Service interface {
	RecordPunch(ctx context.Context, actor user.Actor, req RecordPunchRequest) (*Record, error)
	EvaluateDay(ctx context.Context, actor user.Actor, employeeID string, date time.Time) (*Record, error)
	Recompute(ctx context.Context, period Period) (int, error)
	List(ctx context.Context, actor user.Actor, req ListRecordsRequest) ([]*Record, error)
	ListExceptions(ctx context.Context, actor user.Actor, req ListRecordsRequest) ([]Exception, error)
}

// Ledger is the exception ledger. ResolveException is the correction
// service contract and the only path that flips Resolved.
type Ledger interface {
	// Sync inserts the detected exceptions that are not already unresolved on
	// the record and returns the inserted ones.
	Sync(ctx context.Context, record *Record, detected []ExceptionType) ([]Exception, error)
	ListUnresolved(ctx context.Context, employeeID string, period Period) ([]Exception, error)
	HasUnresolved(ctx context.Context, employeeID string, period Period) (bool, error)
	ResolveException(ctx context.Context, actor user.Actor, recordID string, exceptionType ExceptionType) (*Record, error)
}
