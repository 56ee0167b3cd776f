package attendance

import (
	"context"
	"time"
)

type RecordRepository interface {
	GetByID(ctx context.Context, id string) (*Record, error)
	// GetByEmployeeAndDate returns ErrRecordNotFound when no record exists.
	GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*Record, error)
	// GetOrCreate returns the record for (employeeID, date), inserting an empty one if missing.
	GetOrCreate(ctx context.Context, employeeID string, date time.Time) (*Record, error)
	// Update writes punches and derived fields. Last write wins on derived fields.
	Update(ctx context.Context, record *Record) error
	ListByEmployee(ctx context.Context, employeeID string, period Period) ([]*Record, error)
	ListByPeriod(ctx context.Context, period Period) ([]*Record, error)
}

type ExceptionRepository interface {
	ListByRecord(ctx context.Context, recordID string) ([]Exception, error)
	// InsertIfAbsent inserts an unresolved exception unless one of the same
	// (recordID, type) is already unresolved. Returns whether a row was inserted.
	InsertIfAbsent(ctx context.Context, exception Exception) (bool, error)
	ListUnresolved(ctx context.Context, employeeID string, period Period) ([]Exception, error)
	Resolve(ctx context.Context, recordID string, exceptionType ExceptionType, resolvedBy string, resolvedAt time.Time) error
}
