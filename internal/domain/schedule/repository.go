package schedule

import (
	"context"
	"time"
)

type Repository interface {
	// GetApprovedForDate returns the approved assignment covering date, or ErrShiftNotFound.
	GetApprovedForDate(ctx context.Context, employeeID string, date time.Time) (*ShiftAssignment, error)
}
