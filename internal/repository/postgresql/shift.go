package postgresql

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

type shiftAssignmentRepository struct {
	db database.Pool
}

func NewShiftAssignmentRepository(db database.Pool) schedule.Repository {
	return &shiftAssignmentRepository{db: db}
}

// GetApprovedForDate implements schedule.Repository. The most recently
// started approved assignment covering date wins.
func (s *shiftAssignmentRepository) GetApprovedForDate(ctx context.Context, employeeID string, date time.Time) (*schedule.ShiftAssignment, error) {
	q := GetQuerier(ctx, s.db)

	query := `
		SELECT id, employee_id, shift_type, start_date, end_date, status,
			   clock_in_time, clock_out_time, is_next_day_checkout, assigned_by,
			   created_at, updated_at
		FROM shift_assignments
		WHERE employee_id = $1
		  AND status = $2
		  AND start_date <= $3
		  AND (end_date IS NULL OR end_date >= $3)
		ORDER BY start_date DESC, created_at DESC
		LIMIT 1
	`

	var (
		a      schedule.ShiftAssignment
		status string
	)
	err := q.QueryRow(ctx, query, employeeID, string(schedule.AssignmentApproved), dateOnly(date)).Scan(
		&a.ID, &a.EmployeeID, &a.ShiftType, &a.StartDate, &a.EndDate, &status,
		&a.ClockInTime, &a.ClockOutTime, &a.IsNextDayCheckout, &a.AssignedBy,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, schedule.ErrShiftNotFound.WithEntity("employee", employeeID).WithField("date", date.Format(time.DateOnly)))
	}
	a.Status = schedule.AssignmentStatus(status)
	return &a, nil
}
