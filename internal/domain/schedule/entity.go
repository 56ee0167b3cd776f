package schedule

import (
	"fmt"
	"time"
)

type AssignmentStatus string

const (
	AssignmentApproved  AssignmentStatus = "APPROVED"
	AssignmentPending   AssignmentStatus = "PENDING"
	AssignmentRejected  AssignmentStatus = "REJECTED"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
	AssignmentExpired   AssignmentStatus = "EXPIRED"
)

// ShiftAssignment defines the expected work window for an employee over a date range.
// Only APPROVED assignments are used for evaluation.
type ShiftAssignment struct {
	ID                string
	EmployeeID        string
	ShiftType         string
	StartDate         time.Time
	EndDate           *time.Time
	Status            AssignmentStatus
	ClockInTime       string // "HH:MM"
	ClockOutTime      string // "HH:MM"
	IsNextDayCheckout bool
	AssignedBy        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CoversDate reports whether date falls within the assignment range.
func (s *ShiftAssignment) CoversDate(date time.Time) bool {
	d := dateOnly(date)
	if d.Before(dateOnly(s.StartDate)) {
		return false
	}
	if s.EndDate != nil && d.After(dateOnly(*s.EndDate)) {
		return false
	}
	return true
}

// Window returns the expected start and end instants on date, in date's location.
func (s *ShiftAssignment) Window(date time.Time) (time.Time, time.Time, error) {
	start, err := atClock(date, s.ClockInTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atClock(date, s.ClockOutTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if s.IsNextDayCheckout || !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func atClock(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidShiftTime, clock)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
