package attendance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type PunchKind string

const (
	PunchIn  PunchKind = "IN"
	PunchOut PunchKind = "OUT"
)

type PunchMethod string

const (
	PunchMethodDevice PunchMethod = "DEVICE"
	PunchMethodMobile PunchMethod = "MOBILE"
	PunchMethodWeb    PunchMethod = "WEB"
	PunchMethodManual PunchMethod = "MANUAL"
)

// Punch is a single clock-in or clock-out event. Owned by its Record.
type Punch struct {
	Kind     PunchKind   `json:"kind"`
	Time     time.Time   `json:"time"`
	Method   PunchMethod `json:"method"`
	Location *string     `json:"location,omitempty"`
}

// Status is the single derived status of a record.
type Status string

const (
	StatusPending      Status = "PENDING" // not evaluated yet
	StatusMissingPunch Status = "MISSING_PUNCH"
	StatusHoliday      Status = "HOLIDAY"
	StatusRestDay      Status = "REST_DAY"
	StatusAbsent       Status = "ABSENT"
	StatusLate         Status = "LATE"
	StatusEarlyLeave   Status = "EARLY_LEAVE"
	StatusShortTime    Status = "SHORT_TIME"
	StatusOvertime     Status = "OVERTIME"
	StatusPresent      Status = "PRESENT"
)

type ExceptionType string

const (
	ExceptionMissedPunch ExceptionType = "MISSED_PUNCH"
	ExceptionOvertime    ExceptionType = "OVERTIME"
	ExceptionShortTime   ExceptionType = "SHORT_TIME"
	ExceptionLate        ExceptionType = "LATE"
	ExceptionEarlyLeave  ExceptionType = "EARLY_LEAVE"
)

func (t ExceptionType) Valid() bool {
	switch t {
	case ExceptionMissedPunch, ExceptionOvertime, ExceptionShortTime, ExceptionLate, ExceptionEarlyLeave:
		return true
	}
	return false
}

// Exception is an anomaly on a record. Unresolved exceptions block payroll for the day.
// At most one unresolved exception per (RecordID, Type).
type Exception struct {
	ID         string
	RecordID   string
	EmployeeID string
	Date       time.Time
	Type       ExceptionType
	Resolved   bool
	ResolvedBy *string
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

// Record is the one-per-(EmployeeID, Date) attendance document.
type Record struct {
	ID         string
	EmployeeID string
	Date       time.Time
	Punches    []Punch
	ShiftID    *string

	// Corrected is set by the correction flow; it allows the evaluator to
	// collapse duplicate punches instead of failing.
	Corrected bool

	Status                Status
	WorkedMinutes         int
	FinalCalculatedHours  *decimal.Decimal
	LatenessMinutes       *int
	EarlyLeaveMinutes     *int
	ShortTimeMinutes      *int
	OvertimeMinutes       *int
	OvertimeNeedsApproval bool

	Exceptions []Exception

	Version     int
	EvaluatedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SortedPunches returns a chronologically ordered copy of the punches.
func (r *Record) SortedPunches() []Punch {
	out := make([]Punch, len(r.Punches))
	copy(out, r.Punches)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// UnresolvedTypes returns the set of unresolved exception types on the record.
func (r *Record) UnresolvedTypes() map[ExceptionType]bool {
	out := make(map[ExceptionType]bool)
	for _, e := range r.Exceptions {
		if !e.Resolved {
			out[e.Type] = true
		}
	}
	return out
}

// Apply copies derived facts onto the record.
func (r *Record) Apply(f Facts) {
	r.Status = f.Status
	r.WorkedMinutes = f.WorkedMinutes
	hours := f.FinalCalculatedHours
	r.FinalCalculatedHours = &hours
	r.LatenessMinutes = f.LatenessMinutes
	r.EarlyLeaveMinutes = f.EarlyLeaveMinutes
	r.ShortTimeMinutes = f.ShortTimeMinutes
	r.OvertimeMinutes = f.OvertimeMinutes
	r.OvertimeNeedsApproval = f.OvertimeNeedsApproval
}

// DayKind describes how the calendar treats the date.
type DayKind string

const (
	DayWorking DayKind = "WORKING"
	DayHoliday DayKind = "HOLIDAY"
	DayRestDay DayKind = "REST_DAY"
)

// Facts is the evaluator output for one record.
type Facts struct {
	Status                Status
	DayKind               DayKind
	WorkedMinutes         int
	FinalCalculatedHours  decimal.Decimal
	LatenessMinutes       *int
	EarlyLeaveMinutes     *int
	ShortTimeMinutes      *int
	OvertimeMinutes       *int
	OvertimeNeedsApproval bool
	Exceptions            []ExceptionType
}

// Period is an inclusive date range.
type Period struct {
	Start time.Time
	End   time.Time
}

// Days returns every date in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := truncateDay(p.Start); !d.After(truncateDay(p.End)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (p Period) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(truncateDay(p.Start)) && !d.After(truncateDay(p.End))
}

// TruncateDay drops the clock part, keeping the location.
func TruncateDay(t time.Time) time.Time {
	return truncateDay(t)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
