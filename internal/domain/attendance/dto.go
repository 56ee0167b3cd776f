package attendance

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

type RecordPunchRequest struct {
	EmployeeID string  `json:"employee_id"`
	Kind       string  `json:"kind"`
	Time       string  `json:"time"`
	Method     string  `json:"method"`
	Location   *string `json:"location,omitempty"`
}

func (r *RecordPunchRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs.Add("employee_id", "employee_id is required")
	}
	if !validator.IsInSlice(strings.ToUpper(r.Kind), []string{string(PunchIn), string(PunchOut)}) {
		errs.Add("kind", "must be IN or OUT")
	}
	if _, ok := validator.IsValidDateTime(r.Time); !ok {
		errs.Add("time", "must be an RFC3339 timestamp")
	}
	if r.Method != "" && !validator.IsInSlice(strings.ToUpper(r.Method), []string{
		string(PunchMethodDevice), string(PunchMethodMobile), string(PunchMethodWeb), string(PunchMethodManual),
	}) {
		errs.Add("method", "must be DEVICE, MOBILE, WEB or MANUAL")
	}

	return errs.OrNil()
}

// Punch converts a validated request.
func (r *RecordPunchRequest) Punch() Punch {
	t, _ := validator.IsValidDateTime(r.Time)
	method := PunchMethod(strings.ToUpper(r.Method))
	if method == "" {
		method = PunchMethodWeb
	}
	return Punch{
		Kind:     PunchKind(strings.ToUpper(r.Kind)),
		Time:     t,
		Method:   method,
		Location: r.Location,
	}
}

type EvaluateDayRequest struct {
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"`
}

func (r *EvaluateDayRequest) Validate() error {
	var errs validator.ValidationErrors
	if validator.IsEmpty(r.EmployeeID) {
		errs.Add("employee_id", "employee_id is required")
	}
	if _, ok := validator.IsValidDate(r.Date); !ok {
		errs.Add("date", "must be YYYY-MM-DD")
	}
	return errs.OrNil()
}

func (r *EvaluateDayRequest) ParsedDate() time.Time {
	d, _ := validator.IsValidDate(r.Date)
	return d
}

type ListRecordsRequest struct {
	EmployeeID string
	From       string
	To         string
}

func (r *ListRecordsRequest) Validate() error {
	var errs validator.ValidationErrors
	from, okFrom := validator.IsValidDate(r.From)
	if !okFrom {
		errs.Add("from", "must be YYYY-MM-DD")
	}
	to, okTo := validator.IsValidDate(r.To)
	if !okTo {
		errs.Add("to", "must be YYYY-MM-DD")
	}
	if okFrom && okTo && to.Before(from) {
		errs.Add("to", "must not be before from")
	}
	return errs.OrNil()
}

func (r *ListRecordsRequest) Period() Period {
	from, _ := validator.IsValidDate(r.From)
	to, _ := validator.IsValidDate(r.To)
	return Period{Start: from, End: to}
}

type ResolveExceptionRequest struct {
	RecordID string `json:"record_id"`
	Type     string `json:"type"`
}

func (r *ResolveExceptionRequest) Validate() error {
	var errs validator.ValidationErrors
	if validator.IsEmpty(r.RecordID) {
		errs.Add("record_id", "record_id is required")
	}
	if !ExceptionType(strings.ToUpper(r.Type)).Valid() {
		errs.Add("type", "unknown exception type")
	}
	return errs.OrNil()
}

// ========== RESPONSES ==========

type ExceptionResponse struct {
	ID         string     `json:"id"`
	RecordID   string     `json:"record_id"`
	EmployeeID string     `json:"employee_id"`
	Date       string     `json:"date"`
	Type       string     `json:"type"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy *string    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type RecordResponse struct {
	ID                    string              `json:"id"`
	EmployeeID            string              `json:"employee_id"`
	Date                  string              `json:"date"`
	Punches               []Punch             `json:"punches"`
	ShiftID               *string             `json:"shift_id,omitempty"`
	Status                string              `json:"status"`
	WorkedMinutes         int                 `json:"worked_minutes"`
	FinalCalculatedHours  *decimal.Decimal    `json:"final_calculated_hours,omitempty"`
	LatenessMinutes       *int                `json:"lateness_minutes,omitempty"`
	EarlyLeaveMinutes     *int                `json:"early_leave_minutes,omitempty"`
	ShortTimeMinutes      *int                `json:"short_time_minutes,omitempty"`
	OvertimeMinutes       *int                `json:"overtime_minutes,omitempty"`
	OvertimeNeedsApproval bool                `json:"overtime_needs_approval"`
	Exceptions            []ExceptionResponse `json:"exceptions"`
	Version               int                 `json:"version"`
}

func ToExceptionResponse(e Exception) ExceptionResponse {
	return ExceptionResponse{
		ID:         e.ID,
		RecordID:   e.RecordID,
		EmployeeID: e.EmployeeID,
		Date:       e.Date.Format(validator.DateLayout),
		Type:       string(e.Type),
		Resolved:   e.Resolved,
		ResolvedBy: e.ResolvedBy,
		ResolvedAt: e.ResolvedAt,
	}
}

func ToRecordResponse(r *Record) RecordResponse {
	exceptions := make([]ExceptionResponse, 0, len(r.Exceptions))
	for _, e := range r.Exceptions {
		exceptions = append(exceptions, ToExceptionResponse(e))
	}
	punches := r.Punches
	if punches == nil {
		punches = []Punch{}
	}
	return RecordResponse{
		ID:                    r.ID,
		EmployeeID:            r.EmployeeID,
		Date:                  r.Date.Format(validator.DateLayout),
		Punches:               punches,
		ShiftID:               r.ShiftID,
		Status:                string(r.Status),
		WorkedMinutes:         r.WorkedMinutes,
		FinalCalculatedHours:  r.FinalCalculatedHours,
		LatenessMinutes:       r.LatenessMinutes,
		EarlyLeaveMinutes:     r.EarlyLeaveMinutes,
		ShortTimeMinutes:      r.ShortTimeMinutes,
		OvertimeMinutes:       r.OvertimeMinutes,
		OvertimeNeedsApproval: r.OvertimeNeedsApproval,
		Exceptions:            exceptions,
		Version:               r.Version,
	}
}
