package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payroll run:
//
//	DRAFT -> PENDING_MANAGER_APPROVAL -> MANAGER_APPROVED -> [PENDING_FINANCE_APPROVAL] -> FINANCE_APPROVED -> PAID
//	PENDING_MANAGER_APPROVAL | MANAGER_APPROVED | PENDING_FINANCE_APPROVAL -> REJECTED -> DRAFT
//
// Frozen is an overlay flag on any non-terminal state, not a status.
type Status string

const (
	StatusDraft                  Status = "DRAFT"
	StatusPendingManagerApproval Status = "PENDING_MANAGER_APPROVAL"
	StatusManagerApproved        Status = "MANAGER_APPROVED"
	StatusPendingFinanceApproval Status = "PENDING_FINANCE_APPROVAL"
	StatusFinanceApproved        Status = "FINANCE_APPROVED"
	StatusPaid                   Status = "PAID"
	StatusRejected               Status = "REJECTED"
)

func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusPendingManagerApproval,
		StatusManagerApproved,
		StatusPendingFinanceApproval,
		StatusFinanceApproved,
		StatusPaid,
		StatusRejected,
	}
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses() {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusPaid
}

type Event string

const (
	EventCreate               Event = "create"
	EventCalculate            Event = "calculate"
	EventSubmit               Event = "submit"
	EventApprove              Event = "approve"
	EventReject               Event = "reject"
	EventRequestFinanceReview Event = "request_finance_review"
	EventEditPeriod           Event = "edit_period"
	EventFinalize             Event = "finalize"
	EventFreeze               Event = "freeze"
	EventUnfreeze             Event = "unfreeze"
)

// ParseEvent maps the URL form ("request-finance-review") to an event.
func ParseEvent(s string) (Event, bool) {
	switch s {
	case "calculate":
		return EventCalculate, true
	case "submit":
		return EventSubmit, true
	case "approve":
		return EventApprove, true
	case "reject":
		return EventReject, true
	case "request-finance-review", "request_finance_review":
		return EventRequestFinanceReview, true
	case "edit-period", "edit_period":
		return EventEditPeriod, true
	case "finalize":
		return EventFinalize, true
	case "freeze":
		return EventFreeze, true
	case "unfreeze":
		return EventUnfreeze, true
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Period is an inclusive date range.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && !p.End.Before(p.Start)
}

func (p Period) Contains(t time.Time) bool {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, p.Start.Location())
	return !day.Before(p.Start) && !day.After(p.End)
}

func (p Period) String() string {
	return p.Start.Format("2006-01-02") + ".." + p.End.Format("2006-01-02")
}

// Run is a payroll run. Only the run state machine writes Status, Frozen and the approval fields.
type Run struct {
	ID                  string
	Period              Period
	Status              Status
	Frozen              bool
	EmployeeIDs         []string
	Lines               []Line
	Exceptions          []string
	TotalNetPay         decimal.Decimal
	PayrollSpecialistID string
	PaymentStatus       PaymentStatus
	PayrollManagerID    *string
	FinanceStaffID      *string
	RejectionReason     *string
	FreezeReason        *string
	UnlockReason        *string
	ManagerApprovalDate *time.Time
	FinanceApprovalDate *time.Time
	PaidAt              *time.Time
	// ApprovalCycle increments each time a rejected run returns to draft.
	ApprovalCycle int
	// ApprovalHistory holds the stamps of closed cycles, oldest first.
	ApprovalHistory []ApprovalRecord
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ApprovalRecord is the outcome of one closed approval cycle. Records are
// appended when a rejected run is edited and are never rewritten.
type ApprovalRecord struct {
	Cycle               int        `json:"cycle"`
	PayrollManagerID    *string    `json:"payroll_manager_id,omitempty"`
	ManagerApprovalDate *time.Time `json:"manager_approval_date,omitempty"`
	FinanceStaffID      *string    `json:"finance_staff_id,omitempty"`
	FinanceApprovalDate *time.Time `json:"finance_approval_date,omitempty"`
	RejectionReason     *string    `json:"rejection_reason,omitempty"`
}

// Clone returns a deep copy so transitions can be computed without touching the original.
func (r *Run) Clone() *Run {
	c := *r
	c.EmployeeIDs = append([]string(nil), r.EmployeeIDs...)
	c.Exceptions = append([]string(nil), r.Exceptions...)
	c.ApprovalHistory = append([]ApprovalRecord(nil), r.ApprovalHistory...)
	if r.Lines != nil {
		c.Lines = make([]Line, len(r.Lines))
		for i, l := range r.Lines {
			c.Lines[i] = l.Clone()
		}
	}
	c.PayrollManagerID = cloneString(r.PayrollManagerID)
	c.FinanceStaffID = cloneString(r.FinanceStaffID)
	c.RejectionReason = cloneString(r.RejectionReason)
	c.FreezeReason = cloneString(r.FreezeReason)
	c.UnlockReason = cloneString(r.UnlockReason)
	c.ManagerApprovalDate = cloneTime(r.ManagerApprovalDate)
	c.FinanceApprovalDate = cloneTime(r.FinanceApprovalDate)
	c.PaidAt = cloneTime(r.PaidAt)
	return &c
}

// AuditEntry records one applied transition.
type AuditEntry struct {
	ID         string
	RunID      string
	Event      Event
	ActorID    string
	ActorRole  string
	FromStatus Status
	ToStatus   Status
	WasFrozen  bool
	IsFrozen   bool
	Reason     *string
	Version    int
	At         time.Time
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
