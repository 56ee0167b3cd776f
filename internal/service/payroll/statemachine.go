package payroll

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

// Command is one requested transition with everything the guards need.
type Command struct {
	Event  payroll.Event
	Actor  user.Actor
	Reason string
	// Period is the new period for edit_period.
	Period payroll.Period
	// Lines are the freshly aggregated lines for calculate and submit.
	Lines []payroll.Line
	At    time.Time
}

type transition struct {
	event      payroll.Event
	from       []payroll.Status
	to         payroll.Status // empty keeps the current status
	capability user.Capability
	guard      func(run *payroll.Run, cmd Command) error
	apply      func(run *payroll.Run, cmd Command)
}

func (t transition) matches(s payroll.Status) bool {
	for _, f := range t.from {
		if f == s {
			return true
		}
	}
	return false
}

var nonTerminal = []payroll.Status{
	payroll.StatusDraft,
	payroll.StatusPendingManagerApproval,
	payroll.StatusManagerApproved,
	payroll.StatusPendingFinanceApproval,
	payroll.StatusFinanceApproved,
	payroll.StatusRejected,
}

// transitions is the run lifecycle table. Rows for the same event are tried in order.
var transitions = []transition{
	{
		event:      payroll.EventCalculate,
		from:       []payroll.Status{payroll.StatusDraft},
		capability: user.CapabilityPayrollEdit,
		apply:      setLines,
	},
	{
		event:      payroll.EventSubmit,
		from:       []payroll.Status{payroll.StatusDraft},
		to:         payroll.StatusPendingManagerApproval,
		capability: user.CapabilityPayrollSubmit,
		guard:      requireCleanLines,
		apply:      setLines,
	},
	{
		event:      payroll.EventApprove,
		from:       []payroll.Status{payroll.StatusPendingManagerApproval},
		to:         payroll.StatusManagerApproved,
		capability: user.CapabilityPayrollManagerApprove,
		guard:      guardManager,
		apply: func(run *payroll.Run, cmd Command) {
			id := cmd.Actor.EmployeeID
			at := cmd.At
			run.PayrollManagerID = &id
			run.ManagerApprovalDate = &at
		},
	},
	{
		event:      payroll.EventReject,
		from:       []payroll.Status{payroll.StatusPendingManagerApproval},
		to:         payroll.StatusRejected,
		capability: user.CapabilityPayrollManagerApprove,
		guard:      all(requireReason, guardNotSpecialist),
		apply:      setRejection,
	},
	{
		event:      payroll.EventRequestFinanceReview,
		from:       []payroll.Status{payroll.StatusManagerApproved},
		to:         payroll.StatusPendingFinanceApproval,
		capability: user.CapabilityPayrollSubmit,
	},
	{
		event:      payroll.EventApprove,
		from:       []payroll.Status{payroll.StatusManagerApproved, payroll.StatusPendingFinanceApproval},
		to:         payroll.StatusFinanceApproved,
		capability: user.CapabilityPayrollFinanceApprove,
		guard:      guardFinance,
		apply: func(run *payroll.Run, cmd Command) {
			id := cmd.Actor.EmployeeID
			at := cmd.At
			run.FinanceStaffID = &id
			run.FinanceApprovalDate = &at
		},
	},
	{
		event:      payroll.EventReject,
		from:       []payroll.Status{payroll.StatusManagerApproved, payroll.StatusPendingFinanceApproval},
		to:         payroll.StatusRejected,
		capability: user.CapabilityPayrollFinanceApprove,
		guard:      all(requireReason, guardNotSpecialist, guardNotManager),
		apply:      setRejection,
	},
	{
		event:      payroll.EventEditPeriod,
		from:       []payroll.Status{payroll.StatusRejected},
		to:         payroll.StatusDraft,
		capability: user.CapabilityPayrollEdit,
		guard: func(_ *payroll.Run, cmd Command) error {
			if !cmd.Period.Valid() {
				return payroll.ErrInvalidPeriod.WithField("period", cmd.Period.String())
			}
			return nil
		},
		apply: func(run *payroll.Run, cmd Command) {
			run.ApprovalHistory = append(run.ApprovalHistory, payroll.ApprovalRecord{
				Cycle:               run.ApprovalCycle,
				PayrollManagerID:    run.PayrollManagerID,
				ManagerApprovalDate: run.ManagerApprovalDate,
				FinanceStaffID:      run.FinanceStaffID,
				FinanceApprovalDate: run.FinanceApprovalDate,
				RejectionReason:     run.RejectionReason,
			})
			run.Period = cmd.Period
			run.Lines = nil
			run.Exceptions = nil
			run.TotalNetPay = decimal.Zero
			run.PayrollManagerID = nil
			run.ManagerApprovalDate = nil
			run.FinanceStaffID = nil
			run.FinanceApprovalDate = nil
			run.RejectionReason = nil
			run.ApprovalCycle++
		},
	},
	{
		event:      payroll.EventFinalize,
		from:       []payroll.Status{payroll.StatusFinanceApproved},
		to:         payroll.StatusPaid,
		capability: user.CapabilityPayrollFinalize,
		apply: func(run *payroll.Run, cmd Command) {
			// Payment itself is tracked per payslip.
			at := cmd.At
			run.PaidAt = &at
		},
	},
	{
		event:      payroll.EventFreeze,
		from:       nonTerminal,
		capability: user.CapabilityPayrollFreeze,
		apply: func(run *payroll.Run, cmd Command) {
			run.Frozen = true
			run.FreezeReason = optional(cmd.Reason)
			run.UnlockReason = nil
		},
	},
	{
		event:      payroll.EventUnfreeze,
		from:       nonTerminal,
		capability: user.CapabilityPayrollFreeze,
		guard: func(run *payroll.Run, cmd Command) error {
			if !run.Frozen {
				return payroll.ErrRunNotFrozen.WithEntity("payroll_run", run.ID).WithStates("frozen", "unfrozen")
			}
			if strings.TrimSpace(cmd.Reason) == "" {
				return payroll.ErrUnlockReasonRequired.WithField("reason", "required")
			}
			return nil
		},
		apply: func(run *payroll.Run, cmd Command) {
			run.Frozen = false
			run.UnlockReason = optional(cmd.Reason)
		},
	},
}

// Apply computes the run that results from cmd. It never mutates run; on error
// the caller's copy is exactly as it was.
func Apply(run *payroll.Run, cmd Command) (*payroll.Run, error) {
	rows := rowsFor(cmd.Event)
	if len(rows) == 0 {
		return nil, payroll.ErrInvalidTransition.WithEntity("payroll_run", run.ID).WithField("event", string(cmd.Event))
	}

	permitted := false
	for _, r := range rows {
		if cmd.Actor.Can(r.capability) {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, user.RequireCapability(cmd.Actor, rows[0].capability)
	}

	if run.Status.IsTerminal() {
		return nil, payroll.ErrInvalidTransition.WithEntity("payroll_run", run.ID).
			WithStates(expectedStates(rows), string(run.Status)).
			WithField("event", string(cmd.Event))
	}
	if run.Frozen && cmd.Event != payroll.EventUnfreeze {
		return nil, payroll.ErrRunFrozen.WithEntity("payroll_run", run.ID).
			WithStates("unfrozen", "frozen").
			WithField("event", string(cmd.Event))
	}

	var row *transition
	for i := range rows {
		if rows[i].matches(run.Status) {
			row = &rows[i]
			break
		}
	}
	if row == nil {
		return nil, payroll.ErrInvalidTransition.WithEntity("payroll_run", run.ID).
			WithStates(expectedStates(rows), string(run.Status)).
			WithField("event", string(cmd.Event))
	}
	if err := user.RequireCapability(cmd.Actor, row.capability); err != nil {
		return nil, err
	}
	if row.guard != nil {
		if err := row.guard(run, cmd); err != nil {
			return nil, err
		}
	}

	next := run.Clone()
	if row.apply != nil {
		row.apply(next, cmd)
	}
	if row.to != "" {
		next.Status = row.to
	}
	next.UpdatedAt = cmd.At
	return next, nil
}

func rowsFor(e payroll.Event) []transition {
	var out []transition
	for _, t := range transitions {
		if t.event == e {
			out = append(out, t)
		}
	}
	return out
}

func expectedStates(rows []transition) string {
	seen := make(map[payroll.Status]bool)
	var names []string
	for _, r := range rows {
		for _, s := range r.from {
			if !seen[s] {
				seen[s] = true
				names = append(names, string(s))
			}
		}
	}
	return strings.Join(names, "|")
}

func all(guards ...func(*payroll.Run, Command) error) func(*payroll.Run, Command) error {
	return func(run *payroll.Run, cmd Command) error {
		for _, g := range guards {
			if err := g(run, cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func requireReason(_ *payroll.Run, cmd Command) error {
	if strings.TrimSpace(cmd.Reason) == "" {
		return payroll.ErrRejectionReasonRequired.WithField("reason", "required")
	}
	return nil
}

func guardNotSpecialist(run *payroll.Run, cmd Command) error {
	if cmd.Actor.EmployeeID == run.PayrollSpecialistID {
		return payroll.ErrSelfApproval.WithEntity("payroll_run", run.ID).WithField("actor", cmd.Actor.EmployeeID)
	}
	return nil
}

func guardNotManager(run *payroll.Run, cmd Command) error {
	if run.PayrollManagerID != nil && *run.PayrollManagerID == cmd.Actor.EmployeeID {
		return payroll.ErrChainedApproval.WithEntity("payroll_run", run.ID).WithField("actor", cmd.Actor.EmployeeID)
	}
	return nil
}

func guardManager(run *payroll.Run, cmd Command) error {
	if err := guardNotSpecialist(run, cmd); err != nil {
		return err
	}
	if run.ManagerApprovalDate != nil {
		return payroll.ErrApprovalAlreadyStamped.WithEntity("payroll_run", run.ID).WithField("stage", "manager")
	}
	return nil
}

func guardFinance(run *payroll.Run, cmd Command) error {
	if err := guardNotSpecialist(run, cmd); err != nil {
		return err
	}
	if err := guardNotManager(run, cmd); err != nil {
		return err
	}
	if run.FinanceApprovalDate != nil {
		return payroll.ErrApprovalAlreadyStamped.WithEntity("payroll_run", run.ID).WithField("stage", "finance")
	}
	return nil
}

func requireCleanLines(run *payroll.Run, cmd Command) error {
	if len(cmd.Lines) == 0 {
		return payroll.ErrNotCalculated.WithEntity("payroll_run", run.ID)
	}
	if flagged := flaggedEmployees(cmd.Lines); len(flagged) > 0 {
		return payroll.ErrLineExceptions.WithEntity("payroll_run", run.ID).
			WithField("employees", strings.Join(flagged, ","))
	}
	return nil
}

func setLines(run *payroll.Run, cmd Command) {
	run.Lines = make([]payroll.Line, len(cmd.Lines))
	total := decimal.Zero
	for i, l := range cmd.Lines {
		run.Lines[i] = l.Clone()
		total = total.Add(l.Net)
	}
	run.TotalNetPay = total
	run.Exceptions = nil
	for _, l := range cmd.Lines {
		for _, ex := range l.Exceptions {
			run.Exceptions = append(run.Exceptions, l.EmployeeID+":"+ex)
		}
	}
}

func setRejection(run *payroll.Run, cmd Command) {
	run.RejectionReason = optional(cmd.Reason)
}

func flaggedEmployees(lines []payroll.Line) []string {
	var out []string
	for _, l := range lines {
		if len(l.Exceptions) > 0 {
			out = append(out, l.EmployeeID)
		}
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
