package payroll

import "github.com/shopspring/decimal"

type ItemKind string

const (
	ItemBase      ItemKind = "BASE"
	ItemAllowance ItemKind = "ALLOWANCE"
	ItemBonus     ItemKind = "BONUS"
	ItemPenalty   ItemKind = "PENALTY"
	ItemTax       ItemKind = "TAX"
	ItemInsurance ItemKind = "INSURANCE"
)

// Non-blocking flags raised on a line. Any flag blocks submission of the run.
const (
	LineExceptionNegativeNetPay   = "NEGATIVE_NET_PAY"
	LineExceptionInactiveEmployee = "INACTIVE_EMPLOYEE"
)

type LineItem struct {
	Kind     ItemKind        `json:"kind"`
	ConfigID string          `json:"config_id,omitempty"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
}

// Line is the aggregated payroll input for one employee.
type Line struct {
	EmployeeID      string          `json:"employee_id"`
	PayGradeRef     string          `json:"pay_grade_ref"`
	WorkedHours     decimal.Decimal `json:"worked_hours"`
	OvertimeMinutes int             `json:"overtime_minutes"`
	LatenessMinutes int             `json:"lateness_minutes"`
	AbsentDays      int             `json:"absent_days"`
	BaseSalary      decimal.Decimal `json:"base_salary"`
	Allowances      decimal.Decimal `json:"allowances"`
	Bonuses         decimal.Decimal `json:"bonuses"`
	Penalties       decimal.Decimal `json:"penalties"`
	Gross           decimal.Decimal `json:"gross"`
	Taxes           decimal.Decimal `json:"taxes"`
	Insurance       decimal.Decimal `json:"insurance"`
	Net             decimal.Decimal `json:"net"`
	Items           []LineItem      `json:"items"`
	Exceptions      []string        `json:"exceptions,omitempty"`
}

func (l Line) Clone() Line {
	c := l
	c.Items = append([]LineItem(nil), l.Items...)
	c.Exceptions = append([]string(nil), l.Exceptions...)
	return c
}
