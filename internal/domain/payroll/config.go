package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

type ConfigKind string

const (
	KindAllowance        ConfigKind = "ALLOWANCE"
	KindPayGrade         ConfigKind = "PAY_GRADE"
	KindPayType          ConfigKind = "PAY_TYPE"
	KindTaxRule          ConfigKind = "TAX_RULE"
	KindInsuranceBracket ConfigKind = "INSURANCE_BRACKET"
	KindSigningBonus     ConfigKind = "SIGNING_BONUS"
	KindSeparation       ConfigKind = "SEPARATION"
	KindPolicy           ConfigKind = "POLICY"
)

func AllConfigKinds() []ConfigKind {
	return []ConfigKind{
		KindAllowance, KindPayGrade, KindPayType, KindTaxRule,
		KindInsuranceBracket, KindSigningBonus, KindSeparation, KindPolicy,
	}
}

func (k ConfigKind) Valid() bool {
	for _, v := range AllConfigKinds() {
		if v == k {
			return true
		}
	}
	return false
}

type ConfigStatus string

const (
	ConfigDraft    ConfigStatus = "DRAFT"
	ConfigApproved ConfigStatus = "APPROVED"
	ConfigRejected ConfigStatus = "REJECTED"
)

// PolicyType selects what a POLICY entity prices.
type PolicyType string

const (
	// PolicyOvertime: Rate is the multiplier on the hourly rate.
	PolicyOvertime PolicyType = "OVERTIME"
	// PolicyLateness: Amount is deducted per late minute.
	PolicyLateness PolicyType = "LATENESS"
	// PolicyAbsence: Amount is deducted per absent day.
	PolicyAbsence PolicyType = "ABSENCE"
	// PolicyPenalty: Amount is a flat deduction, usually employee specific.
	PolicyPenalty PolicyType = "PENALTY"
)

func (p PolicyType) Valid() bool {
	switch p {
	case PolicyOvertime, PolicyLateness, PolicyAbsence, PolicyPenalty:
		return true
	}
	return false
}

type PayTypeKind string

const (
	PayHourly  PayTypeKind = "HOURLY"
	PayDaily   PayTypeKind = "DAILY"
	PayMonthly PayTypeKind = "MONTHLY"
)

func (p PayTypeKind) Valid() bool {
	return p == PayHourly || p == PayDaily || p == PayMonthly
}

// Bracket is a half-open band [From, To). A nil To is unbounded.
type Bracket struct {
	From decimal.Decimal  `json:"from"`
	To   *decimal.Decimal `json:"to,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

func (b Bracket) Contains(v decimal.Decimal) bool {
	if v.LessThan(b.From) {
		return false
	}
	return b.To == nil || v.LessThan(*b.To)
}

// ConfigEntity is one payroll configuration entry. Kind decides which of the
// value fields are meaningful:
//
//	ALLOWANCE, SIGNING_BONUS, SEPARATION  Amount (+ EmployeeID, EffectiveDate)
//	PAY_GRADE                             Code, Amount (base salary)
//	PAY_TYPE                              Code (pay grade ref), PayType, Amount (rate)
//	TAX_RULE                              Brackets, Exemption
//	INSURANCE_BRACKET                     Brackets
//	POLICY                                PolicyType, Amount or Rate
type ConfigEntity struct {
	ID              string
	Kind            ConfigKind
	Name            string
	Code            string
	EmployeeID      *string
	Amount          decimal.Decimal
	Rate            decimal.Decimal
	Exemption       decimal.Decimal
	PayType         PayTypeKind
	PolicyType      PolicyType
	Brackets        []Bracket
	EffectiveDate   *time.Time
	Status          ConfigStatus
	CreatedBy       string
	ApprovedBy      *string
	ApprovedAt      *time.Time
	RejectionReason *string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsEditable reports whether the entity may still be changed.
func (c *ConfigEntity) IsEditable() bool {
	return c.Status == ConfigDraft
}

// AppliesTo is true for global entries and entries for the employee.
func (c *ConfigEntity) AppliesTo(employeeID string) bool {
	return c.EmployeeID == nil || *c.EmployeeID == employeeID
}

// EffectiveIn is true when the entry has no effective date or it falls in the period.
func (c *ConfigEntity) EffectiveIn(p Period) bool {
	return c.EffectiveDate == nil || p.Contains(*c.EffectiveDate)
}
