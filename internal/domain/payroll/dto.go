package payroll

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

type CreateRunRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	// EmployeeIDs empty means every active employee.
	EmployeeIDs []string `json:"employee_ids,omitempty"`
}

func (r *CreateRunRequest) Validate() error {
	var errs validator.ValidationErrors
	validatePeriod(&errs, r.PeriodStart, r.PeriodEnd)
	for _, id := range r.EmployeeIDs {
		if validator.IsEmpty(id) {
			errs.Add("employee_ids", "must not contain empty ids")
			break
		}
	}
	return errs.OrNil()
}

func (r *CreateRunRequest) Period() Period {
	return parsePeriod(r.PeriodStart, r.PeriodEnd)
}

type TransitionRequest struct {
	ExpectedVersion int    `json:"expected_version"`
	Reason          string `json:"reason,omitempty"`
	PeriodStart     string `json:"period_start,omitempty"`
	PeriodEnd       string `json:"period_end,omitempty"`
}

// ValidateFor checks the payload shape for event. Business guards such as
// "reason required on reject" live in the state machine.
func (r *TransitionRequest) ValidateFor(event Event) error {
	var errs validator.ValidationErrors
	if r.ExpectedVersion < 1 {
		errs.Add("expected_version", "must be a positive version")
	}
	if event == EventEditPeriod {
		validatePeriod(&errs, r.PeriodStart, r.PeriodEnd)
	}
	if len(r.Reason) > 1000 {
		errs.Add("reason", "must be at most 1000 characters")
	}
	return errs.OrNil()
}

func (r *TransitionRequest) Period() Period {
	return parsePeriod(r.PeriodStart, r.PeriodEnd)
}

func validatePeriod(errs *validator.ValidationErrors, start, end string) {
	s, okS := validator.IsValidDate(start)
	if !okS {
		errs.Add("period_start", "must be YYYY-MM-DD")
	}
	e, okE := validator.IsValidDate(end)
	if !okE {
		errs.Add("period_end", "must be YYYY-MM-DD")
	}
	if okS && okE && e.Before(s) {
		errs.Add("period_end", "must not be before period_start")
	}
}

func parsePeriod(start, end string) Period {
	s, _ := validator.IsValidDate(start)
	e, _ := validator.IsValidDate(end)
	return Period{Start: s, End: e}
}

type BracketRequest struct {
	From decimal.Decimal  `json:"from"`
	To   *decimal.Decimal `json:"to,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

type CreateConfigRequest struct {
	Kind          string           `json:"kind"`
	Name          string           `json:"name"`
	Code          string           `json:"code,omitempty"`
	EmployeeID    *string          `json:"employee_id,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Rate          decimal.Decimal  `json:"rate"`
	Exemption     decimal.Decimal  `json:"exemption"`
	PayType       string           `json:"pay_type,omitempty"`
	PolicyType    string           `json:"policy_type,omitempty"`
	Brackets      []BracketRequest `json:"brackets,omitempty"`
	EffectiveDate string           `json:"effective_date,omitempty"`
}

func (r *CreateConfigRequest) Validate() error {
	var errs validator.ValidationErrors

	kind := ConfigKind(strings.ToUpper(r.Kind))
	if !kind.Valid() {
		errs.Add("kind", "unknown configuration kind")
	}
	if validator.IsEmpty(r.Name) {
		errs.Add("name", "name is required")
	}
	if !validator.IsNonNegative(r.Amount) {
		errs.Add("amount", "must be non-negative")
	}
	if !validator.IsNonNegative(r.Rate) {
		errs.Add("rate", "must be non-negative")
	}
	if !validator.IsNonNegative(r.Exemption) {
		errs.Add("exemption", "must be non-negative")
	}
	if r.EffectiveDate != "" {
		if _, ok := validator.IsValidDate(r.EffectiveDate); !ok {
			errs.Add("effective_date", "must be YYYY-MM-DD")
		}
	}
	if r.EmployeeID != nil && validator.IsEmpty(*r.EmployeeID) {
		errs.Add("employee_id", "must not be empty when given")
	}

	switch kind {
	case KindPayGrade:
		if validator.IsEmpty(r.Code) {
			errs.Add("code", "pay grade code is required")
		}
		if !r.Amount.IsPositive() {
			errs.Add("amount", "base salary must be positive")
		}
	case KindPayType:
		if validator.IsEmpty(r.Code) {
			errs.Add("code", "pay grade code is required")
		}
		if !PayTypeKind(strings.ToUpper(r.PayType)).Valid() {
			errs.Add("pay_type", "must be HOURLY, DAILY or MONTHLY")
		}
	case KindTaxRule, KindInsuranceBracket:
		if len(r.Brackets) == 0 {
			errs.Add("brackets", "at least one bracket is required")
		}
		validateBrackets(&errs, r.Brackets)
	case KindPolicy:
		pt := PolicyType(strings.ToUpper(r.PolicyType))
		if !pt.Valid() {
			errs.Add("policy_type", "must be OVERTIME, LATENESS, ABSENCE or PENALTY")
		}
		if pt == PolicyOvertime && !r.Rate.IsPositive() {
			errs.Add("rate", "overtime multiplier must be positive")
		}
	case KindSigningBonus, KindSeparation:
		if r.EmployeeID == nil {
			errs.Add("employee_id", "employee_id is required")
		}
		if r.EffectiveDate == "" {
			errs.Add("effective_date", "effective_date is required")
		}
	}

	return errs.OrNil()
}

func validateBrackets(errs *validator.ValidationErrors, brackets []BracketRequest) {
	for i, b := range brackets {
		if b.From.IsNegative() || b.Rate.IsNegative() {
			errs.Add("brackets", "from and rate must be non-negative")
			return
		}
		if b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			errs.Add("brackets", "rate must be a fraction between 0 and 1")
			return
		}
		if b.To != nil && !b.To.GreaterThan(b.From) {
			errs.Add("brackets", "to must be greater than from")
			return
		}
		if i > 0 {
			prev := brackets[i-1]
			if prev.To == nil || !prev.To.Equal(b.From) {
				errs.Add("brackets", "brackets must be contiguous and ordered")
				return
			}
		}
	}
}

// ToEntity builds a DRAFT entity from a validated request.
func (r *CreateConfigRequest) ToEntity(createdBy string) *ConfigEntity {
	c := &ConfigEntity{
		Kind:       ConfigKind(strings.ToUpper(r.Kind)),
		Name:       strings.TrimSpace(r.Name),
		Code:       strings.TrimSpace(r.Code),
		EmployeeID: r.EmployeeID,
		Amount:     r.Amount,
		Rate:       r.Rate,
		Exemption:  r.Exemption,
		PayType:    PayTypeKind(strings.ToUpper(r.PayType)),
		PolicyType: PolicyType(strings.ToUpper(r.PolicyType)),
		Status:     ConfigDraft,
		CreatedBy:  createdBy,
	}
	for _, b := range r.Brackets {
		c.Brackets = append(c.Brackets, Bracket(b))
	}
	if d, ok := validator.IsValidDate(r.EffectiveDate); ok {
		c.EffectiveDate = &d
	}
	return c
}

type UpdateConfigRequest struct {
	CreateConfigRequest
	ExpectedVersion int `json:"expected_version"`
}

func (r *UpdateConfigRequest) Validate() error {
	var errs validator.ValidationErrors
	if err := r.CreateConfigRequest.Validate(); err != nil {
		errs = append(errs, err.(validator.ValidationErrors)...)
	}
	if r.ExpectedVersion < 1 {
		errs.Add("expected_version", "must be a positive version")
	}
	return errs.OrNil()
}

type UpdateConfigStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (r *UpdateConfigStatusRequest) Validate() error {
	var errs validator.ValidationErrors
	st := ConfigStatus(strings.ToUpper(r.Status))
	if st != ConfigApproved && st != ConfigRejected {
		errs.Add("status", "must be APPROVED or REJECTED")
	}
	if st == ConfigRejected && validator.IsEmpty(r.Reason) {
		errs.Add("reason", "reason is required when rejecting")
	}
	return errs.OrNil()
}

func (r *UpdateConfigStatusRequest) TargetStatus() ConfigStatus {
	return ConfigStatus(strings.ToUpper(r.Status))
}

// ========== RESPONSES ==========

type RunResponse struct {
	ID                  string           `json:"id"`
	PeriodStart         string           `json:"period_start"`
	PeriodEnd           string           `json:"period_end"`
	Status              string           `json:"status"`
	Frozen              bool             `json:"frozen"`
	EmployeeIDs         []string         `json:"employee_ids"`
	Lines               []Line           `json:"lines"`
	Exceptions          []string         `json:"exceptions"`
	TotalNetPay         decimal.Decimal  `json:"total_net_pay"`
	PayrollSpecialistID string           `json:"payroll_specialist_id"`
	PaymentStatus       string           `json:"payment_status"`
	PayrollManagerID    *string          `json:"payroll_manager_id,omitempty"`
	FinanceStaffID      *string          `json:"finance_staff_id,omitempty"`
	RejectionReason     *string          `json:"rejection_reason,omitempty"`
	FreezeReason        *string          `json:"freeze_reason,omitempty"`
	UnlockReason        *string          `json:"unlock_reason,omitempty"`
	ManagerApprovalDate *time.Time       `json:"manager_approval_date,omitempty"`
	FinanceApprovalDate *time.Time       `json:"finance_approval_date,omitempty"`
	PaidAt              *time.Time       `json:"paid_at,omitempty"`
	ApprovalCycle       int              `json:"approval_cycle"`
	ApprovalHistory     []ApprovalRecord `json:"approval_history"`
	Version             int              `json:"version"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func ToRunResponse(r *Run) RunResponse {
	lines := r.Lines
	if lines == nil {
		lines = []Line{}
	}
	exceptions := r.Exceptions
	if exceptions == nil {
		exceptions = []string{}
	}
	history := r.ApprovalHistory
	if history == nil {
		history = []ApprovalRecord{}
	}
	return RunResponse{
		ID:                  r.ID,
		PeriodStart:         r.Period.Start.Format(validator.DateLayout),
		PeriodEnd:           r.Period.End.Format(validator.DateLayout),
		Status:              string(r.Status),
		Frozen:              r.Frozen,
		EmployeeIDs:         r.EmployeeIDs,
		Lines:               lines,
		Exceptions:          exceptions,
		TotalNetPay:         r.TotalNetPay,
		PayrollSpecialistID: r.PayrollSpecialistID,
		PaymentStatus:       string(r.PaymentStatus),
		PayrollManagerID:    r.PayrollManagerID,
		FinanceStaffID:      r.FinanceStaffID,
		RejectionReason:     r.RejectionReason,
		FreezeReason:        r.FreezeReason,
		UnlockReason:        r.UnlockReason,
		ManagerApprovalDate: r.ManagerApprovalDate,
		FinanceApprovalDate: r.FinanceApprovalDate,
		PaidAt:              r.PaidAt,
		ApprovalCycle:       r.ApprovalCycle,
		ApprovalHistory:     history,
		Version:             r.Version,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

type PayslipResponse struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	EmployeeID    string    `json:"employee_id"`
	PeriodStart   string    `json:"period_start"`
	PeriodEnd     string    `json:"period_end"`
	Line          Line      `json:"line"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

func ToPayslipResponse(p Payslip) PayslipResponse {
	return PayslipResponse{
		ID:            p.ID,
		RunID:         p.RunID,
		EmployeeID:    p.EmployeeID,
		PeriodStart:   p.Period.Start.Format(validator.DateLayout),
		PeriodEnd:     p.Period.End.Format(validator.DateLayout),
		Line:          p.Line,
		PaymentStatus: string(p.PaymentStatus),
		CreatedAt:     p.CreatedAt,
	}
}

type AuditEntryResponse struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	WasFrozen  bool      `json:"was_frozen"`
	IsFrozen   bool      `json:"is_frozen"`
	Reason     *string   `json:"reason,omitempty"`
	Version    int       `json:"version"`
	At         time.Time `json:"at"`
}

func ToAuditEntryResponse(e AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:         e.ID,
		Event:      string(e.Event),
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		WasFrozen:  e.WasFrozen,
		IsFrozen:   e.IsFrozen,
		Reason:     e.Reason,
		Version:    e.Version,
		At:         e.At,
	}
}

type ConfigResponse struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	Name            string          `json:"name"`
	Code            string          `json:"code,omitempty"`
	EmployeeID      *string         `json:"employee_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Rate            decimal.Decimal `json:"rate"`
	Exemption       decimal.Decimal `json:"exemption"`
	PayType         string          `json:"pay_type,omitempty"`
	PolicyType      string          `json:"policy_type,omitempty"`
	Brackets        []Bracket       `json:"brackets,omitempty"`
	EffectiveDate   *string         `json:"effective_date,omitempty"`
	Status          string          `json:"status"`
	CreatedBy       string          `json:"created_by"`
	ApprovedBy      *string         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func ToConfigResponse(c *ConfigEntity) ConfigResponse {
	resp := ConfigResponse{
		ID:              c.ID,
		Kind:            string(c.Kind),
		Name:            c.Name,
		Code:            c.Code,
		EmployeeID:      c.EmployeeID,
		Amount:          c.Amount,
		Rate:            c.Rate,
		Exemption:       c.Exemption,
		PayType:         string(c.PayType),
		PolicyType:      string(c.PolicyType),
		Brackets:        c.Brackets,
		Status:          string(c.Status),
		CreatedBy:       c.CreatedBy,
		ApprovedBy:      c.ApprovedBy,
		ApprovedAt:      c.ApprovedAt,
		RejectionReason: c.RejectionReason,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.EffectiveDate != nil {
		d := c.EffectiveDate.Format(validator.DateLayout)
		resp.EffectiveDate = &d
	}
	return resp
}
