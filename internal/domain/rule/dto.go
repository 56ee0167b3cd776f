package rule

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
)

type CreateRuleRequest struct {
	RuleType           string   `json:"rule_type" yaml:"rule_type"`
	Scope              string   `json:"scope" yaml:"scope"`
	GracePeriodMinutes int      `json:"grace_period_minutes" yaml:"grace_period_minutes"`
	CalculationMethod  string   `json:"calculation_method" yaml:"calculation_method"`
	MinMinutes         int      `json:"min_minutes" yaml:"min_minutes"`
	RequiresApproval   bool     `json:"requires_approval" yaml:"requires_approval"`
	IsHoliday          bool     `json:"is_holiday" yaml:"is_holiday"`
	IsRestDay          bool     `json:"is_rest_day" yaml:"is_rest_day"`
	SuppressLateness   bool     `json:"suppress_lateness" yaml:"suppress_lateness"`
	SuppressEarlyLeave bool     `json:"suppress_early_leave" yaml:"suppress_early_leave"`
	SuppressPenalties  bool     `json:"suppress_penalties" yaml:"suppress_penalties"`
	Dates              []string `json:"dates,omitempty" yaml:"dates"`
	Condition          string   `json:"condition,omitempty" yaml:"condition"`
	Active             bool     `json:"active" yaml:"active"`
}

func (r *CreateRuleRequest) Validate() error {
	var errs validator.ValidationErrors

	rt := RuleType(strings.ToUpper(r.RuleType))
	if !rt.Valid() {
		errs.Add("rule_type", "must be one of LATENESS, SHORT_TIME, OVERTIME, HOLIDAY, REST_DAY")
	}
	if r.GracePeriodMinutes < 0 {
		errs.Add("grace_period_minutes", "must be non-negative")
	}
	if r.MinMinutes < 0 {
		errs.Add("min_minutes", "must be non-negative")
	}
	if r.CalculationMethod != "" && !CalculationMethod(strings.ToUpper(r.CalculationMethod)).Valid() {
		errs.Add("calculation_method", "must be FROM_GRACE_END or FROM_SHIFT_START")
	}
	for _, d := range r.Dates {
		if _, ok := validator.IsValidDate(d); !ok {
			errs.Add("dates", "must contain YYYY-MM-DD dates")
			break
		}
	}
	if rt.IsDayRule() && len(r.Dates) == 0 && validator.IsEmpty(r.Condition) {
		errs.Add("condition", "day rules need dates or a condition")
	}
	if rt == TypeHoliday && !r.IsHoliday {
		errs.Add("is_holiday", "must be true for HOLIDAY rules")
	}
	if rt == TypeRestDay && !r.IsRestDay {
		errs.Add("is_rest_day", "must be true for REST_DAY rules")
	}

	return errs.OrNil()
}

// ToConfig converts a validated request.
func (r *CreateRuleRequest) ToConfig(createdBy string) Config {
	scope := strings.TrimSpace(r.Scope)
	if scope == "" {
		scope = ScopeGlobal
	}
	method := CalculationMethod(strings.ToUpper(r.CalculationMethod))
	if method == "" {
		method = CalculateFromGraceEnd
	}
	return Config{
		RuleType:           RuleType(strings.ToUpper(r.RuleType)),
		Scope:              scope,
		GracePeriodMinutes: r.GracePeriodMinutes,
		CalculationMethod:  method,
		MinMinutes:         r.MinMinutes,
		RequiresApproval:   r.RequiresApproval,
		IsHoliday:          r.IsHoliday,
		IsRestDay:          r.IsRestDay,
		SuppressLateness:   r.SuppressLateness,
		SuppressEarlyLeave: r.SuppressEarlyLeave,
		SuppressPenalties:  r.SuppressPenalties,
		Dates:              r.Dates,
		Condition:          strings.TrimSpace(r.Condition),
		CreatedBy:          createdBy,
	}
}

type RuleResponse struct {
	ID                 string    `json:"id"`
	RuleType           string    `json:"rule_type"`
	Scope              string    `json:"scope"`
	GracePeriodMinutes int       `json:"grace_period_minutes"`
	CalculationMethod  string    `json:"calculation_method"`
	MinMinutes         int       `json:"min_minutes"`
	RequiresApproval   bool      `json:"requires_approval"`
	IsHoliday          bool      `json:"is_holiday"`
	IsRestDay          bool      `json:"is_rest_day"`
	SuppressLateness   bool      `json:"suppress_lateness"`
	SuppressEarlyLeave bool      `json:"suppress_early_leave"`
	SuppressPenalties  bool      `json:"suppress_penalties"`
	Dates              []string  `json:"dates,omitempty"`
	Condition          string    `json:"condition,omitempty"`
	Active             bool      `json:"active"`
	Version            int       `json:"version"`
	CreatedBy          string    `json:"created_by"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func ToRuleResponse(c Config) RuleResponse {
	return RuleResponse{
		ID:                 c.ID,
		RuleType:           string(c.RuleType),
		Scope:              c.Scope,
		GracePeriodMinutes: c.GracePeriodMinutes,
		CalculationMethod:  string(c.CalculationMethod),
		MinMinutes:         c.MinMinutes,
		RequiresApproval:   c.RequiresApproval,
		IsHoliday:          c.IsHoliday,
		IsRestDay:          c.IsRestDay,
		SuppressLateness:   c.SuppressLateness,
		SuppressEarlyLeave: c.SuppressEarlyLeave,
		SuppressPenalties:  c.SuppressPenalties,
		Dates:              c.Dates,
		Condition:          c.Condition,
		Active:             c.Active,
		Version:            c.Version,
		CreatedBy:          c.CreatedBy,
		UpdatedAt:          c.UpdatedAt,
	}
}
