package user

type Capability string

const (
	// Attendance
	CapabilityAttendancePunch    Capability = "attendance.punch"
	CapabilityAttendanceViewAll  Capability = "attendance.view_all"
	CapabilityAttendanceEvaluate Capability = "attendance.evaluate"
	CapabilityAttendanceResolve  Capability = "attendance.resolve_exception"
	CapabilityAttendanceRules    Capability = "attendance.manage_rules"

	// Payroll runs
	CapabilityPayrollView           Capability = "payroll.view"
	CapabilityPayrollCreate         Capability = "payroll.create"
	CapabilityPayrollEdit           Capability = "payroll.edit"
	CapabilityPayrollSubmit         Capability = "payroll.submit"
	CapabilityPayrollManagerApprove Capability = "payroll.manager_approve"
	CapabilityPayrollFinanceApprove Capability = "payroll.finance_approve"
	CapabilityPayrollFreeze         Capability = "payroll.freeze"
	CapabilityPayrollFinalize       Capability = "payroll.finalize"

	// Payroll configuration
	CapabilityPayrollConfigManage  Capability = "payroll_config.manage"
	CapabilityPayrollConfigApprove Capability = "payroll_config.approve"
)

// AllCapabilities returns every known capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityAttendancePunch,
		CapabilityAttendanceViewAll,
		CapabilityAttendanceEvaluate,
		CapabilityAttendanceResolve,
		CapabilityAttendanceRules,
		CapabilityPayrollView,
		CapabilityPayrollCreate,
		CapabilityPayrollEdit,
		CapabilityPayrollSubmit,
		CapabilityPayrollManagerApprove,
		CapabilityPayrollFinanceApprove,
		CapabilityPayrollFreeze,
		CapabilityPayrollFinalize,
		CapabilityPayrollConfigManage,
		CapabilityPayrollConfigApprove,
	}
}

// RolePermissions is the default policy loaded into the authorizer.
var RolePermissions = map[Role][]Capability{
	RoleOwner: {
		CapabilityAttendancePunch,
		CapabilityAttendanceViewAll,
		CapabilityAttendanceEvaluate,
		CapabilityAttendanceResolve,
		CapabilityAttendanceRules,
		CapabilityPayrollView,
		CapabilityPayrollManagerApprove,
		CapabilityPayrollFinanceApprove,
		CapabilityPayrollFreeze,
		CapabilityPayrollConfigApprove,
	},
	RolePayrollSpecialist: {
		CapabilityAttendancePunch,
		CapabilityAttendanceViewAll,
		CapabilityPayrollView,
		CapabilityPayrollCreate,
		CapabilityPayrollEdit,
		CapabilityPayrollSubmit,
		CapabilityPayrollConfigManage,
	},
	RolePayrollManager: {
		CapabilityAttendancePunch,
		CapabilityAttendanceViewAll,
		CapabilityPayrollView,
		CapabilityPayrollManagerApprove,
		CapabilityPayrollFreeze,
		CapabilityPayrollConfigApprove,
	},
	RoleFinanceStaff: {
		CapabilityAttendancePunch,
		CapabilityPayrollView,
		CapabilityPayrollFinanceApprove,
		CapabilityPayrollFinalize,
	},
	RoleHRAdmin: {
		CapabilityAttendancePunch,
		CapabilityAttendanceViewAll,
		CapabilityAttendanceEvaluate,
		CapabilityAttendanceResolve,
		CapabilityAttendanceRules,
	},
	RoleEmployee: {
		CapabilityAttendancePunch,
	},
	RoleSystem: {
		CapabilityAttendanceEvaluate,
		CapabilityPayrollView,
		CapabilityPayrollFinalize,
	},
}

// CapabilitySet is an immutable set of capabilities.
type CapabilitySet map[Capability]struct{}

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities in AllCapabilities order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for _, c := range AllCapabilities() {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
