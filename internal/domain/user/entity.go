package user

type Role string

const (
	RoleOwner             Role = "owner"              // Company owner - full access except self-approval
	RolePayrollSpecialist Role = "payroll_specialist" // Prepares and submits payroll runs
	RolePayrollManager    Role = "payroll_manager"    // First approval stage, freeze/unfreeze
	RoleFinanceStaff      Role = "finance_staff"      // Second approval stage
	RoleHRAdmin           Role = "hr_admin"           // Attendance rules and corrections
	RoleEmployee          Role = "employee"           // Punches and own records
	RoleSystem            Role = "system"             // Background jobs
)

// AllRoles returns every known role.
func AllRoles() []Role {
	return []Role{
		RoleOwner,
		RolePayrollSpecialist,
		RolePayrollManager,
		RoleFinanceStaff,
		RoleHRAdmin,
		RoleEmployee,
		RoleSystem,
	}
}

// Actor is the authenticated caller with capabilities resolved once at the boundary.
// Services check capabilities, never roles.
type Actor struct {
	UserID       string
	EmployeeID   string
	Role         Role
	Capabilities CapabilitySet
}

// Can reports whether the actor holds capability c.
func (a Actor) Can(c Capability) bool {
	return a.Capabilities.Has(c)
}

// SystemActor is used by scheduled jobs.
func SystemActor() Actor {
	return Actor{
		UserID:       "system",
		EmployeeID:   "system",
		Role:         RoleSystem,
		Capabilities: NewCapabilitySet(RolePermissions[RoleSystem]...),
	}
}
