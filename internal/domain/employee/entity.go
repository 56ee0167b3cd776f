package employee

import "time"

type EmploymentStatus string

const (
	StatusActive     EmploymentStatus = "active"
	StatusProbation  EmploymentStatus = "probation"
	StatusSuspended  EmploymentStatus = "suspended"
	StatusResigned   EmploymentStatus = "resigned"
	StatusTerminated EmploymentStatus = "terminated"
)

// Employee is the directory view the payroll engine needs.
type Employee struct {
	ID               string
	EmployeeCode     string
	FullName         string
	PayGradeRef      *string
	ManagerID        *string
	EmploymentStatus EmploymentStatus
	// Scope selects organization-specific attendance rules.
	Scope           string
	HireDate        time.Time
	ResignationDate *time.Time
}

// IsActive reports whether the employee may act or be paid.
func (e *Employee) IsActive() bool {
	return e.EmploymentStatus == StatusActive || e.EmploymentStatus == StatusProbation
}
