package employee

import "github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"

var (
	ErrEmployeeNotFound = apperror.New(apperror.CodeNotFound, "employee not found")
	ErrEmployeeInactive = apperror.New(apperror.CodeForbidden, "employee is not active")
)
