package attendance

import "github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"

var (
	ErrRecordNotFound        = apperror.New(apperror.CodeNotFound, "attendance record not found")
	ErrExceptionNotFound     = apperror.New(apperror.CodeNotFound, "unresolved attendance exception not found")
	ErrInvalidPunchSequence  = apperror.New(apperror.CodeValidation, "invalid punch sequence")
	ErrRecordAlreadyExists   = apperror.New(apperror.CodeConflict, "attendance record already exists for this date")
	ErrPunchOutsideDay       = apperror.New(apperror.CodeValidation, "punch does not belong to the record date")
	ErrEmployeeIDRequired    = apperror.New(apperror.CodeValidation, "employee id is required")
	ErrPunchForOtherEmployee = apperror.New(apperror.CodeForbidden, "cannot punch for another employee")
)
