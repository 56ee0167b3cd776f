package schedule

import "github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"

var (
	ErrShiftNotFound    = apperror.New(apperror.CodeNotFound, "shift assignment not found")
	ErrInvalidShiftTime = apperror.New(apperror.CodeValidation, "invalid shift clock time")
)
