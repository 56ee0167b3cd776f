package payroll

import "github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"

var (
	ErrRunNotFound             = apperror.New(apperror.CodeNotFound, "payroll run not found")
	ErrPayslipNotFound         = apperror.New(apperror.CodeNotFound, "payslip not found")
	ErrConfigNotFound          = apperror.New(apperror.CodeNotFound, "payroll configuration not found")
	ErrInvalidTransition       = apperror.New(apperror.CodeInvalidTransition, "payroll run transition not allowed")
	ErrRunFrozen               = apperror.New(apperror.CodeInvalidTransition, "payroll run is frozen")
	ErrRunNotFrozen            = apperror.New(apperror.CodeInvalidTransition, "payroll run is not frozen")
	ErrLineExceptions          = apperror.New(apperror.CodeInvalidTransition, "payroll run has unresolved line exceptions")
	ErrNotCalculated           = apperror.New(apperror.CodeInvalidTransition, "payroll run has not been calculated")
	ErrApprovalAlreadyStamped  = apperror.New(apperror.CodeInvalidTransition, "approval already recorded for this cycle")
	ErrSelfApproval            = apperror.New(apperror.CodeForbidden, "approver cannot be the payroll specialist")
	ErrChainedApproval         = apperror.New(apperror.CodeForbidden, "finance approver cannot be the approving manager")
	ErrConcurrentModification  = apperror.New(apperror.CodeConcurrentModification, "payroll run was modified concurrently")
	ErrRejectionReasonRequired = apperror.New(apperror.CodeValidation, "rejection reason is required")
	ErrUnlockReasonRequired    = apperror.New(apperror.CodeValidation, "unlock reason is required")
	ErrInvalidPeriod           = apperror.New(apperror.CodeValidation, "period start must not be after period end")
	ErrNoEmployees             = apperror.New(apperror.CodeValidation, "payroll run has no employees")
	ErrIncompleteAttendance    = apperror.New(apperror.CodeIncompleteAttendance, "employee has unresolved attendance exceptions in period")
	ErrMissingPayGrade         = apperror.New(apperror.CodeMissingPayGrade, "employee has no approved pay grade")
	ErrConfigNotEditable       = apperror.New(apperror.CodeForbidden, "payroll configuration is no longer a draft")
	ErrConfigSelfApproval      = apperror.New(apperror.CodeForbidden, "configuration cannot be approved by its author")
	ErrConfigNotDraft          = apperror.New(apperror.CodeInvalidTransition, "payroll configuration status already decided")
	ErrConfigVersionMismatch   = apperror.New(apperror.CodeConcurrentModification, "payroll configuration was modified concurrently")
)
