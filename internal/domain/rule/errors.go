package rule

import "github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"

var (
	ErrRuleNotFound       = apperror.New(apperror.CodeNotFound, "rule config not found")
	ErrActiveRuleConflict = apperror.New(apperror.CodeConflict, "another rule config is already active for this type and scope")
	ErrInvalidCondition   = apperror.New(apperror.CodeValidation, "invalid rule condition")
)
