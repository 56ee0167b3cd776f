package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
)

// statusByCode is the HTTP mapping of the engine's error taxonomy.
var statusByCode = map[apperror.Code]int{
	apperror.CodeValidation:             http.StatusUnprocessableEntity,
	apperror.CodeNotFound:               http.StatusNotFound,
	apperror.CodeForbidden:              http.StatusForbidden,
	apperror.CodeInvalidTransition:      http.StatusConflict,
	apperror.CodeConcurrentModification: http.StatusConflict,
	apperror.CodeIncompleteAttendance:   http.StatusUnprocessableEntity,
	apperror.CodeMissingPayGrade:        http.StatusUnprocessableEntity,
	apperror.CodeConflict:               http.StatusConflict,
}

// StatusFor returns the HTTP status HandleError would write for err.
func StatusFor(err error) int {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return http.StatusUnprocessableEntity
	}
	if status, ok := statusByCode[apperror.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes err as an error envelope. Errors outside the taxonomy are
// logged and reported as a generic 500.
func HandleError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fail(w, http.StatusUnprocessableEntity, string(apperror.CodeValidation), "Validation failed", validationErrs.ToMap())
		return
	}

	appErr, isAppErr := apperror.As(err)
	if !isAppErr {
		slog.Error("unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
		return
	}

	status, known := statusByCode[appErr.Code]
	if !known {
		slog.Error("unhandled error", "error", err, "code", appErr.Code)
		InternalServerError(w, "An unexpected error occurred")
		return
	}
	fail(w, status, string(appErr.Code), appErr.Message, appErr.Details())
}
