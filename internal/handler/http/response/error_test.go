package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
)

func TestStatusFor(t *testing.T) {
	var verrs validator.ValidationErrors
	verrs.Add("period_start", "must be YYYY-MM-DD")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation errors", verrs, http.StatusUnprocessableEntity},
		{"validation code", apperror.New(apperror.CodeValidation, "bad"), http.StatusUnprocessableEntity},
		{"not found", apperror.New(apperror.CodeNotFound, "missing"), http.StatusNotFound},
		{"forbidden", apperror.New(apperror.CodeForbidden, "no"), http.StatusForbidden},
		{"invalid transition", apperror.New(apperror.CodeInvalidTransition, "no"), http.StatusConflict},
		{"concurrent modification", apperror.New(apperror.CodeConcurrentModification, "stale"), http.StatusConflict},
		{"incomplete attendance", apperror.New(apperror.CodeIncompleteAttendance, "open"), http.StatusUnprocessableEntity},
		{"missing pay grade", apperror.New(apperror.CodeMissingPayGrade, "none"), http.StatusUnprocessableEntity},
		{"conflict", apperror.New(apperror.CodeConflict, "dup"), http.StatusConflict},
		{"wrapped", fmt.Errorf("failed to approve: %w", apperror.New(apperror.CodeNotFound, "missing")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestHandleError_ValidationDetails(t *testing.T) {
	var verrs validator.ValidationErrors
	verrs.Add("reason", "reason is required when rejecting")

	rec := httptest.NewRecorder()
	HandleError(rec, fmt.Errorf("update status: %w", verrs))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "reason is required when rejecting", resp.Error.Details["reason"])
}

func TestHandleError_HidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}
