package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

func TestSSEToken_RoundTrip(t *testing.T) {
	svc, err := NewJWTService("test-secret", "15m")
	require.NoError(t, err)

	token, expiresIn, err := svc.GenerateSSEToken("u-1", "mgr-1", user.RolePayrollManager)
	require.NoError(t, err)
	assert.Equal(t, 300, expiresIn)

	claims, err := svc.ValidateSSEToken(token)
	require.NoError(t, err)
	assert.Equal(t, "mgr-1", claims.EmployeeID)
	assert.Equal(t, user.RolePayrollManager, claims.Role)
}

func TestSSEToken_RejectsAccessToken(t *testing.T) {
	svc, err := NewJWTService("test-secret", "15m")
	require.NoError(t, err)

	token, _, err := svc.GenerateAccessToken("u-1", "specialist-1", user.RolePayrollSpecialist)
	require.NoError(t, err)

	_, err = svc.ValidateSSEToken(token)
	assert.Error(t, err)
}

func TestNewJWTService_BadDuration(t *testing.T) {
	_, err := NewJWTService("s", "fortnight")
	assert.Error(t, err)
}

func TestClaimsFromMap_RequiresIdentity(t *testing.T) {
	_, err := ClaimsFromMap(map[string]interface{}{"employee_id": "e-1"})
	assert.ErrorIs(t, err, ErrInvalidClaims)
}
