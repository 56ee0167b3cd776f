package user

import "github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"

var (
	ErrInsufficientPermissions = apperror.New(apperror.CodeForbidden, "insufficient permissions")
	ErrActorNotResolved        = apperror.New(apperror.CodeForbidden, "caller identity could not be resolved")
)

// RequireCapability returns a Forbidden error naming the missing capability.
func RequireCapability(a Actor, c Capability) error {
	if a.Can(c) {
		return nil
	}
	return ErrInsufficientPermissions.WithField("required", string(c)).WithField("role", string(a.Role))
}
