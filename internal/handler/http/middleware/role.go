package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/response"
)

// RequireCapability rejects callers whose resolved actor lacks c. Services
// check again; this only saves a round trip for obviously forbidden calls.
func RequireCapability(c user.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				response.HandleError(w, user.ErrActorNotResolved)
				return
			}
			if err := user.RequireCapability(actor, c); err != nil {
				response.HandleError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyCapability passes when the actor holds at least one of caps.
func RequireAnyCapability(caps ...user.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				response.HandleError(w, user.ErrActorNotResolved)
				return
			}
			for _, c := range caps {
				if actor.Can(c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.HandleError(w, user.ErrInsufficientPermissions)
		})
	}
}
