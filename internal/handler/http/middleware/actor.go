package middleware

import (
	"context"
	"net/http"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/logging"
)

// ActorResolver turns verified token claims into an actor with capabilities.
type ActorResolver interface {
	Resolve(userID, employeeID string, role user.Role) (user.Actor, error)
}

type actorKey struct{}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor user.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor resolved for this request.
func ActorFromContext(ctx context.Context) (user.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(user.Actor)
	return actor, ok
}

// ResolveActor resolves the caller's capabilities once per request and puts a
// request logger carrying the caller into the context.
func ResolveActor(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := jwt.ClaimsFromContext(r.Context())
			if err != nil {
				response.Unauthorized(w, "Invalid token")
				return
			}

			actor, err := resolver.Resolve(claims.UserID, claims.EmployeeID, claims.Role)
			if err != nil {
				response.HandleError(w, user.ErrActorNotResolved.WithField("role", string(claims.Role)))
				return
			}

			logger := logging.FromContext(r.Context()).With("user_id", actor.UserID, "role", string(actor.Role))
			ctx := logging.WithLogger(WithActor(r.Context(), actor), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
