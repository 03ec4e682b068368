// Package auth carries the caller identity supplied by the upstream
// authorization layer. The booking engine trusts these identifiers and does
// not authenticate requests itself.
package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	ActorIDKey    contextKey = "actor_id"
	ActorRolesKey contextKey = "actor_roles"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Roles understood by the route groups.
const (
	RoleAdmin        = "admin"
	RolePatient      = "patient"
	RolePractitioner = "practitioner"
	RoleScheduler    = "scheduler"
)

// ActorMiddleware copies the actor headers set by the gateway into the
// request context. In development mode a request without headers runs as an
// admin so the API can be exercised with curl.
func ActorMiddleware(devMode bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actorID := strings.TrimSpace(c.Request().Header.Get(HeaderActorID))
			roles := splitRoles(c.Request().Header.Get(HeaderActorRole))

			if actorID == "" && devMode {
				actorID = "dev-user"
				roles = []string{RoleAdmin}
			}

			ctx := WithActor(c.Request().Context(), actorID, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("actor_id", actorID)
			return next(c)
		}
	}
}

func splitRoles(header string) []string {
	var roles []string
	for _, r := range strings.Split(header, ",") {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// WithActor stores the actor on ctx. Used by the middleware and by tests.
func WithActor(ctx context.Context, actorID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, ActorIDKey, actorID)
	return context.WithValue(ctx, ActorRolesKey, roles)
}

func ActorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ActorIDKey).(string)
	return id
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(ActorRolesKey).([]string)
	return roles
}
