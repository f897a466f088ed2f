package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/rtemis/reimbursement/core/user"
)

// roleMiddleware only lets through active users holding one of roles.
// App admins are always let through.
func roleMiddleware(auth *authenticator, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := auth.contextUser(ctx)
			if err != nil {
				return err
			}
			if usr.IsAdmin() || usr.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return roleMiddleware(auth, user.RoleAppAdmin)
}

// activeUserMiddleware loads the user behind the token into the context.
func activeUserMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := auth.contextUser(ctx); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
