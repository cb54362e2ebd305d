package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/service"
)

// RequireRole enforces that the authenticated caller holds one of roles.
// It must run after AccessGate.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Payload(c)
			if !ok {
				return service.ErrAuthRequired
			}
			if !allowed[p.Role] {
				return service.ErrForbidden
			}
			return next(c)
		}
	}
}
