package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/middleware"
)

// RegisterAuth registers the /auth endpoints.  Login is additionally
// throttled per IP; refresh requires a live refresh token while logout and
// self require an access token.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/auth")
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login, middleware.LoginLimiter(d.Config.RateLimit.LoginLimit, d.Config.RateLimit.LoginWindow, e.IPExtractor))
	g.POST("/refresh", d.Auth.Refresh, middleware.RefreshGate(d.Tokens))
	g.POST("/logout", d.Auth.Logout, middleware.AccessGate(d.Tokens))
	g.GET("/self", d.Auth.Self, middleware.AccessGate(d.Tokens))
}
